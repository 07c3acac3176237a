// Package errs defines the error kinds so every layer of the pipeline can
// classify a failure the same way: whether it should be
// logged-and-continued, logged-and-alerted, or fatal.
package errs

import (
	"errors"
	"fmt"
)

// TransientFetch covers network errors, 5xx responses, and schema-parse
// failures on a single response. The caller logs it and continues with the
// next network; checkpoints never advance past the failing fetch.
type TransientFetch struct {
	Op  string
	Err error
}

func (e *TransientFetch) Error() string {
	return fmt.Sprintf("transient fetch error during %s: %v", e.Op, e.Err)
}

func (e *TransientFetch) Unwrap() error { return e.Err }

// NewTransientFetch wraps err as a TransientFetch for operation op.
func NewTransientFetch(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientFetch{Op: op, Err: err}
}

// ProtocolViolation covers responses that are well-formed HTTP but violate
// a protocol invariant this indexer depends on: a missing ETag/checkpoint
// header on 200, heterogeneous slots within one transaction's outputs, or a
// matched output with no datum hash. The current transaction fails; the
// checkpoint is not advanced past it.
type ProtocolViolation struct {
	Context string
	Err     error
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation (%s): %v", e.Context, e.Err)
}

func (e *ProtocolViolation) Unwrap() error { return e.Err }

// NewProtocolViolation builds a ProtocolViolation with a formatted context.
func NewProtocolViolation(context string, err error) error {
	return &ProtocolViolation{Context: context, Err: err}
}

// PermanentArchiveError covers an unprocessable archival package for this
// tick: bad content-type, tar extraction failure, or a missing
// validation-*.json entry. Only the one fact is skipped; the next tick
// retries it.
type PermanentArchiveError struct {
	FactID string
	Err    error
}

func (e *PermanentArchiveError) Error() string {
	return fmt.Sprintf("archive error for fact %s: %v", e.FactID, e.Err)
}

func (e *PermanentArchiveError) Unwrap() error { return e.Err }

// NewPermanentArchiveError wraps err as a PermanentArchiveError for factID.
func NewPermanentArchiveError(factID string, err error) error {
	return &PermanentArchiveError{FactID: factID, Err: err}
}

// ConfigurationError is fatal at startup: a required environment variable
// or static network seed value was missing or invalid.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("configuration error: missing required value %s", e.Key)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError reports a missing or invalid required config key.
func NewConfigurationError(key string, err error) error {
	return &ConfigurationError{Key: key, Err: err}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
