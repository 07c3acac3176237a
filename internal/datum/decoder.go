// Package datum decodes a CBOR-encoded oracle datum into a typed
// CurrencyPairDatum, using defensive type-switch extraction over the
// decoded value tree rather than trusting the wire shape up front.
package datum

import (
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// CurrencyPairDatum is the decoded shape of an Orcfax oracle datum.
type CurrencyPairDatum struct {
	FeedID         string
	FeedType       string
	FeedName       string
	FeedVersion    string
	BaseTicker     string
	QuoteTicker    string
	ValidationDateMs int64
	DatumHash      string
	Value          float64
	InverseValue   float64
}

var feedIDPattern = regexp.MustCompile(`^[^/]+/[^/]+-[^/]+/[^/]+$`)

// Decode parses hexDatum (as returned by the chain-index /datums route)
// into a CurrencyPairDatum.
//
// datum_hash is not mined out of the CBOR payload: it is taken verbatim
// from the chain index's own match/datum metadata (knownDatumHash), not
// a value recomputed from the datum body. See DESIGN.md.
func Decode(hexDatum string, knownDatumHash string) (CurrencyPairDatum, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexDatum))
	if err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("decode hex datum: %w", err)
	}

	var decoded interface{}
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("cbor unmarshal: %w", err)
	}
	decoded = unwrapTags(decoded)

	outer, ok := decoded.([]interface{})
	if !ok || len(outer) != 2 {
		return CurrencyPairDatum{}, fmt.Errorf("datum: expected 2-tuple, got %T", decoded)
	}

	body, ok := outer[0].([]interface{})
	if !ok || len(body) != 3 {
		return CurrencyPairDatum{}, fmt.Errorf("datum: expected 3-element body tuple, got %T", outer[0])
	}

	if err := validateSignatureGroup(outer[1]); err != nil {
		return CurrencyPairDatum{}, err
	}

	feedIDBytes, err := asBytes(body[0])
	if err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("datum: feed_id: %w", err)
	}
	feedID := string(feedIDBytes)

	validationTs, err := asInt64(body[1])
	if err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("datum: validation_ts: %w", err)
	}

	ratio, ok := body[2].([]interface{})
	if !ok || len(ratio) != 2 {
		return CurrencyPairDatum{}, fmt.Errorf("datum: expected [numerator, denominator], got %T", body[2])
	}
	numerator, err := asInt64(ratio[0])
	if err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("datum: numerator: %w", err)
	}
	denominator, err := asInt64(ratio[1])
	if err != nil {
		return CurrencyPairDatum{}, fmt.Errorf("datum: denominator: %w", err)
	}
	if denominator == 0 {
		return CurrencyPairDatum{}, fmt.Errorf("datum: denominator is zero")
	}

	feedType, feedName, feedVersion, baseTicker, quoteTicker, err := parseFeedID(feedID)
	if err != nil {
		return CurrencyPairDatum{}, err
	}

	value := float64(numerator) / float64(denominator)
	formatted := formatValue(value)
	inverse := 1 / formatted

	return CurrencyPairDatum{
		FeedID:           feedID,
		FeedType:         feedType,
		FeedName:         feedName,
		FeedVersion:      feedVersion,
		BaseTicker:       baseTicker,
		QuoteTicker:      quoteTicker,
		ValidationDateMs: validationTs,
		DatumHash:        knownDatumHash,
		Value:            formatted,
		InverseValue:     inverse,
	}, nil
}

// DecodePolicyID CBOR-decodes a policy-pointer datum (as fetched by the
// policy tracker) down to its raw byte string and returns it hex-encoded,
// the "child policy" policy_id.
func DecodePolicyID(hexDatum string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexDatum))
	if err != nil {
		return "", fmt.Errorf("decode hex datum: %w", err)
	}
	var decoded interface{}
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("cbor unmarshal: %w", err)
	}
	decoded = unwrapTags(decoded)
	b, err := asBytes(decoded)
	if err != nil {
		return "", fmt.Errorf("policy datum: expected bytes, got %T", decoded)
	}
	return hex.EncodeToString(b), nil
}

// formatValue applies the contractual rounding boundary: values below
// 1e-6 keep 10 decimal digits; everything else keeps 6.
func formatValue(value float64) float64 {
	if value < 1e-6 {
		return roundTo(value, 10)
	}
	return roundTo(value, 6)
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

// parseFeedID splits "type/base-quote/version" into its parts.
func parseFeedID(feedID string) (feedType, feedName, feedVersion, base, quote string, err error) {
	if !feedIDPattern.MatchString(feedID) {
		return "", "", "", "", "", fmt.Errorf("datum: feed_id %q does not match expected shape", feedID)
	}
	parts := strings.Split(feedID, "/")
	if len(parts) != 3 {
		return "", "", "", "", "", fmt.Errorf("datum: feed_id %q did not split into 3 parts", feedID)
	}
	feedType, pair, feedVersion := parts[0], parts[1], parts[2]

	pairParts := strings.SplitN(pair, "-", 2)
	if len(pairParts) != 2 {
		return "", "", "", "", "", fmt.Errorf("datum: feed_id pair %q is not base-quote", pair)
	}
	return feedType, pair, feedVersion, pairParts[0], pairParts[1], nil
}

// validateSignatureGroup enforces the expected shape: either
// [pubkeyhash] or [slot_no?, pubkeyhash].
func validateSignatureGroup(v interface{}) error {
	group, ok := v.([]interface{})
	if !ok || len(group) < 1 || len(group) > 2 {
		return fmt.Errorf("datum: signature group must have 1 or 2 elements, got %T", v)
	}
	if _, err := asBytes(group[len(group)-1]); err != nil {
		return fmt.Errorf("datum: signature group pubkeyhash: %w", err)
	}
	return nil
}

// unwrapTags recursively replaces every CBOR tag (including the Plutus
// constructor tag 121) with its content.
func unwrapTags(v interface{}) interface{} {
	switch t := v.(type) {
	case cbor.Tag:
		return unwrapTags(t.Content)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = unwrapTags(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(t))
		for k, e := range t {
			out[unwrapTags(k)] = unwrapTags(e)
		}
		return out
	default:
		return v
	}
}

func asBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
}

func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case int:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
