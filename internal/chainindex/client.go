// Package chainindex is the HTTP client for the Kupo-style chain-index
// service: matches, datums, and metadata, with conditional requests,
// checkpoint headers, and per-client rate limiting. Failed requests are
// not retried here.
package chainindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/orcfax/fact-index/internal/errs"
)

// errNotModified is returned by FetchMatches when the server replies 304.
var errNotModified = fmt.Errorf("chain-index: not modified")

// IsNotModified reports whether err signals a 304 Not Modified response.
func IsNotModified(err error) bool {
	return err == errNotModified
}

// Client issues matches/datums/metadata requests against one network's
// chain-index base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Client for baseURL. ratePerSecond throttles outbound
// requests; a value <= 0 disables throttling.
func NewClient(baseURL string, ratePerSecond float64) *Client {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// MatchesResult is the outcome of a successful (non-304) FetchMatches call.
type MatchesResult struct {
	Matches              []KupoMatch
	ETag                 string // block hash
	MostRecentCheckpoint int64  // slot
}

// FetchMatches issues GET /matches/{pattern} with the given query. It
// returns errNotModified (checked via IsNotModified) on a 304 response.
// A 200 response missing either the etag or x-most-recent-checkpoint
// header fails the fetch.
func (c *Client) FetchMatches(ctx context.Context, q MatchesQuery) (*MatchesResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, errs.NewTransientFetch("matches", err)
	}

	u := fmt.Sprintf("%s/matches/%s", c.baseURL, q.Pattern)
	vals := url.Values{}
	if q.Order != "" {
		vals.Set("order", string(q.Order))
	}
	if q.HasCreatedAfter {
		vals.Set("created_after", strconv.FormatInt(q.CreatedAfter, 10))
	}
	if q.HasCreatedBefore {
		vals.Set("created_before", strconv.FormatInt(q.CreatedBefore, 10))
	}
	if q.Unspent {
		vals.Set("unspent", "true")
	}
	if encoded := vals.Encode(); encoded != "" {
		u = u + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.NewTransientFetch("matches", err)
	}
	if q.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", q.IfNoneMatch)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewTransientFetch("matches", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, errNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.NewTransientFetch("matches", fmt.Errorf("status %s", resp.Status))
	}

	etag := resp.Header.Get("etag")
	checkpointRaw := resp.Header.Get("x-most-recent-checkpoint")
	if etag == "" || checkpointRaw == "" {
		return nil, errs.NewProtocolViolation("matches response", fmt.Errorf("missing etag or x-most-recent-checkpoint header"))
	}
	checkpoint, err := strconv.ParseInt(checkpointRaw, 10, 64)
	if err != nil {
		return nil, errs.NewProtocolViolation("matches response", fmt.Errorf("invalid x-most-recent-checkpoint: %w", err))
	}

	var matches []KupoMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, errs.NewTransientFetch("matches", fmt.Errorf("decode: %w", err))
	}

	return &MatchesResult{Matches: matches, ETag: etag, MostRecentCheckpoint: checkpoint}, nil
}

// FetchDatum issues GET /datums/{datum_hash}. A null "datum" field is
// returned as an empty string.
func (c *Client) FetchDatum(ctx context.Context, datumHash string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", errs.NewTransientFetch("datum", err)
	}

	u := fmt.Sprintf("%s/datums/%s", c.baseURL, datumHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errs.NewTransientFetch("datum", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.NewTransientFetch("datum", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.NewTransientFetch("datum", fmt.Errorf("status %s", resp.Status))
	}

	var body DatumResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errs.NewTransientFetch("datum", fmt.Errorf("decode: %w", err))
	}
	if body.Datum == nil {
		return "", nil
	}
	return *body.Datum, nil
}

// FetchMetadata issues GET /metadata/{slot}?transaction_id=....
func (c *Client) FetchMetadata(ctx context.Context, slot int64, transactionID string) ([]MetadataEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, errs.NewTransientFetch("metadata", err)
	}

	u := fmt.Sprintf("%s/metadata/%d?%s", c.baseURL, slot, url.Values{"transaction_id": {transactionID}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.NewTransientFetch("metadata", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewTransientFetch("metadata", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.NewTransientFetch("metadata", fmt.Errorf("status %s", resp.Status))
	}

	var entries []MetadataEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errs.NewTransientFetch("metadata", fmt.Errorf("decode: %w", err))
	}
	return entries, nil
}
