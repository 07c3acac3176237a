// Package alert is the central non-fatal-error sink: every error is
// logged, and in production/test modes also posted to a Discord webhook
// prefixed "{NODE_ENV}: " via a POST-JSON-over-net/http delivery with a
// bounded-timeout client.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Sink posts alerts to a Discord webhook, prefixed by environment.
type Sink struct {
	webhookURL string
	nodeEnv    string
	httpClient *http.Client
	post       bool
}

// NewSink builds a Sink. Posting is enabled for nodeEnv values
// "production" and "test"; "development" logs only.
func NewSink(webhookURL, nodeEnv string) *Sink {
	return &Sink{
		webhookURL: webhookURL,
		nodeEnv:    nodeEnv,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		post:       nodeEnv == "production" || nodeEnv == "test",
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

// Error logs and, where enabled, posts a non-fatal error for an operator
// to see. format/args follow log.Printf conventions.
func (s *Sink) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[alert] %s", msg)
	if !s.post || s.webhookURL == "" {
		return
	}
	if err := s.deliverToURL(context.Background(), fmt.Sprintf("%s: %s", s.nodeEnv, msg)); err != nil {
		log.Printf("[alert] failed to deliver to discord: %v", err)
	}
}

// deliverToURL posts a single Discord message payload: JSON body,
// bounded-timeout client, no internal retry.
func (s *Sink) deliverToURL(ctx context.Context, content string) error {
	body, err := json.Marshal(discordPayload{Content: content})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord responded %s", resp.Status)
	}
	return nil
}
