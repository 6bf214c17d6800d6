// Package gateway provides HTTP clients for the external collaborators:
// the inventory store (stock snapshots) and the notification channel.
//
// Both speak the uniform response envelope
// {status, message, data, timestamp}. Classification is strict: a
// non-2xx envelope status is a failure regardless of how the message
// reads, and null data on a required field is a failure, never an
// empty-but-valid result.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"opname/internal/core/apperror"
)

// Envelope is the uniform response wrapper used by the backend APIs.
type Envelope struct {
	Status    int             `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp *string         `json:"timestamp"`
}

// Config holds common gateway client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns defaults for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type client struct {
	cfg  Config
	http *http.Client
	name string // upstream name for error reporting
}

func newClient(cfg Config, name string) *client {
	return &client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		name: name,
	}
}

// do issues one request and decodes the envelope into out (if non-nil).
// requireData enforces the null-data-is-failure rule.
func (c *client) do(ctx context.Context, method, path string, body any, out any, requireData bool) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewUpstreamUnavailable(c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.NewUpstreamUnavailable(c.name, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperror.NewUpstreamUnavailable(c.name, fmt.Errorf("decode envelope: %w", err))
	}

	status := env.Status
	if status == 0 {
		status = resp.StatusCode
	}

	// Strict classification by status code only. A success-sounding
	// message on an error status is still an error.
	switch {
	case status == http.StatusNotFound:
		return apperror.NewNotFound(c.name+" resource", path).WithDetail("message", env.Message)
	case status >= 500:
		return apperror.NewUpstreamUnavailable(c.name, fmt.Errorf("status %d: %s", status, env.Message))
	case status < 200 || status >= 300:
		return apperror.NewValidation(fmt.Sprintf("%s rejected the request: %s", c.name, env.Message)).
			WithDetail("status", status)
	}

	if out == nil {
		return nil
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		if requireData {
			return apperror.NewUpstreamUnavailable(c.name, fmt.Errorf("success envelope with null data"))
		}
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperror.NewUpstreamUnavailable(c.name, fmt.Errorf("decode data: %w", err))
	}
	return nil
}
