package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// envelope mirrors the relay's JSON reply.
type envelope struct {
	Result        string          `json:"result"`
	Data          json.RawMessage `json:"data"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	Details       json.RawMessage `json:"details"`
	CorrelationID string          `json:"correlationId"`
}

// APIError is a non-2xx reply from the relay.
type APIError struct {
	Status        int
	Code          string
	Message       string
	Details       json.RawMessage
	CorrelationID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if len(e.Details) > 0 && string(e.Details) != "null" {
		msg += " " + string(e.Details)
	}
	return msg
}

// Client talks to the relay's HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(server, token string, timeout time.Duration) *Client {
	return &Client{
		base:  strings.TrimSuffix(server, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s reply (status %d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Result != "ok" {
		return &APIError{
			Status:        resp.StatusCode,
			Code:          env.Code,
			Message:       env.Message,
			Details:       env.Details,
			CorrelationID: env.CorrelationID,
		}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
