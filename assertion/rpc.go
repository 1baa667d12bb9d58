package assertion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCClient is a bounded-timeout JSON POST client for the OAuth authorization
// endpoint. It performs no retries; retry policy belongs to the caller's
// deployment, not this core.
type RPCClient struct {
	base   string
	client *http.Client
}

// NewRPCClient creates a client for the given base URL. The timeout bounds
// the whole exchange including body read.
func NewRPCClient(base string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// PostJSON posts the body to base+path and returns the raw response payload.
// Network errors and non-2xx statuses are failures.
func (c *RPCClient) PostJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rpc: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rpc: post %s: unexpected status %d", path, resp.StatusCode)
	}

	return json.RawMessage(payload), nil
}
