// Copyright 2025 sigaid authors
//
// Package authorityclient is the agent side's HTTP transport against an
// Authority's §6 endpoint table, grounded in the teacher's
// pkg/accumulate liteclient_adapter.go request/response shape:
// json.Marshal a request struct, http.NewRequestWithContext +
// http.Client.Do, decode a typed response, wrap errors with %w.
package authorityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/wire"
)

// Client is a thin HTTP binding for every §6 endpoint an agent-side process
// calls. It satisfies lease.Transport directly, so a lease.Client can be
// built straight from a Client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. https://api.sigaid.com),
// authenticating with apiKey via the Authorization header spec §6 names.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError reports a response with status 300 or above: the status code
// and the raw, undecoded response body.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("authorityclient: status %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) (*http.Response, error) {
	var buf io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("authorityclient: encode request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, fmt.Errorf("authorityclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authorityclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authorityclient: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return resp, &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	if respBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respBody); err != nil {
			return resp, fmt.Errorf("authorityclient: decode response: %w", err)
		}
	}
	return resp, nil
}

// RegisterAgent calls POST /v1/agents.
func (c *Client) RegisterAgent(ctx context.Context, req wire.AgentRegisterRequest) (wire.AgentResponse, error) {
	var resp wire.AgentResponse
	_, err := c.do(ctx, http.MethodPost, "/v1/agents", req, &resp)
	return resp, err
}

// GetAgent calls GET /v1/agents/{agent_id}.
func (c *Client) GetAgent(ctx context.Context, agentID string) (wire.AgentResponse, error) {
	var resp wire.AgentResponse
	_, err := c.do(ctx, http.MethodGet, "/v1/agents/"+agentID, nil, &resp)
	return resp, err
}

// Acquire implements lease.Transport by calling POST /v1/leases.
func (c *Client) Acquire(ctx context.Context, req wire.AcquireRequest) (wire.AcquireResponse, error) {
	var resp wire.AcquireResponse
	_, err := c.do(ctx, http.MethodPost, "/v1/leases", req, &resp)
	if err != nil {
		if held, ok := asLeaseHeld(err); ok {
			return wire.AcquireResponse{}, held
		}
		return wire.AcquireResponse{}, err
	}
	return resp, nil
}

// Renew implements lease.Transport by calling PUT /v1/leases/{agent_id}.
func (c *Client) Renew(ctx context.Context, agentID string, req wire.RenewRequest) (wire.RenewResponse, error) {
	var resp wire.RenewResponse
	_, err := c.do(ctx, http.MethodPut, "/v1/leases/"+agentID, req, &resp)
	return resp, err
}

// Release implements lease.Transport by calling DELETE /v1/leases/{agent_id}.
func (c *Client) Release(ctx context.Context, agentID string, req wire.ReleaseRequest) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/leases/"+agentID, req, nil)
	return err
}

// LeaseStatus calls GET /v1/leases/{agent_id}.
func (c *Client) LeaseStatus(ctx context.Context, agentID string) (wire.LeaseStatusResponse, error) {
	var resp wire.LeaseStatusResponse
	_, err := c.do(ctx, http.MethodGet, "/v1/leases/"+agentID, nil, &resp)
	return resp, err
}

// AppendState calls POST /v1/state/{agent_id}, authenticating the active
// lease with leaseToken via the Authorization header per spec §6. It bypasses
// do() because this is the one call that needs a per-request Authorization
// header different from the client's own API key.
func (c *Client) AppendState(ctx context.Context, agentID, leaseToken string, entry wire.StateEntry) (wire.StateEntry, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return wire.StateEntry{}, fmt.Errorf("authorityclient: encode state entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/state/"+agentID, bytes.NewReader(raw))
	if err != nil {
		return wire.StateEntry{}, fmt.Errorf("authorityclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+leaseToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wire.StateEntry{}, fmt.Errorf("authorityclient: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.StateEntry{}, fmt.Errorf("authorityclient: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return wire.StateEntry{}, &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	var out wire.StateEntry
	if err := json.Unmarshal(body, &out); err != nil {
		return wire.StateEntry{}, fmt.Errorf("authorityclient: decode response: %w", err)
	}
	return out, nil
}

// Head calls GET /v1/state/{agent_id}.
func (c *Client) Head(ctx context.Context, agentID string) (wire.StateHeadResponse, error) {
	var resp wire.StateHeadResponse
	_, err := c.do(ctx, http.MethodGet, "/v1/state/"+agentID, nil, &resp)
	return resp, err
}

// History calls GET /v1/state/{agent_id}/history.
func (c *Client) History(ctx context.Context, agentID string) (wire.StateHistoryResponse, error) {
	var resp wire.StateHistoryResponse
	_, err := c.do(ctx, http.MethodGet, "/v1/state/"+agentID+"/history", nil, &resp)
	return resp, err
}

// Verify calls POST /v1/verify.
func (c *Client) Verify(ctx context.Context, req wire.VerifyRequest) (wire.VerifyResponse, error) {
	var resp wire.VerifyResponse
	_, err := c.do(ctx, http.MethodPost, "/v1/verify", req, &resp)
	return resp, err
}

// asLeaseHeld recovers a *lease.ErrLeaseHeld from a 409 response body so
// lease.Client's errors.As(err, &held) retry logic works the same way over
// HTTP as it does against an in-process Transport.
func asLeaseHeld(err error) (*lease.ErrLeaseHeld, bool) {
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.Status != http.StatusConflict {
		return nil, false
	}
	var held wire.LeaseHeldResponse
	if jsonErr := json.Unmarshal([]byte(apiErr.Body), &held); jsonErr != nil || held.Error != "lease_held" {
		return nil, false
	}
	expiresAt, err2 := time.Parse(time.RFC3339, held.ExpiresAt)
	if err2 != nil {
		return nil, false
	}
	return &lease.ErrLeaseHeld{HolderSessionID: held.HolderSessionID, ExpiresAt: expiresAt}, true
}
