// Package client is the Go client for the gateway's dispatch API. The MCP
// server uses it; any other host process can too.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

// DispatchRequest is the wire form of one operation envelope.
type DispatchRequest struct {
	Operation    string         `json:"operation"`
	ResourceType string         `json:"resourceType"`
	ID           any            `json:"id,omitempty"`
	Query        map[string]any `json:"query,omitempty"`
	Data         any            `json:"data,omitempty"`
	IDs          []any          `json:"ids,omitempty"`
}

// Client talks to the gateway. It opens a session lazily when it holds an
// API key, and refreshes the session token once if the anti-forgery gate
// rejects a call mid-session. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs a pre-provisioned session token, bypassing OpenSession.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// OpenSession exchanges the API key for an anti-forgery token and stores it
// for subsequent Dispatch calls.
func (c *Client) OpenSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("client.OpenSession build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("client.OpenSession: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("client.OpenSession decode: %w", err)
	}
	if !body.Success || body.Data.Token == "" {
		if body.Message != "" {
			return "", fmt.Errorf("client.OpenSession: %s", body.Message)
		}
		return "", fmt.Errorf("client.OpenSession: http status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.token = body.Data.Token
	c.mu.Unlock()
	return body.Data.Token, nil
}

// Dispatch posts one envelope and returns the gateway's result. Error
// results come back as a Result, not a Go error; only transport and
// decoding failures error out.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (*types.Result, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	result, err := c.dispatchOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	// A rejected token means the session expired under us; reopen once.
	if result.HTTPStatus == http.StatusForbidden && result.Message == types.MsgInvalidToken && c.apiKey != "" {
		if _, err := c.OpenSession(ctx); err != nil {
			return nil, err
		}
		return c.dispatchOnce(ctx, req)
	}
	return result, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	have := c.token != ""
	c.mu.Unlock()
	if have {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("client.Dispatch: no session token and no API key to open one")
	}
	_, err := c.OpenSession(ctx)
	return err
}

func (c *Client) dispatchOnce(ctx context.Context, req DispatchRequest) (*types.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client.Dispatch marshal: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dispatch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client.Dispatch build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	httpReq.Header.Set("X-Csrf-Token", c.token)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client.Dispatch: %w", err)
	}
	defer resp.Body.Close()

	var result types.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("client.Dispatch decode (http status %d): %w", resp.StatusCode, err)
	}
	result.HTTPStatus = resp.StatusCode
	return &result, nil
}
