// Package omeka implements the backend collaborator: an HTTP client for the
// Omeka S REST API, covering the five CRUD/search primitives the dispatcher
// consumes plus property-reference resolution.
package omeka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
	"github.com/dgraph-io/ristretto/v2"
)

// TotalResultsHeader carries the unpaginated result count on search
// responses.
const TotalResultsHeader = "Omeka-S-Total-Results"

// Config holds the backend connection settings. KeyIdentity/KeyCredential
// are the backend's own API credentials, a layer below the gateway's
// anti-forgery boundary.
type Config struct {
	BaseURL       string
	KeyIdentity   string
	KeyCredential string
	Timeout       time.Duration
}

// Client talks to the Omeka S REST API.
type Client struct {
	baseURL       string
	keyIdentity   string
	keyCredential string
	httpClient    *http.Client
	propCache     *ristretto.Cache[string, int64]
	log           *slog.Logger
}

// NewClient creates a backend client. The property-id cache is sized for a
// typical installation's vocabulary surface.
func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("omeka: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: 10_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("omeka: property cache: %w", err)
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyIdentity:   cfg.KeyIdentity,
		keyCredential: cfg.KeyCredential,
		httpClient:    &http.Client{Timeout: timeout},
		propCache:     cache,
		log:           log,
	}, nil
}

// Close releases the property cache.
func (c *Client) Close() {
	c.propCache.Close()
}

// Search lists representations of the given type. Scalar query values are
// stringified into URL parameters; the backend reports the unpaginated
// total in a response header.
func (c *Client) Search(ctx context.Context, resourceType string, query map[string]any) (*types.SearchResult, error) {
	body, header, err := c.do(ctx, http.MethodGet, "/api/"+resourceType, buildQuery(query), nil)
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("omeka search decode: %w", err)
	}
	total := len(items)
	if v := header.Get(TotalResultsHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			total = n
		}
	}
	return &types.SearchResult{Items: items, TotalResults: total}, nil
}

// Read fetches one representation.
func (c *Client) Read(ctx context.Context, resourceType string, id types.ID) (map[string]any, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/api/"+resourceType+"/"+id.String(), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRepresentation(body, "read")
}

// Create resolves pending property references in the bag and posts it.
func (c *Client) Create(ctx context.Context, resourceType string, bag types.PropertyBag) (map[string]any, error) {
	resolved, err := c.resolveBag(ctx, bag)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodPost, "/api/"+resourceType, nil, resolved)
	if err != nil {
		return nil, err
	}
	return decodeRepresentation(body, "create")
}

// Update writes the full representation for id. The backend's write
// primitive replaces rather than patches, which is why the dispatcher
// merges before calling here.
func (c *Client) Update(ctx context.Context, resourceType string, id types.ID, bag types.PropertyBag) (map[string]any, error) {
	resolved, err := c.resolveBag(ctx, bag)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodPut, "/api/"+resourceType+"/"+id.String(), nil, resolved)
	if err != nil {
		return nil, err
	}
	return decodeRepresentation(body, "update")
}

// Delete removes one resource.
func (c *Client) Delete(ctx context.Context, resourceType string, id types.ID) error {
	_, _, err := c.do(ctx, http.MethodDelete, "/api/"+resourceType+"/"+id.String(), nil, nil)
	return err
}

// Ping verifies the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodGet, "/api-context", nil, nil)
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Request plumbing
// ──────────────────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, http.Header, error) {
	u := c.baseURL + path
	if query == nil {
		query = url.Values{}
	}
	if c.keyIdentity != "" {
		query.Set("key_identity", c.keyIdentity)
		query.Set("key_credential", c.keyCredential)
	}
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("omeka marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("omeka new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("omeka %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("omeka read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &Fault{
			Kind:    kindFromStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
		}
	}
	return body, resp.Header, nil
}

func decodeRepresentation(body []byte, op string) (map[string]any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var rep map[string]any
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("omeka %s decode: %w", op, err)
	}
	return rep, nil
}

func buildQuery(query map[string]any) url.Values {
	values := url.Values{}
	for k, v := range query {
		switch tv := v.(type) {
		case string:
			values.Set(k, tv)
		case bool:
			values.Set(k, strconv.FormatBool(tv))
		case float64:
			values.Set(k, strconv.FormatFloat(tv, 'f', -1, 64))
		case int:
			values.Set(k, strconv.Itoa(tv))
		case int64:
			values.Set(k, strconv.FormatInt(tv, 10))
		}
	}
	return values
}
