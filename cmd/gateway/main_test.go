package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/audit"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/auth"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []*types.Envelope
	result *types.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, env *types.Envelope) *types.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, env)
	if f.result != nil {
		return f.result
	}
	return types.OK(map[string]any{"o:id": 1})
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixedTokens struct{ valid string }

func (f fixedTokens) Issue() (string, error)   { return f.valid, nil }
func (f fixedTokens) Validate(tok string) bool { return tok != "" && tok == f.valid }

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeRecorder) Record(_ context.Context, ev audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func newTestGateway(fd *fakeDispatcher, rec *fakeRecorder) *Gateway {
	gw := &Gateway{
		log:          slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)),
		dispatcher:   fd,
		tokens:       fixedTokens{valid: "tok-good"},
		sessionTTL:   time.Hour,
		rateLimiters: make(map[string]*rate.Limiter),
		rateRPS:      100,
		rateBurst:    200,
	}
	if rec != nil {
		gw.recorder = rec
	}
	return gw
}

// newTestRouter mirrors main's route wiring.
func newTestRouter(gw *Gateway, keys string) chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		types.Fail(types.ErrMethodNotAllowed()).WriteJSON(w)
	})
	r.Post("/v1/dispatch", gw.HandleDispatch)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.APIKeyAuth(auth.NewKeyStore(keys)))
		pr.Post("/v1/session", gw.HandleSession)
	})
	return r
}

func postDispatch(t *testing.T, handler http.Handler, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Csrf-Token", token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) types.Result {
	t.Helper()
	var res types.Result
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res
}

// ──────────────────────────────────────────────────────────────────────────────
// Dispatch precedence
// ──────────────────────────────────────────────────────────────────────────────

func TestDispatch_WrongMethodBeatsEverything(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	// No token and a malformed body: the method check must still win.
	req := httptest.NewRequest(http.MethodGet, "/v1/dispatch", bytes.NewReader([]byte(`{invalid`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeResult(t, rr)
	if !res.Error || res.Message != "method not allowed" {
		t.Errorf("unexpected envelope: %+v", res)
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run")
	}
}

func TestDispatch_TokenCheckBeatsParse(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	// Bad token and malformed body: token failure must win over the 400.
	rr := postDispatch(t, r, "tok-wrong", []byte(`{invalid`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeResult(t, rr)
	if res.Message != types.MsgInvalidToken {
		t.Errorf("message = %q, want %q", res.Message, types.MsgInvalidToken)
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run")
	}
}

func TestDispatch_MissingToken(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	rr := postDispatch(t, r, "", []byte(`{"operation":"search","resourceType":"items"}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run")
	}
}

func TestDispatch_MalformedBody(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	rr := postDispatch(t, r, "tok-good", []byte(`{invalid`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run on a malformed envelope")
	}
}

func TestDispatch_UnknownOperation(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	rr := postDispatch(t, r, "tok-good", []byte(`{"operation":"publish","resourceType":"items"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	res := decodeResult(t, rr)
	if res.Message != `unknown operation "publish"` {
		t.Errorf("message = %q, want the operation named", res.Message)
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run on an unknown operation")
	}
}

func TestDispatch_ValidEnvelopeReachesDispatcher(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	rr := postDispatch(t, r, "tok-good", []byte(`{"operation":"search","resourceType":"items","query":{"fulltext_search":"maps"}}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeResult(t, rr)
	if !res.Success {
		t.Errorf("unexpected envelope: %+v", res)
	}
	if fd.callCount() != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", fd.callCount())
	}
	env := fd.calls[0]
	if env.Operation != types.OpSearch || env.ResourceType != "items" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.Query["fulltext_search"] != "maps" {
		t.Errorf("query not carried: %v", env.Query)
	}
}

func TestDispatch_ErrorResultKeepsStatus(t *testing.T) {
	fd := &fakeDispatcher{result: types.Fail(types.ErrNotFound("no such item"))}
	r := newTestRouter(newTestGateway(fd, nil), "")

	rr := postDispatch(t, r, "tok-good", []byte(`{"operation":"get","resourceType":"items","id":9}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	res := decodeResult(t, rr)
	if !res.Error || res.Message != "Not found." || res.Details != "no such item" {
		t.Errorf("unexpected envelope: %+v", res)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	fd := &fakeDispatcher{}
	gw := newTestGateway(fd, nil)
	gw.rateRPS = 1
	gw.rateBurst = 1
	r := newTestRouter(gw, "")

	body := []byte(`{"operation":"search","resourceType":"items"}`)
	if rr := postDispatch(t, r, "tok-good", body); rr.Code != http.StatusOK {
		t.Fatalf("first call should pass, got %d", rr.Code)
	}
	rr := postDispatch(t, r, "tok-good", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	if fd.callCount() != 1 {
		t.Errorf("dispatcher calls = %d, want 1", fd.callCount())
	}
}

func TestDispatch_OversizedBody(t *testing.T) {
	fd := &fakeDispatcher{}
	r := newTestRouter(newTestGateway(fd, nil), "")

	big := make([]byte, types.MaxEnvelopeBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	rr := postDispatch(t, r, "tok-good", big)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if fd.callCount() != 0 {
		t.Error("dispatcher must not run")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Session endpoint
// ──────────────────────────────────────────────────────────────────────────────

func TestSession_IssuesToken(t *testing.T) {
	rec := &fakeRecorder{}
	gw := newTestGateway(&fakeDispatcher{}, rec)
	r := newTestRouter(gw, "curator:sk-abc")

	req := httptest.NewRequest(http.MethodPost, "/v1/session", http.NoBody)
	req.Header.Set("X-API-Key", "sk-abc")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Token != "tok-good" {
		t.Errorf("unexpected session payload: %+v", body)
	}
	if time.Until(body.Data.ExpiresAt) <= 0 {
		t.Error("expiresAt should be in the future")
	}

	if len(rec.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Action != audit.ActionSessionIssue || ev.Principal != "curator" {
		t.Errorf("unexpected audit event: %+v", ev)
	}
}

func TestSession_RequiresAPIKey(t *testing.T) {
	gw := newTestGateway(&fakeDispatcher{}, nil)
	r := newTestRouter(gw, "curator:sk-abc")

	req := httptest.NewRequest(http.MethodPost, "/v1/session", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSession_WrongMethod(t *testing.T) {
	gw := newTestGateway(&fakeDispatcher{}, nil)
	r := newTestRouter(gw, "curator:sk-abc")

	req := httptest.NewRequest(http.MethodGet, "/v1/session", http.NoBody)
	req.Header.Set("X-API-Key", "sk-abc")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
