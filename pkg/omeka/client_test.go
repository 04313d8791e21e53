package omeka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:       srv.URL,
		KeyIdentity:   "ki",
		KeyCredential: "kc",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestSearch_QueryAndTotal(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("search") != "maps" {
			t.Errorf("expected search=maps, got %q", q.Get("search"))
		}
		if q.Get("page") != "2" {
			t.Errorf("expected page=2, got %q", q.Get("page"))
		}
		if q.Get("key_identity") != "ki" || q.Get("key_credential") != "kc" {
			t.Error("expected backend credentials on the request")
		}
		w.Header().Set(TotalResultsHeader, "57")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{"o:id": 1}, {"o:id": 2}})
	}))

	result, err := client.Search(context.Background(), "items", map[string]any{"search": "maps", "page": float64(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(result.Items))
	}
	if result.TotalResults != 57 {
		t.Errorf("expected total 57, got %d", result.TotalResults)
	}
}

func TestSearch_TotalFallsBackToPageLength(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"o:id": 1}})
	}))

	result, err := client.Search(context.Background(), "items", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalResults != 1 {
		t.Errorf("expected total 1, got %d", result.TotalResults)
	}
}

func TestRead_Path(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/items/42" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"o:id": 42, "o:title": "Map"})
	}))

	rep, err := client.Read(context.Background(), "items", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep["o:title"] != "Map" {
		t.Errorf("expected title Map, got %v", rep["o:title"])
	}
}

func TestCreate_ResolvesAutoReferences(t *testing.T) {
	var propertyLookups int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/properties":
			propertyLookups++
			if r.URL.Query().Get("term") != "dcterms:title" {
				t.Errorf("unexpected term %q", r.URL.Query().Get("term"))
			}
			json.NewEncoder(w).Encode([]map[string]any{{"o:id": 1}})
		case r.URL.Path == "/api/items" && r.Method == http.MethodPost:
			var bag map[string]any
			if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
				t.Fatalf("decode posted bag: %v", err)
			}
			records := bag["dcterms:title"].([]any)
			for _, el := range records {
				record := el.(map[string]any)
				if record["property_id"] != float64(1) {
					t.Errorf("expected resolved property_id 1, got %v", record["property_id"])
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"o:id": 10})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	bag := types.PropertyBag{
		"dcterms:title": []any{
			map[string]any{"type": "literal", "@value": "a", "property_id": "auto"},
			map[string]any{"type": "literal", "@value": "b", "property_id": "auto"},
		},
	}
	rep, err := client.Create(context.Background(), "items", bag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep["o:id"] != float64(10) {
		t.Errorf("expected created id 10, got %v", rep["o:id"])
	}
	if propertyLookups != 1 {
		t.Errorf("expected a single property lookup for a repeated term, got %d", propertyLookups)
	}
}

func TestCreate_ExplicitReferenceSkipsLookup(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/properties" {
			t.Error("expected no property lookup")
		}
		json.NewEncoder(w).Encode(map[string]any{"o:id": 11})
	}))

	bag := types.PropertyBag{
		"dcterms:title": []any{
			map[string]any{"type": "literal", "@value": "a", "property_id": float64(7)},
		},
	}
	if _, err := client.Create(context.Background(), "items", bag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_UnknownTermFault(t *testing.T) {
	var posted bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/properties" {
			json.NewEncoder(w).Encode([]any{})
			return
		}
		posted = true
	}))

	bag := types.PropertyBag{
		"bogus:term": []any{map[string]any{"@value": "x", "property_id": "auto"}},
	}
	_, err := client.Create(context.Background(), "items", bag)
	if err == nil {
		t.Fatal("expected error for unknown term")
	}
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *Fault, got %T", err)
	}
	if fault.Kind != FaultValidation {
		t.Errorf("expected validation fault, got %v", fault.Kind)
	}
	if posted {
		t.Error("expected no write after failed resolution")
	}
}

func TestUpdate_PutsFullRepresentation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/api/items/5" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var bag map[string]any
		json.NewDecoder(r.Body).Decode(&bag)
		if bag["o:is_public"] != true {
			t.Errorf("expected merged field present, got %v", bag["o:is_public"])
		}
		json.NewEncoder(w).Encode(bag)
	}))

	bag := types.PropertyBag{"o:is_public": true}
	if _, err := client.Update(context.Background(), "items", "5", bag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_Path(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		if r.URL.Path != "/api/items/9" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.Delete(context.Background(), "items", "9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFaultClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   FaultKind
	}{
		{http.StatusUnauthorized, FaultPermission},
		{http.StatusForbidden, FaultPermission},
		{http.StatusNotFound, FaultNotFound},
		{http.StatusUnprocessableEntity, FaultValidation},
		{http.StatusBadRequest, FaultBadRequest},
		{http.StatusInternalServerError, FaultInternal},
		{http.StatusBadGateway, FaultInternal},
	}

	for _, tt := range tests {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]any{"errors": map[string]any{"error": "backend says no"}})
		}))

		_, err := client.Read(context.Background(), "items", "1")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		var fault *Fault
		if !errors.As(err, &fault) {
			t.Fatalf("status %d: expected *Fault, got %T", tt.status, err)
		}
		if fault.Kind != tt.kind {
			t.Errorf("status %d: expected kind %v, got %v", tt.status, tt.kind, fault.Kind)
		}
		if fault.Message != "backend says no" {
			t.Errorf("status %d: expected extracted message, got %q", tt.status, fault.Message)
		}
	}
}

func TestErrorMessage_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"wrapped error", `{"errors":{"error":"No such resource"}}`, "No such resource"},
		{"plain message", `{"message":"nope"}`, "nope"},
		{"raw text", `teapot`, "teapot"},
		{"field errors", `{"errors":{"o:email":["invalid"]}}`, `{"o:email":["invalid"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(http.StatusBadRequest, []byte(tt.body)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestErrorMessage_EmptyBody(t *testing.T) {
	got := errorMessage(http.StatusBadGateway, nil)
	if got != "backend returned status 502" {
		t.Errorf("unexpected fallback message %q", got)
	}
}
