package csrf

import (
	"testing"
	"time"
)

func TestMemoryStore_IssueAndValidate(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	token, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}
	if !s.Validate(token) {
		t.Error("freshly issued token should validate")
	}
	// Tokens are reusable within their TTL.
	if !s.Validate(token) {
		t.Error("token should validate on repeated checks")
	}
}

func TestMemoryStore_RejectsUnknownToken(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	if _, err := s.Issue(); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if s.Validate("deadbeef") {
		t.Error("unknown token should not validate")
	}
	if s.Validate("") {
		t.Error("empty token should not validate")
	}
}

func TestMemoryStore_TokensAreUnique(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	seen := make(map[string]bool)
	for range 20 {
		token, err := s.Issue()
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return current }

	token, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !s.Validate(token) {
		t.Fatal("token should validate before expiry")
	}

	current = current.Add(2 * time.Minute)
	if s.Validate(token) {
		t.Error("token should not validate after expiry")
	}
	// Expired entries are dropped, not just hidden.
	if len(s.tokens) != 0 {
		t.Errorf("expired token still stored, %d entries", len(s.tokens))
	}
}

func TestMemoryStore_PruneOnIssue(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return current }

	for range 5 {
		if _, err := s.Issue(); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}

	current = current.Add(2 * time.Minute)
	fresh, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(s.tokens) != 1 {
		t.Errorf("expected only the fresh token retained, got %d entries", len(s.tokens))
	}
	if !s.Validate(fresh) {
		t.Error("fresh token should validate")
	}
}

func TestMemoryStore_CapEvictsOldest(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	first, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for range maxTokens {
		if _, err := s.Issue(); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}

	if s.Validate(first) {
		t.Error("oldest token should be evicted once the cap is reached")
	}
	if len(s.tokens) > maxTokens {
		t.Errorf("store grew past cap: %d entries", len(s.tokens))
	}
}
