// Package csrf issues and validates the anti-forgery tokens that guard
// dispatch calls.
package csrf

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const maxTokens = 10_000

// TokenStore issues anti-forgery tokens and checks presented ones.
// Handlers depend on this interface so tests can swap in a fixed store.
type TokenStore interface {
	Issue() (string, error)
	Validate(token string) bool
}

// MemoryStore keeps SHA-256 digests of issued tokens with a uniform TTL.
// Raw tokens are never retained.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[[32]byte]time.Time
	order  [][32]byte
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore returns a store whose tokens expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tokens: make(map[[32]byte]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a random 256-bit token, records its digest, and returns the
// hex form to hand to the caller.
func (s *MemoryStore) Issue() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("csrf.Issue read random: %w", err)
	}
	token := hex.EncodeToString(raw[:])
	digest := sha256.Sum256([]byte(token))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	if len(s.tokens) >= maxTokens {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.tokens, oldest)
	}
	s.tokens[digest] = s.now().Add(s.ttl)
	s.order = append(s.order, digest)
	return token, nil
}

// Validate reports whether token was issued by this store and has not
// expired. Tokens stay valid until expiry, so one session token covers
// many dispatch calls.
func (s *MemoryStore) Validate(token string) bool {
	if token == "" {
		return false
	}
	digest := sha256.Sum256([]byte(token))

	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[digest]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.tokens, digest)
		return false
	}
	return true
}

// prune drops expired entries from the front of the issue order. Uniform
// TTL means insertion order is expiry order.
func (s *MemoryStore) prune() {
	now := s.now()
	for len(s.order) > 0 {
		exp, ok := s.tokens[s.order[0]]
		if ok && !now.After(exp) {
			return
		}
		delete(s.tokens, s.order[0])
		s.order = s.order[1:]
	}
}
