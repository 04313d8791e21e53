package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChainHash computes the next hash in the event chain.
//
//	hash = SHA-256( prevHash || canonicalEvent )
func ChainHash(prevHash string, canon []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainEvent is the minimal shape needed for verification.
type ChainEvent struct {
	EventID string
	Hash    string
	Canon   []byte
}

// VerifyChain walks a chronological event segment and verifies each hash
// link. prev is the hash preceding the first event; pass "" when the
// segment starts at the chain origin.
func VerifyChain(prev string, events []ChainEvent) error {
	for i, ev := range events {
		expected := ChainHash(prev, ev.Canon)
		if ev.Hash != expected {
			return fmt.Errorf("chain broken at index %d (event %s): expected %s, got %s",
				i, ev.EventID, expected, ev.Hash)
		}
		prev = ev.Hash
	}
	return nil
}
