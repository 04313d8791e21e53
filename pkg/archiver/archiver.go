// Package archiver bundles aged audit events into object storage.
package archiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/audit"
)

// EventStore is the slice of the audit store the archiver needs.
type EventStore interface {
	EventsBefore(ctx context.Context, cutoff time.Time) ([]audit.Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

type Service struct {
	store    EventStore
	uploader Uploader
	log      *slog.Logger
}

func New(store EventStore, uploader Uploader, log *slog.Logger) *Service {
	return &Service{store: store, uploader: uploader, log: log}
}

// record is one bundle line: the event plus its canonical bytes so the
// hash links can be re-verified offline.
type record struct {
	audit.Event
	Canon []byte `json:"canon"`
}

// Run archives every event older than cutoff as a JSONL bundle and prunes
// the archived rows. The segment's hash links are checked first; a broken
// chain aborts the run before anything is uploaded or deleted.
func (s *Service) Run(ctx context.Context, cutoff time.Time) (string, int, error) {
	events, err := s.store.EventsBefore(ctx, cutoff)
	if err != nil {
		return "", 0, fmt.Errorf("archiver.Run load events: %w", err)
	}
	if len(events) == 0 {
		return "", 0, nil
	}

	chain := make([]audit.ChainEvent, len(events))
	for i, ev := range events {
		chain[i] = audit.ChainEvent{EventID: ev.ID, Hash: ev.Hash, Canon: ev.Canon}
	}
	if err := audit.VerifyChain(events[0].PrevHash, chain); err != nil {
		return "", 0, fmt.Errorf("archiver.Run verify segment: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(record{Event: ev, Canon: ev.Canon}); err != nil {
			return "", 0, fmt.Errorf("archiver.Run encode event %s: %w", ev.ID, err)
		}
	}

	tip := events[len(events)-1]
	now := time.Now().UTC()
	key := fmt.Sprintf("audit/%04d/%02d/%02d/%s.jsonl", now.Year(), now.Month(), now.Day(), tip.Hash)
	if err := s.uploader.Upload(ctx, key, buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("archiver.Run upload %s: %w", key, err)
	}

	pruned, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return key, len(events), fmt.Errorf("archiver.Run prune: %w", err)
	}
	if pruned != int64(len(events)) {
		s.log.WarnContext(ctx, "pruned count differs from archived count",
			"archived", len(events), "pruned", pruned)
	}
	return key, len(events), nil
}
