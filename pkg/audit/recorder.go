package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder writes events through the store with structured logging.
// Recording is best-effort: a storage failure is logged and swallowed so an
// audit outage never fails the request being audited.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Record persists one event, assigning its id and timestamp when unset.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := r.store.Append(ctx, &ev); err != nil {
		r.log.ErrorContext(ctx, "audit append failed",
			"event_id", ev.ID,
			"action", ev.Action,
			"error", err,
		)
		return
	}
	r.log.DebugContext(ctx, "audit event recorded",
		"event_id", ev.ID,
		"action", ev.Action,
		"outcome", ev.Outcome,
		"hash", ev.Hash,
	)
}
