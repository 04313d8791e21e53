package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event actions.
const (
	ActionDispatch     = "dispatch"
	ActionSessionIssue = "session.issue"
)

// Event is one audited gateway action. Hash chains over the canonical form
// of every field except the chain fields themselves.
type Event struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	Principal    string    `json:"principal,omitempty"`
	Action       string    `json:"action"`
	Operation    string    `json:"operation,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Status       int       `json:"status"`
	Detail       string    `json:"detail,omitempty"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
	Canon    []byte `json:"-"`
}

// chainLockID serialises chain appends across writers. The chain is global;
// a fork would make VerifyChain fail for honest events.
const chainLockID int64 = 0x6f6d656b61617564 // "omekaaud"

// Store persists audit events in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the audit table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			event_id      UUID PRIMARY KEY,
			at            TIMESTAMPTZ NOT NULL,
			principal     TEXT NOT NULL DEFAULT '',
			action        TEXT NOT NULL,
			operation     TEXT NOT NULL DEFAULT '',
			resource_type TEXT NOT NULL DEFAULT '',
			resource_id   TEXT NOT NULL DEFAULT '',
			outcome       TEXT NOT NULL,
			status        INT NOT NULL,
			detail        TEXT NOT NULL DEFAULT '',
			canon         BYTEA NOT NULL,
			hash          TEXT NOT NULL,
			prev_hash     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS audit_events_at_idx ON audit_events (at);
	`)
	if err != nil {
		return fmt.Errorf("audit.Migrate: %w", err)
	}
	return nil
}

// Ping verifies store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append writes one event, linking it to the chain tip. An advisory lock
// serialises appends so concurrent writers cannot fork the chain. The
// event's PrevHash, Hash, and Canon fields are filled in place.
func (s *Store) Append(ctx context.Context, ev *Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit.Append begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockID); err != nil {
		return fmt.Errorf("audit.Append advisory lock: %w", err)
	}

	prevHash, err := lastHashTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("audit.Append last hash: %w", err)
	}

	canon, err := CanonicalJSON(map[string]any{
		"id":            ev.ID,
		"time":          ev.Time.UTC().Format(time.RFC3339Nano),
		"principal":     ev.Principal,
		"action":        ev.Action,
		"operation":     ev.Operation,
		"resource_type": ev.ResourceType,
		"resource_id":   ev.ResourceID,
		"outcome":       ev.Outcome,
		"status":        ev.Status,
		"detail":        ev.Detail,
	})
	if err != nil {
		return fmt.Errorf("audit.Append canonical: %w", err)
	}

	ev.PrevHash = prevHash
	ev.Hash = ChainHash(prevHash, canon)
	ev.Canon = canon

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (
			event_id, at, principal, action, operation,
			resource_type, resource_id, outcome, status, detail,
			canon, hash, prev_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ev.ID, ev.Time, ev.Principal, ev.Action, ev.Operation,
		ev.ResourceType, ev.ResourceID, ev.Outcome, ev.Status, ev.Detail,
		ev.Canon, ev.Hash, ev.PrevHash,
	)
	if err != nil {
		return fmt.Errorf("audit.Append insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("audit.Append commit: %w", err)
	}
	return nil
}

// EventsBefore returns events older than the cutoff in chain order.
func (s *Store) EventsBefore(ctx context.Context, cutoff time.Time) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, at, principal, action, operation,
		       resource_type, resource_id, outcome, status, detail,
		       canon, hash, prev_hash
		FROM audit_events
		WHERE at < $1
		ORDER BY at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("audit.EventsBefore: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.ID, &ev.Time, &ev.Principal, &ev.Action, &ev.Operation,
			&ev.ResourceType, &ev.ResourceID, &ev.Outcome, &ev.Status, &ev.Detail,
			&ev.Canon, &ev.Hash, &ev.PrevHash,
		); err != nil {
			return nil, fmt.Errorf("audit.EventsBefore scan: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit.EventsBefore iteration: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events older than the cutoff, returning the count.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_events WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit.DeleteBefore: %w", err)
	}
	return tag.RowsAffected(), nil
}

func lastHashTx(ctx context.Context, tx pgx.Tx) (string, error) {
	row := tx.QueryRow(ctx, `
		SELECT hash FROM audit_events
		ORDER BY at DESC LIMIT 1`)

	var h string
	err := row.Scan(&h)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return h, err
}
