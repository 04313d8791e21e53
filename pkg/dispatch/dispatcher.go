// Package dispatch translates validated operation envelopes into backend
// calls, enforcing merge-on-update and batch isolation.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/audit"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

// ResourceAPI is the backend collaborator surface. The dispatcher performs
// no I/O of its own; everything it needs from the backend fits in these
// five primitives.
type ResourceAPI interface {
	Search(ctx context.Context, resourceType string, query map[string]any) (*types.SearchResult, error)
	Read(ctx context.Context, resourceType string, id types.ID) (map[string]any, error)
	Create(ctx context.Context, resourceType string, bag types.PropertyBag) (map[string]any, error)
	Update(ctx context.Context, resourceType string, id types.ID, bag types.PropertyBag) (map[string]any, error)
	Delete(ctx context.Context, resourceType string, id types.ID) error
}

// Recorder receives one audit event per dispatched envelope. A nil Recorder
// disables auditing without changing dispatch behavior.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// vocabResourceTypes lists the resource types whose data carries vocabulary
// properties; only their bags normalize before writes.
var vocabResourceTypes = map[string]bool{
	"items":       true,
	"item_sets":   true,
	"media":       true,
	"annotations": true,
}

// Dispatcher executes envelopes. It holds no per-request state and is safe
// for concurrent use.
type Dispatcher struct {
	api      ResourceAPI
	recorder Recorder
	log      *slog.Logger
}

func New(api ResourceAPI, recorder Recorder, log *slog.Logger) *Dispatcher {
	return &Dispatcher{api: api, recorder: recorder, log: log}
}

// Dispatch runs one envelope to completion and always returns a Result;
// backend failures are classified, never propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, env *types.Envelope) *types.Result {
	start := time.Now()
	result := d.execute(ctx, env)
	d.observe(ctx, env, result, time.Since(start))
	return result
}

func (d *Dispatcher) execute(ctx context.Context, env *types.Envelope) *types.Result {
	switch env.Operation {
	case types.OpSearch:
		return d.search(ctx, env)
	case types.OpGet:
		return d.get(ctx, env)
	case types.OpCreate:
		return d.create(ctx, env)
	case types.OpUpdate:
		return d.update(ctx, env)
	case types.OpDelete:
		return d.delete(ctx, env)
	case types.OpBatchCreate:
		return d.batchCreate(ctx, env)
	case types.OpBatchDelete:
		return d.batchDelete(ctx, env)
	}
	// ParseEnvelope owns the closed operation set; reaching here means an
	// envelope was built by hand with a bad Op.
	return types.Fail(types.ErrBadRequest(fmt.Sprintf("unknown operation %q", env.Operation)))
}

func (d *Dispatcher) search(ctx context.Context, env *types.Envelope) *types.Result {
	query := env.Query
	if query == nil {
		query = map[string]any{}
	}
	result, err := d.api.Search(ctx, env.ResourceType, query)
	if err != nil {
		return types.Fail(MapBackendError(err))
	}
	return types.OK(result)
}

func (d *Dispatcher) get(ctx context.Context, env *types.Envelope) *types.Result {
	rep, err := d.api.Read(ctx, env.ResourceType, env.ID)
	if err != nil {
		return types.Fail(MapBackendError(err))
	}
	return types.OK(rep)
}

func (d *Dispatcher) create(ctx context.Context, env *types.Envelope) *types.Result {
	bag := env.Bag
	if bag == nil {
		bag = types.PropertyBag{}
	}
	if vocabResourceTypes[env.ResourceType] {
		bag = bag.Normalize()
	}
	rep, err := d.api.Create(ctx, env.ResourceType, bag)
	if err != nil {
		return types.Fail(MapBackendError(err))
	}
	return types.OK(rep)
}

// update reads the current representation and shallow-merges the caller's
// data over it before writing. The backend write replaces the whole
// representation, so skipping the merge would erase every field the caller
// did not restate. A failed read aborts the update with the read's error.
func (d *Dispatcher) update(ctx context.Context, env *types.Envelope) *types.Result {
	current, err := d.api.Read(ctx, env.ResourceType, env.ID)
	if err != nil {
		return types.Fail(MapBackendError(err))
	}
	patch := env.Bag
	if patch == nil {
		patch = types.PropertyBag{}
	}
	if vocabResourceTypes[env.ResourceType] {
		patch = patch.Normalize()
	}
	rep, err := d.api.Update(ctx, env.ResourceType, env.ID, mergeBags(current, patch))
	if err != nil {
		return types.Fail(MapBackendError(err))
	}
	return types.OK(rep)
}

func (d *Dispatcher) delete(ctx context.Context, env *types.Envelope) *types.Result {
	if err := d.api.Delete(ctx, env.ResourceType, env.ID); err != nil {
		return types.Fail(MapBackendError(err))
	}
	return types.OK(types.DeleteResult{Deleted: true, ID: env.ID})
}

// batchCreate iterates strictly sequentially with per-item isolation: a
// failing element is recorded and iteration continues; earlier successes
// are never rolled back.
func (d *Dispatcher) batchCreate(ctx context.Context, env *types.Envelope) *types.Result {
	out := types.BatchCreateResult{Items: []any{}, Errors: []types.BatchItemError{}}
	for i, raw := range env.Batch {
		bag, ok := decodeBatchElement(raw)
		if !ok {
			out.FailedCount++
			out.Errors = append(out.Errors, types.BatchItemError{Index: i, Message: "item must be a JSON object"})
			continue
		}
		if vocabResourceTypes[env.ResourceType] {
			bag = bag.Normalize()
		}
		rep, err := d.api.Create(ctx, env.ResourceType, bag)
		if err != nil {
			out.FailedCount++
			out.Errors = append(out.Errors, types.BatchItemError{Index: i, Message: MapBackendError(err).Message})
			continue
		}
		out.CreatedCount++
		out.Items = append(out.Items, rep)
	}
	out.Success = len(out.Errors) == 0
	return types.OK(out)
}

// batchDelete applies the same isolation policy over ids.
func (d *Dispatcher) batchDelete(ctx context.Context, env *types.Envelope) *types.Result {
	out := types.BatchDeleteResult{DeletedIDs: []types.ID{}, Errors: []types.BatchIDError{}}
	for _, id := range env.IDs {
		if id == "" {
			out.FailedCount++
			out.Errors = append(out.Errors, types.BatchIDError{ID: id, Message: "id must not be empty"})
			continue
		}
		if err := d.api.Delete(ctx, env.ResourceType, id); err != nil {
			out.FailedCount++
			out.Errors = append(out.Errors, types.BatchIDError{ID: id, Message: MapBackendError(err).Message})
			continue
		}
		out.DeletedCount++
		out.DeletedIDs = append(out.DeletedIDs, id)
	}
	out.Success = len(out.Errors) == 0
	return types.OK(out)
}

func (d *Dispatcher) observe(ctx context.Context, env *types.Envelope, result *types.Result, elapsed time.Duration) {
	outcome := "success"
	if result.Error {
		outcome = "error"
	}
	d.log.InfoContext(ctx, "operation dispatched",
		"operation", env.Operation,
		"resource_type", env.ResourceType,
		"resource_id", env.ID.String(),
		"outcome", outcome,
		"status", result.HTTPStatus,
		"duration_ms", elapsed.Milliseconds(),
	)
	if d.recorder == nil {
		return
	}
	d.recorder.Record(ctx, audit.Event{
		Action:       audit.ActionDispatch,
		Operation:    string(env.Operation),
		ResourceType: env.ResourceType,
		ResourceID:   env.ID.String(),
		Outcome:      outcome,
		Status:       result.HTTPStatus,
		Detail:       result.Message,
	})
}

func mergeBags(current map[string]any, patch types.PropertyBag) types.PropertyBag {
	merged := make(types.PropertyBag, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

func decodeBatchElement(raw json.RawMessage) (types.PropertyBag, bool) {
	var bag types.PropertyBag
	if err := json.Unmarshal(raw, &bag); err != nil || bag == nil {
		return nil, false
	}
	return bag, true
}
