// Package types defines the operation envelope, property-bag, and result
// schema shared by the gateway, the dispatcher, and the MCP catalog.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ──────────────────────────────────────────────────────────────────────────────
// Limits
// ──────────────────────────────────────────────────────────────────────────────

const (
	MaxEnvelopeBytes   = 1 << 20 // 1 MiB
	MaxBatchItems      = 100
	MaxQueryParams     = 64
	MaxResourceTypeLen = 64
)

// ──────────────────────────────────────────────────────────────────────────────
// Op — the closed set of dispatchable operations
// ──────────────────────────────────────────────────────────────────────────────

// Op enumerates every operation the dispatcher understands. The set is
// closed: ParseEnvelope rejects anything else before a backend call can
// happen, so a switch over these constants is exhaustive.
type Op string

const (
	OpSearch      Op = "search"
	OpGet         Op = "get"
	OpCreate      Op = "create"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpBatchCreate Op = "batch_create"
	OpBatchDelete Op = "batch_delete"
)

// ParseOp maps a wire string onto the closed operation set.
func ParseOp(s string) (Op, bool) {
	switch Op(s) {
	case OpSearch, OpGet, OpCreate, OpUpdate, OpDelete, OpBatchCreate, OpBatchDelete:
		return Op(s), true
	}
	return "", false
}

// ──────────────────────────────────────────────────────────────────────────────
// ID — opaque resource identifier
// ──────────────────────────────────────────────────────────────────────────────

// ID is a resource identifier. The backend uses numeric ids but agents send
// them as JSON numbers or strings interchangeably, so both forms decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// ──────────────────────────────────────────────────────────────────────────────
// Envelope — the parsed, validated operation request
// ──────────────────────────────────────────────────────────────────────────────

// Envelope is a fully validated operation request. Instances come from
// ParseEnvelope only; handler code never sees a half-checked envelope.
type Envelope struct {
	Operation    Op
	ResourceType string

	ID    ID             // get, update, delete
	Query map[string]any // search; scalar values only
	Bag   PropertyBag    // create, update
	Batch []json.RawMessage
	IDs   []ID
}

// rawEnvelope mirrors the wire shape ahead of validation.
type rawEnvelope struct {
	Operation    string          `json:"operation"`
	ResourceType string          `json:"resourceType"`
	ID           ID              `json:"id,omitempty"`
	Query        map[string]any  `json:"query,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	IDs          []ID            `json:"ids,omitempty"`
}

// ParseEnvelope decodes and validates a request body. Every failure maps to
// a 400 APIError; nothing here touches the backend.
func ParseEnvelope(body []byte) (*Envelope, *APIError) {
	if len(body) > MaxEnvelopeBytes {
		return nil, ErrBadRequest(fmt.Sprintf("body exceeds %d bytes", MaxEnvelopeBytes))
	}
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrBadRequest("malformed JSON body: " + err.Error())
	}

	opStr := strings.ToLower(strings.TrimSpace(raw.Operation))
	resourceType := strings.ToLower(strings.TrimSpace(raw.ResourceType))
	if opStr == "" {
		return nil, ErrBadRequest("operation is required")
	}
	if resourceType == "" {
		return nil, ErrBadRequest("resourceType is required")
	}
	if err := validateResourceType(resourceType); err != nil {
		return nil, ErrBadRequest(err.Error())
	}
	op, ok := ParseOp(opStr)
	if !ok {
		return nil, ErrBadRequest(fmt.Sprintf("unknown operation %q", raw.Operation))
	}

	if len(raw.Query) > MaxQueryParams {
		return nil, ErrBadRequest(fmt.Sprintf("query exceeds %d parameters", MaxQueryParams))
	}
	for k, v := range raw.Query {
		switch v.(type) {
		case string, float64, bool, nil:
		default:
			return nil, ErrBadRequest(fmt.Sprintf("query.%s must be a scalar", k))
		}
	}

	env := &Envelope{
		Operation:    op,
		ResourceType: resourceType,
		ID:           raw.ID,
		Query:        raw.Query,
		IDs:          raw.IDs,
	}

	switch op {
	case OpSearch:
	case OpGet:
		if env.ID == "" {
			return nil, ErrBadRequest("id is required for get")
		}
	case OpCreate:
		env.Bag = decodeBag(raw.Data)
	case OpUpdate:
		if env.ID == "" {
			return nil, ErrBadRequest("id is required for update")
		}
		env.Bag = decodeBag(raw.Data)
	case OpDelete:
		if env.ID == "" {
			return nil, ErrBadRequest("id is required for delete")
		}
	case OpBatchCreate:
		env.Batch = decodeBatch(raw.Data)
		if len(env.Batch) > MaxBatchItems {
			return nil, ErrBadRequest(fmt.Sprintf("batch exceeds %d items", MaxBatchItems))
		}
	case OpBatchDelete:
		if len(env.IDs) > MaxBatchItems {
			return nil, ErrBadRequest(fmt.Sprintf("ids exceeds %d entries", MaxBatchItems))
		}
	}
	return env, nil
}

// decodeBag tolerates anything that is not a JSON object by degrading to an
// empty bag; create and update treat absent or malformed data that way.
func decodeBag(raw json.RawMessage) PropertyBag {
	if len(raw) == 0 {
		return PropertyBag{}
	}
	var bag PropertyBag
	if err := json.Unmarshal(raw, &bag); err != nil || bag == nil {
		return PropertyBag{}
	}
	return bag
}

// decodeBatch keeps elements raw so per-item decode failures surface as
// per-item errors during dispatch instead of aborting the whole batch.
func decodeBatch(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// validateResourceType keeps the type path-safe: it is interpolated into the
// backend URL.
func validateResourceType(rt string) error {
	if len(rt) > MaxResourceTypeLen {
		return fmt.Errorf("resourceType exceeds %d bytes", MaxResourceTypeLen)
	}
	for _, r := range rt {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return fmt.Errorf("resourceType contains invalid character %q", r)
	}
	return nil
}
