// Package catalog registers the agent-facing MCP tool surface: one tool per
// dispatchable operation, grouped by resource type behind config toggles.
// Each handler shapes loosely-typed agent arguments into a dispatch envelope
// and forwards it to the gateway; nothing here talks to the backend directly.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/config"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/sdk/client"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

// Dispatcher is the slice of the gateway client the catalog needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req client.DispatchRequest) (*types.Result, error)
}

// Catalog owns the registration table and the dispatch adapter behind it.
type Catalog struct {
	dispatch Dispatcher
	tools    config.Tools
	log      *slog.Logger
}

func New(d Dispatcher, tools config.Tools, log *slog.Logger) *Catalog {
	return &Catalog{dispatch: d, tools: tools, log: log}
}

// ──────────────────────────────────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────────────────────────────────

// group describes one resource type's tool family. Tool names derive from
// singular/plural; labels feed the human-readable descriptions.
type group struct {
	resourceType string
	singular     string
	plural       string
	label        string
	labelPlural  string
	writeRole    string
	deleteRole   string
	create       bool
	batchCreate  bool
	batchDelete  bool
}

var (
	itemsGroup = group{
		resourceType: "items",
		singular:     "item",
		plural:       "items",
		label:        "item",
		labelPlural:  "items",
		writeRole:    "author role or above",
		deleteRole:   "editor role or above",
		create:       true,
		batchCreate:  true,
		batchDelete:  true,
	}
	itemSetsGroup = group{
		resourceType: "item_sets",
		singular:     "item_set",
		plural:       "item_sets",
		label:        "item set",
		labelPlural:  "item sets",
		writeRole:    "author role or above",
		deleteRole:   "editor role or above",
		create:       true,
		batchCreate:  true,
		batchDelete:  true,
	}
	// Media are ingested by the backend together with their files, so the
	// catalog exposes no create path for them.
	mediaGroup = group{
		resourceType: "media",
		singular:     "media",
		plural:       "media",
		label:        "media record",
		labelPlural:  "media records",
		writeRole:    "editor role or above",
		deleteRole:   "editor role or above",
		batchDelete:  true,
	}
	usersGroup = group{
		resourceType: "users",
		singular:     "user",
		plural:       "users",
		label:        "user",
		labelPlural:  "users",
		writeRole:    "global admin role",
		deleteRole:   "global admin role",
	}
)

// entry pairs a toggle with the registration it guards.
type entry struct {
	name     string
	enabled  bool
	register func(*mcp.Server)
}

func (c *Catalog) entries() []entry {
	return []entry{
		{"items", c.tools.Items, func(s *mcp.Server) { c.registerGroup(s, itemsGroup) }},
		{"item_sets", c.tools.ItemSets, func(s *mcp.Server) { c.registerGroup(s, itemSetsGroup) }},
		{"media", c.tools.Media, func(s *mcp.Server) { c.registerGroup(s, mediaGroup) }},
		{"users", c.tools.Users, c.registerUserTools},
		{"vocabularies", c.tools.Vocabularies, c.registerResources},
	}
}

// Register adds every enabled tool group to the server. Disabled groups are
// simply absent from the catalog; there is no runtime toggle check.
func (c *Catalog) Register(server *mcp.Server) {
	for _, e := range c.entries() {
		if !e.enabled {
			continue
		}
		e.register(server)
		c.log.Info("tool group registered", "group", e.name)
	}
}

// Tool annotation helpers
func boolPtr(b bool) *bool { return &b }

var (
	readOnly        = &mcp.ToolAnnotations{ReadOnlyHint: true}
	writeTool       = &mcp.ToolAnnotations{DestructiveHint: boolPtr(false)}
	writeIdempotent = &mcp.ToolAnnotations{DestructiveHint: boolPtr(false), IdempotentHint: true}
	destructive     = &mcp.ToolAnnotations{DestructiveHint: boolPtr(true), IdempotentHint: true}
)

func (c *Catalog) registerGroup(server *mcp.Server, g group) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_" + g.plural,
		Description: fmt.Sprintf("Search %s in the Omeka S backend. Query keys pass through to the backend search API "+
			"(fulltext_search, page, per_page, sort_by, sort_order, ...). Returns the matching representations plus the backend total.", g.labelPlural),
		Annotations: readOnly,
	}, c.searchHandler(g))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_" + g.singular,
		Description: fmt.Sprintf("Fetch one %s by id. Returns the full JSON-LD representation.", g.label),
		Annotations: readOnly,
	}, c.getHandler(g))

	if g.create {
		mcp.AddTool(server, &mcp.Tool{
			Name: "create_" + g.singular,
			Description: fmt.Sprintf("Create an %s. Use title/description for quick dcterms values, or supply full JSON-LD in data; "+
				"property values may omit property_id (the gateway resolves it from the term). Requires %s on the backend.", g.label, g.writeRole),
			Annotations: writeTool,
		}, c.createHandler(g))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "update_" + g.singular,
		Description: fmt.Sprintf("Update one %s by id. Supplied properties replace their current values; everything else on the "+
			"resource is preserved (read-merge-write). Requires %s on the backend.", g.label, g.writeRole),
		Annotations: writeIdempotent,
	}, c.updateHandler(g))

	mcp.AddTool(server, &mcp.Tool{
		Name: "delete_" + g.singular,
		Description: fmt.Sprintf("Delete one %s permanently. Destructive: ask the user for explicit approval first, then set "+
			"confirm=true. Requires %s on the backend.", g.label, g.deleteRole),
		Annotations: destructive,
	}, c.deleteHandler(g))

	if g.batchCreate {
		mcp.AddTool(server, &mcp.Tool{
			Name: "batch_create_" + g.plural,
			Description: fmt.Sprintf("Create several %s in one call, sequentially. A failed element does not stop the batch; "+
				"the result counts created and failed elements with per-index errors. Requires %s on the backend.", g.labelPlural, g.writeRole),
			Annotations: writeTool,
		}, c.batchCreateHandler(g))
	}

	if g.batchDelete {
		mcp.AddTool(server, &mcp.Tool{
			Name: "batch_delete_" + g.plural,
			Description: fmt.Sprintf("Delete several %s permanently, sequentially. Destructive: ask the user for explicit approval "+
				"first, then set confirm=true. A failed id does not stop the batch; failures are reported per id. Requires %s on the backend.", g.labelPlural, g.deleteRole),
			Annotations: destructive,
		}, c.batchDeleteHandler(g))
	}
}

func (c *Catalog) registerUserTools(server *mcp.Server) {
	g := usersGroup

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_users",
		Description: "Search user accounts in the Omeka S backend. Query keys pass through to the backend search API " +
			"(email, name, page, per_page, ...). Requires global admin role on the backend.",
		Annotations: readOnly,
	}, c.searchHandler(g))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_user",
		Description: "Fetch one user account by id. Requires global admin role on the backend.",
		Annotations: readOnly,
	}, c.getHandler(g))

	mcp.AddTool(server, &mcp.Tool{
		Name: "create_user",
		Description: "Create a user account. data carries the representation fields (o:name, o:email, o:role). " +
			"Requires global admin role on the backend.",
		Annotations: writeTool,
	}, c.createUserHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "update_user",
		Description: "Update one user account by id. Supplied fields replace their current values; everything else is " +
			"preserved (read-merge-write). Requires global admin role on the backend.",
		Annotations: writeIdempotent,
	}, c.updateUserHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "delete_user",
		Description: "Delete one user account permanently. Destructive: ask the user for explicit approval first, then set " +
			"confirm=true. Requires global admin role on the backend.",
		Annotations: destructive,
	}, c.deleteHandler(g))
}

// ──────────────────────────────────────────────────────────────────────────────
// Tool inputs
// ──────────────────────────────────────────────────────────────────────────────

type searchArgs struct {
	Query map[string]any `json:"query,omitempty" jsonschema:"Backend query parameters with scalar values, e.g. fulltext_search, page, per_page, sort_by"`
}

type getArgs struct {
	ID any `json:"id" jsonschema:"Resource id, numeric or string"`
}

type createArgs struct {
	Title       string         `json:"title,omitempty" jsonschema:"Shortcut for a dcterms:title literal; ignored when data already carries dcterms:title"`
	Description string         `json:"description,omitempty" jsonschema:"Shortcut for a dcterms:description literal; ignored when data already carries dcterms:description"`
	Data        map[string]any `json:"data,omitempty" jsonschema:"JSON-LD resource body; property values may omit property_id"`
}

type updateArgs struct {
	ID          any            `json:"id" jsonschema:"Resource id, numeric or string"`
	Title       string         `json:"title,omitempty" jsonschema:"Shortcut for a dcterms:title literal; ignored when data already carries dcterms:title"`
	Description string         `json:"description,omitempty" jsonschema:"Shortcut for a dcterms:description literal; ignored when data already carries dcterms:description"`
	Data        map[string]any `json:"data,omitempty" jsonschema:"JSON-LD properties to merge into the resource"`
}

type deleteArgs struct {
	ID      any  `json:"id" jsonschema:"Resource id, numeric or string"`
	Confirm bool `json:"confirm" jsonschema:"Set true only after the user explicitly approved this deletion"`
}

type batchCreateArgs struct {
	Items []map[string]any `json:"items" jsonschema:"JSON-LD resource bodies, created sequentially"`
}

type batchDeleteArgs struct {
	IDs     []any `json:"ids" jsonschema:"Resource ids to delete sequentially, numeric or string"`
	Confirm bool  `json:"confirm" jsonschema:"Set true only after the user explicitly approved these deletions"`
}

type userWriteArgs struct {
	Data map[string]any `json:"data" jsonschema:"User representation fields, e.g. o:name, o:email, o:role"`
}

type userUpdateArgs struct {
	ID   any            `json:"id" jsonschema:"User id, numeric or string"`
	Data map[string]any `json:"data" jsonschema:"Fields to merge into the current user"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────────────────────────────────

func (c *Catalog) searchHandler(g group) func(context.Context, *mcp.CallToolRequest, searchArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpSearch),
			ResourceType: g.resourceType,
			Query:        args.Query,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) getHandler(g group) func(context.Context, *mcp.CallToolRequest, getArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args getArgs) (*mcp.CallToolResult, any, error) {
		id := idString(args.ID)
		if id == "" {
			return nil, nil, errors.New("id is required")
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpGet),
			ResourceType: g.resourceType,
			ID:           id,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) createHandler(g group) func(context.Context, *mcp.CallToolRequest, createArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args createArgs) (*mcp.CallToolResult, any, error) {
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpCreate),
			ResourceType: g.resourceType,
			Data:         flattenConvenience(args.Data, args.Title, args.Description),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) updateHandler(g group) func(context.Context, *mcp.CallToolRequest, updateArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args updateArgs) (*mcp.CallToolResult, any, error) {
		id := idString(args.ID)
		if id == "" {
			return nil, nil, errors.New("id is required")
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpUpdate),
			ResourceType: g.resourceType,
			ID:           id,
			Data:         flattenConvenience(args.Data, args.Title, args.Description),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) deleteHandler(g group) func(context.Context, *mcp.CallToolRequest, deleteArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args deleteArgs) (*mcp.CallToolResult, any, error) {
		id := idString(args.ID)
		if id == "" {
			return nil, nil, errors.New("id is required")
		}
		if out, ok := c.gate(args.Confirm, "deleting "+g.label+" "+id); !ok {
			return nil, out, nil
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpDelete),
			ResourceType: g.resourceType,
			ID:           id,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) batchCreateHandler(g group) func(context.Context, *mcp.CallToolRequest, batchCreateArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args batchCreateArgs) (*mcp.CallToolResult, any, error) {
		if len(args.Items) == 0 {
			return nil, nil, errors.New("items is required and must not be empty")
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpBatchCreate),
			ResourceType: g.resourceType,
			Data:         args.Items,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) batchDeleteHandler(g group) func(context.Context, *mcp.CallToolRequest, batchDeleteArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args batchDeleteArgs) (*mcp.CallToolResult, any, error) {
		ids := make([]any, 0, len(args.IDs))
		for _, v := range args.IDs {
			if s := idString(v); s != "" {
				ids = append(ids, s)
			}
		}
		if len(ids) == 0 {
			return nil, nil, errors.New("ids is required and must not be empty")
		}
		if out, ok := c.gate(args.Confirm, fmt.Sprintf("deleting %d %s", len(ids), g.labelPlural)); !ok {
			return nil, out, nil
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpBatchDelete),
			ResourceType: g.resourceType,
			IDs:          ids,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) createUserHandler() func(context.Context, *mcp.CallToolRequest, userWriteArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args userWriteArgs) (*mcp.CallToolResult, any, error) {
		if len(args.Data) == 0 {
			return nil, nil, errors.New("data is required")
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpCreate),
			ResourceType: usersGroup.resourceType,
			Data:         args.Data,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

func (c *Catalog) updateUserHandler() func(context.Context, *mcp.CallToolRequest, userUpdateArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args userUpdateArgs) (*mcp.CallToolResult, any, error) {
		id := idString(args.ID)
		if id == "" {
			return nil, nil, errors.New("id is required")
		}
		if len(args.Data) == 0 {
			return nil, nil, errors.New("data is required")
		}
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpUpdate),
			ResourceType: usersGroup.resourceType,
			ID:           id,
			Data:         args.Data,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		return toolResult(res)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Result shaping
// ──────────────────────────────────────────────────────────────────────────────

// cancelled is the structured result of a declined destructive operation.
type cancelled struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// gate enforces the destructive-operation confirmation. It passes when the
// operator disabled confirmation in config or the agent set confirm=true;
// otherwise the tool returns a cancelled result and never dispatches.
func (c *Catalog) gate(confirmed bool, action string) (any, bool) {
	if !c.tools.ConfirmDestructive || confirmed {
		return nil, true
	}
	return cancelled{
		Cancelled: true,
		Message:   "Cancelled: " + action + " was not confirmed. Ask the user for explicit approval, then retry with confirm=true.",
	}, false
}

// toolResult converts a gateway result envelope into the MCP return shape:
// payloads become structured content, error envelopes become tool errors
// carrying the gateway's message and details verbatim.
func toolResult(res *types.Result) (*mcp.CallToolResult, any, error) {
	if res.Error {
		if res.Details != "" {
			return nil, nil, fmt.Errorf("%s: %s", res.Message, res.Details)
		}
		return nil, nil, errors.New(res.Message)
	}
	return nil, res.Data, nil
}

// idString normalizes an id argument: agents send ids as JSON numbers or
// strings interchangeably.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
