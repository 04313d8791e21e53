package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/sdk/client"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

// registerResources adds the read-only reference resources agents consult
// before writing JSON-LD: the installed vocabularies and the configured
// resource templates. Both read through the same dispatch search path as
// the tools, so they honor the gateway's session and rate limits.
func (c *Catalog) registerResources(server *mcp.Server) {
	server.AddResource(&mcp.Resource{
		URI:         "omeka://vocabularies",
		Name:        "vocabularies",
		Description: "Installed RDF vocabularies with their prefixes; term keys in resource data must use one of these prefixes.",
		MIMEType:    "application/json",
	}, c.resourceHandler("vocabularies"))

	server.AddResource(&mcp.Resource{
		URI:         "omeka://resource-templates",
		Name:        "resource-templates",
		Description: "Configured resource templates: the property sets curators expect on new items.",
		MIMEType:    "application/json",
	}, c.resourceHandler("resource_templates"))
}

func (c *Catalog) resourceHandler(resourceType string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		res, err := c.dispatch.Dispatch(ctx, client.DispatchRequest{
			Operation:    string(types.OpSearch),
			ResourceType: resourceType,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway dispatch failed: %w", err)
		}
		if res.Error {
			return nil, errors.New(res.Message)
		}
		body, err := json.Marshal(res.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s resource: %w", resourceType, err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(body),
			}},
		}, nil
	}
}
