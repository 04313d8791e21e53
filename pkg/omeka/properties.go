package omeka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

const propertyCacheTTL = time.Hour

// resolveBag returns a copy of the bag with every property_id "auto"
// sentinel replaced by the numeric id the backend assigns to that term.
// Records carrying an explicit reference, reserved keys, and non-record
// values pass through untouched. An unresolvable term raises a validation
// fault naming the term; nothing is written in that case.
func (c *Client) resolveBag(ctx context.Context, bag types.PropertyBag) (types.PropertyBag, error) {
	out := make(types.PropertyBag, len(bag))
	// Per-bag memo: the shared cache admits entries asynchronously, so
	// repeated terms within one bag would otherwise look up twice.
	memo := make(map[string]int64)
	for key, value := range bag {
		if types.IsReservedKey(key) {
			out[key] = value
			continue
		}
		list, ok := value.([]any)
		if !ok {
			out[key] = value
			continue
		}
		resolved := make([]any, len(list))
		for i, element := range list {
			record, ok := element.(map[string]any)
			if !ok {
				resolved[i] = element
				continue
			}
			if ref, _ := record[types.PropertyRefKey].(string); ref != types.PropertyRefAuto {
				resolved[i] = element
				continue
			}
			propertyID, ok := memo[key]
			if !ok {
				var err error
				propertyID, err = c.lookupProperty(ctx, key)
				if err != nil {
					return nil, err
				}
				memo[key] = propertyID
			}
			withID := make(map[string]any, len(record))
			for rk, rv := range record {
				withID[rk] = rv
			}
			withID[types.PropertyRefKey] = propertyID
			resolved[i] = withID
		}
		out[key] = resolved
	}
	return out, nil
}

// lookupProperty maps a vocabulary term to its numeric property id,
// memoized across requests.
func (c *Client) lookupProperty(ctx context.Context, term string) (int64, error) {
	if id, ok := c.propCache.Get(term); ok {
		return id, nil
	}
	body, _, err := c.do(ctx, http.MethodGet, "/api/properties", url.Values{"term": {term}}, nil)
	if err != nil {
		return 0, err
	}
	var properties []struct {
		ID int64 `json:"o:id"`
	}
	if err := json.Unmarshal(body, &properties); err != nil {
		return 0, fmt.Errorf("omeka properties decode: %w", err)
	}
	if len(properties) == 0 || properties[0].ID == 0 {
		return 0, &Fault{
			Kind:    FaultValidation,
			Status:  http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("unknown property term %q", term),
		}
	}
	c.propCache.SetWithTTL(term, properties[0].ID, 1, propertyCacheTTL)
	c.log.DebugContext(ctx, "resolved property term", "term", term, "property_id", properties[0].ID)
	return properties[0].ID, nil
}
