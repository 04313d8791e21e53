package dispatch

import (
	"errors"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/omeka"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

// MapBackendError classifies a backend failure into the response taxonomy.
// Permission and not-found failures get a generic message with the
// backend's wording demoted to details; validation and bad-request
// failures surface the backend message verbatim; everything else, including
// transport errors, maps to a 500 with the error text verbatim.
func MapBackendError(err error) *types.APIError {
	var fault *omeka.Fault
	if errors.As(err, &fault) {
		switch fault.Kind {
		case omeka.FaultPermission:
			return types.ErrPermissionDenied(fault.Message)
		case omeka.FaultNotFound:
			return types.ErrNotFound(fault.Message)
		case omeka.FaultValidation:
			return types.ErrValidation(fault.Message)
		case omeka.FaultBadRequest:
			return types.ErrBadRequest(fault.Message)
		case omeka.FaultInternal:
			return types.ErrInternal(fault.Message)
		}
	}
	return types.ErrInternal(err.Error())
}
