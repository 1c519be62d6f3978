package handler

import (
	"errors"

	"membersync/internal/remote"
	"membersync/pkg/apierror"
)

// mapRemoteError translates a classified remote failure into the API error
// envelope. Messages arriving here are already sanitized by the executor.
func mapRemoteError(err error) *apierror.Error {
	var rerr *remote.Error
	if !errors.As(err, &rerr) {
		return apierror.InternalError("")
	}

	switch rerr.Type {
	case remote.ErrValidation:
		return apierror.BadRequest(rerr.Message)
	case remote.ErrUnauthorized:
		return apierror.Unauthorized(rerr.Message)
	case remote.ErrNotFound:
		return apierror.NotFound(rerr.Message)
	case remote.ErrConflict:
		return apierror.Conflict(rerr.Message)
	case remote.ErrRateLimit:
		return apierror.TooManyRequests(rerr.Message)
	case remote.ErrNetwork:
		return apierror.ServiceUnavailable(rerr.Message)
	case remote.ErrServer:
		return apierror.BadGateway(rerr.Message)
	default:
		return apierror.InternalError(rerr.Message)
	}
}
