package server

import (
	"errors"
	"net/http"

	"github.com/loykin/warden/internal/api"
)

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// httpStatus maps control-API error kinds onto HTTP status codes.
func httpStatus(err error) int {
	var le *api.LaunchError
	var ioe *api.IOError
	switch {
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrNameTaken), errors.Is(err, api.ErrIDTaken),
		errors.Is(err, api.ErrTableNotEmpty):
		return http.StatusConflict
	case errors.Is(err, api.ErrInvalidArgs), errors.Is(err, api.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrForbiddenForAgent):
		return http.StatusForbidden
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrPeerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, api.ErrPeerUnreachable):
		return http.StatusBadGateway
	case errors.As(err, &le), errors.As(err, &ioe):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
