package httpx

import (
	"errors"
	"net/http"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// RespondError maps synchronizer error kinds to problem responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrLocked):
		Problem(w, http.StatusConflict, "Sync Running", err.Error())
	case errors.Is(err, shared.ErrPrecondition):
		Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	case errors.Is(err, shared.ErrGateway), errors.Is(err, shared.ErrStore):
		Problem(w, http.StatusServiceUnavailable, "Dependency Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
