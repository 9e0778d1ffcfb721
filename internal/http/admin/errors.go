package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

// writeErr mapea la taxonomía de errores del core a status HTTP.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNoSuchRealm),
		errors.Is(err, core.ErrNoSuchProvider),
		errors.Is(err, core.ErrNoSuchAuthority):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrDuplicateProvider),
		errors.Is(err, core.ErrRealmExists),
		errors.Is(err, core.ErrAlreadyRegistered):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, core.ErrInvalidSlug),
		errors.Is(err, core.ErrImmutableField):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, core.ErrRegistrationFailure):
		writeJSONError(w, http.StatusBadGateway, "registration_failed", err.Error())
	default:
		logger.From(r.Context()).Error("internal error", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
