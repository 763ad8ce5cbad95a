package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/lorekeeper/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error. Server-side failures are logged and
// reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		logger.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody(http.StatusText(status)))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Input("invalid JSON body")
	}
	return nil
}
