package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/tree"
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

// statusFor maps a failed result to an HTTP status.
func statusFor(err error) int {
	var verr validation.Errors
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrPersistence):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeResult writes res with okStatus on success and the mapped error status
// otherwise. act is included when the operation asked for a follow-up.
func writeResult(w http.ResponseWriter, okStatus int, res tree.Result, act *tree.Action) {
	body := ResultResponse{Result: res}
	if act != nil && act.Kind != tree.ActionNone {
		body.Action = act
	}
	if res.Success {
		writeJSON(w, okStatus, body)
		return
	}
	status := statusFor(res.Err)
	if status >= http.StatusInternalServerError {
		slog.Error("tree operation failed", slog.String("error", res.Message))
	}
	writeJSON(w, status, body)
}
