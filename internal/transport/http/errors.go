package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	httpmw "github.com/cwrk-planet/karaoke-service/internal/transport/http/middleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotApproved):
		return http.StatusForbidden, "not_approved"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrRoomInactive):
		return http.StatusConflict, "room_inactive"
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		httpmw.L(r.Context()).Error("handler."+op, slog.Any("err", err))
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		// детали инфраструктурных ошибок наружу не отдаём
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: msg}})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{Code: "invalid_input", Message: msg}})
}
