package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
)

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{OK: false, Error: code, Message: msg})
}

func statusFor(c service.Code) int {
	switch c {
	case service.CodeInvalid:
		return http.StatusBadRequest
	case service.CodeUnauthorized:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeRejected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto a status. Internal errors are
// logged and their detail is not returned.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	code := service.ErrorCode(err)
	if code == service.CodeInternal {
		logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, code.String(), "unexpected server error")
		return
	}
	writeError(w, statusFor(code), code.String(), err.Error())
}
