package api

import (
	"encoding/json"
	"net/http"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: errorPayload{Code: code, Message: message}})
}

// writeAppError renders err using its kind. Errors without a kind become a
// generic 500 and the cause is logged, never returned to the client.
func writeAppError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, errorBody{Error: errorPayload{
		Code:    string(appErr.Kind),
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
