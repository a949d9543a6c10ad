package httpapi

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// errorBody is the JSON shape of every non-200 response.
type errorBody struct {
	Error           string  `json:"error"`
	Message         string  `json:"message,omitempty"`
	RetryAfterHours float64 `json:"retry_after_hours,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
}

// writeJSON encodes v and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

// writeError writes a standard error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
