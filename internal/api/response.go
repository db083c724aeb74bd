package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// writeJSON writes a JSON response with the given status code.
// Encoding happens into a buffer first so headers are only sent after a
// successful encode.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// errorBody is the JSON error shape shared by non-streaming endpoints.
type errorBody struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	OpenLogin bool   `json:"openLogin,omitempty"`
	// OpenSelectProvider tells the UI to offer a model switch; set when the
	// input exceeded the selected model's context budget.
	OpenSelectProvider bool `json:"openSelectProvider,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	writeJSON(w, status, errorBody{Message: message}, logger)
}
