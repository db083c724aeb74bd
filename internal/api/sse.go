package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SSE event types shared by the streaming endpoints.
const (
	eventPartial = "partial" // incremental render candidate (generate)
	eventDelta   = "delta"   // raw text delta (improve)
	eventDone    = "done"    // stream completed successfully
	eventError   = "error"   // stream failed
)

// partialPayload carries one render candidate. For mode "full" HTML is the
// whole force-closed document; for mode "body" it is the body's inner
// content only.
type partialPayload struct {
	HTML string `json:"html"`
	Mode string `json:"mode"`
}

// deltaPayload carries one raw text delta.
type deltaPayload struct {
	Text string `json:"text"`
}

// generateDonePayload closes a generation stream.
type generateDonePayload struct {
	VersionID string `json:"versionId"`
	HTML      string `json:"html"`
}

// improveDonePayload closes an improvement stream.
type improveDonePayload struct {
	Text string `json:"text"`
}

// errorPayload closes a failed stream.
type errorPayload struct {
	Message   string `json:"message"`
	OpenLogin bool   `json:"openLogin,omitempty"`
}

// sseHeaders prepares w for event streaming and returns its flusher.
func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
