package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parthib/anysite/internal/auth"
	"github.com/parthib/anysite/internal/generate"
	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/reconcile"
	"github.com/parthib/anysite/internal/stream"
)

// maxRequestBody bounds request payloads; the largest legitimate input is a
// full document plus prompts, well under this.
const maxRequestBody = 4 << 20

// generateHandler runs the full generation pipeline behind one SSE endpoint.
type generateHandler struct {
	resolver *auth.Resolver
	runner   *generate.Runner
	logger   *slog.Logger
}

// generateInput is the request body for POST /api/generate-code.
type generateInput struct {
	Prompt         string   `json:"prompt"`
	HTML           string   `json:"html"`
	PreviousPrompt string   `json:"previousPrompt"`
	Colors         []string `json:"colors"`
	ModelID        string   `json:"modelId"`
}

// sseSink pushes partial renders as SSE events.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Partial(snap reconcile.Snapshot) error {
	payload := partialPayload{HTML: snap.Document, Mode: string(snap.Mode)}
	if snap.Mode == reconcile.ModeBody {
		payload.HTML = snap.Body
	}
	return writeEvent(s.w, s.flusher, eventPartial, payload)
}

func (h *generateHandler) generateCode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var input generateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if input.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields", h.logger)
		return
	}

	req := inference.CodeRequest{
		Prompt:         input.Prompt,
		PreviousPrompt: input.PreviousPrompt,
		HTML:           input.HTML,
		Colors:         input.Colors,
		ModelID:        input.ModelID,
	}

	// Pre-flight checks answer with plain JSON; only a healthy request
	// switches to event streaming.
	token, err := h.resolver.Token(r, true)
	if err != nil {
		writeAuthError(w, err, h.logger)
		return
	}
	if err := inference.CheckTokenBudget(req.InputChars(), inference.ResolveCodeModel(req.ModelID)); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message:            err.Error(),
			OpenSelectProvider: true,
		}, h.logger)
		return
	}

	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	result, err := h.runner.Run(r.Context(), token, req, &sseSink{w: w, flusher: flusher})
	if err != nil {
		if errors.Is(err, generate.ErrSuperseded) {
			h.logger.Debug("generation superseded mid-stream")
			return
		}
		h.streamError(w, flusher, err)
		return
	}

	_ = writeEvent(w, flusher, eventDone, generateDonePayload{
		VersionID: result.VersionID,
		HTML:      result.HTML,
	})
}

// streamError maps pipeline errors to SSE error events.
func (h *generateHandler) streamError(w http.ResponseWriter, flusher http.Flusher, err error) {
	payload := errorPayload{Message: "An error occurred while processing your request."}

	var upstream *stream.UpstreamError
	var authErr *auth.Error
	switch {
	case errors.As(err, &upstream):
		payload.Message = upstream.Message
	case errors.As(err, &authErr):
		payload.Message = authErr.Message
		payload.OpenLogin = authErr.OpenLogin
	case errors.Is(err, reconcile.ErrNoDocument):
		payload.Message = "The model did not produce an HTML document."
	}

	h.logger.Warn("generation stream failed", "error", err)
	_ = writeEvent(w, flusher, eventError, payload)
}

// writeAuthError maps a credential failure to its JSON response.
func writeAuthError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		writeJSON(w, authErr.Status, errorBody{
			Message:   authErr.Message,
			OpenLogin: authErr.OpenLogin,
		}, logger)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error", logger)
}
