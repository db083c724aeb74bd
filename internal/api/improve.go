package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parthib/anysite/internal/auth"
	"github.com/parthib/anysite/internal/generate"
	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/stream"
)

// improveHandler streams prompt improvements.
type improveHandler struct {
	resolver *auth.Resolver
	runner   *generate.Runner
	logger   *slog.Logger
}

type improveInput struct {
	Prompt string `json:"prompt"`
}

func (h *improveHandler) improvePrompt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var input improveInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if input.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields", h.logger)
		return
	}

	token, err := h.resolver.Token(r, true)
	if err != nil {
		writeAuthError(w, err, h.logger)
		return
	}
	if err := inference.CheckTokenBudget(len(input.Prompt), inference.ImproveModel()); err != nil {
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

	improved, err := h.runner.Improve(r.Context(), token, input.Prompt, func(delta string) error {
		return writeEvent(w, flusher, eventDelta, deltaPayload{Text: delta})
	})
	if err != nil {
		payload := errorPayload{Message: "An error occurred while processing your request."}
		var upstream *stream.UpstreamError
		if errors.As(err, &upstream) {
			payload.Message = upstream.Message
		}
		h.logger.Warn("improve stream failed", "error", err)
		_ = writeEvent(w, flusher, eventError, payload)
		return
	}

	_ = writeEvent(w, flusher, eventDone, improveDonePayload{Text: improved})
}
