package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parthib/anysite/internal/share"
	"github.com/parthib/anysite/internal/version"
)

// shareHandler publishes documents to the gallery.
type shareHandler struct {
	gallery  *share.Client
	versions *version.Store
	logger   *slog.Logger
}

type shareInput struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
}

func (h *shareHandler) shareLink(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var input shareInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if input.Code == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields", h.logger)
		return
	}

	// Without an explicit filename the device's stable share filename is
	// used, so re-sharing updates the published page in place.
	filename := input.Filename
	if filename == "" {
		name, err := h.versions.ShareFilename()
		if err != nil {
			h.logger.Error("resolving share filename", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resolve share filename", h.logger)
			return
		}
		filename = name
	}

	result, err := h.gallery.Upload(r.Context(), filename, input.Code)
	if err != nil {
		var upload *share.UploadError
		if errors.As(err, &upload) {
			writeJSON(w, upload.Status, map[string]any{
				"success": false,
				"message": upload.Message,
			}, h.logger)
			return
		}
		h.logger.Error("uploading to gallery", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Internal server error",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}
