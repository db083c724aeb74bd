package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parthib/anysite/internal/version"
)

// versionHandler exposes the version history over HTTP.
type versionHandler struct {
	versions *version.Store
	logger   *slog.Logger
}

// versionItem is one history entry with its display name attached.
type versionItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Code      string `json:"code"`
	CreatedAt int64  `json:"createdAt"`
}

func toItem(v version.Version, index, total int) versionItem {
	return versionItem{
		ID:        v.ID,
		Name:      version.Name(index, total),
		Prompt:    v.Prompt,
		Code:      v.Code,
		CreatedAt: v.CreatedAt,
	}
}

func (h *versionHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.versions.List()
	if err != nil {
		h.logger.Error("listing versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list versions", h.logger)
		return
	}

	items := make([]versionItem, len(entries))
	for i, v := range entries {
		items[i] = toItem(v, i, len(entries))
	}

	body := map[string]any{"versions": items}
	if len(items) == 0 {
		// A fresh install previews the built-in landing page.
		body["defaultHtml"] = version.DefaultDocument
	}
	writeJSON(w, http.StatusOK, body, h.logger)
}

func (h *versionHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.Select(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, version.ErrNotFound) {
			writeError(w, http.StatusNotFound, "version not found", h.logger)
			return
		}
		h.logger.Error("loading version", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load version", h.logger)
		return
	}

	// The display name depends on the entry's position in the history.
	entries, err := h.versions.List()
	if err != nil {
		h.logger.Error("listing versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load version", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toItem(v, indexOfID(entries, v.ID), len(entries)), h.logger)
}

func indexOfID(entries []version.Version, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return 0
}

type editInput struct {
	Code string `json:"code"`
}

func (h *versionHandler) edit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var input editInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}

	updated, err := h.versions.ManualEdit(r.PathValue("id"), input.Code)
	if err != nil {
		if errors.Is(err, version.ErrNotFound) {
			writeError(w, http.StatusNotFound, "version not found", h.logger)
			return
		}
		h.logger.Error("editing version", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to edit version", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": updated.ID, "status": "updated"}, h.logger)
}

func (h *versionHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.versions.ClearAll(); err != nil {
		h.logger.Error("clearing versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear versions", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, h.logger)
}
