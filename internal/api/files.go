package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/council/internal/storage"
)

// FileHandler serves generated agenda PDFs.
type FileHandler struct {
	files storage.Provider
}

// NewFileHandler creates a handler over the agenda storage.
func NewFileHandler(files storage.Provider) *FileHandler {
	return &FileHandler{files: files}
}

// ServeFile handles GET /files/{name}. Only agenda file names are served.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !storage.IsAgendaFile(name) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid file name"))
		return
	}
	f, info, err := h.files.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if err != nil {
		slog.Error("serve agenda failed", slog.String("file", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("ETag", `"`+info.Checksum+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, info.UpdatedAt, f)
}
