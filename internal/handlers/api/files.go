package api

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/btwdesk/api/internal/storage"
)

// FilesURLPrefix is the path under which locally stored exports are served.
const FilesURLPrefix = "/api/v1/files"

// FileHandler streams stored exports. It only serves keys under exports/.
type FileHandler struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(store storage.Storage, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{store: store, logger: logger}
}

// RegisterRoutes registers the download route on a protected mux.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+FilesURLPrefix+"/{key...}", h.Download)
}

// Download handles GET /api/v1/files/{key...}
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !strings.HasPrefix(key, "exports/") || path.Clean(key) != key {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: storage.ErrNotFound.Error()})
		return
	}

	rc, err := h.store.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming export failed", "key", key, "error", err)
	}
}
