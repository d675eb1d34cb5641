package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/declaration"
)

// DeclarationHandler exposes the declaration lifecycle.
type DeclarationHandler struct {
	declarations *declaration.Service
	logger       *slog.Logger
}

// NewDeclarationHandler creates a new declaration handler.
func NewDeclarationHandler(declarations *declaration.Service, logger *slog.Logger) *DeclarationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeclarationHandler{declarations: declarations, logger: logger}
}

const declarationPath = "/api/v1/clients/{id}/declarations/{year}/{type}/{number}"

// RegisterRoutes registers the declaration routes on a protected mux.
func (h *DeclarationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/clients/{id}/declarations", h.List)
	mux.HandleFunc("GET "+declarationPath, h.Get)
	mux.HandleFunc("GET "+declarationPath+"/preview", h.Preview)
	mux.HandleFunc("POST "+declarationPath+"/recompute", h.Recompute)
	mux.HandleFunc("POST "+declarationPath+"/finalize", h.Finalize)
	mux.HandleFunc("POST "+declarationPath+"/file", h.File)
	mux.HandleFunc("POST "+declarationPath+"/export", h.Export)
}

// periodKey reads the period from the path. It writes the error response
// and returns false on bad input.
func (h *DeclarationHandler) periodKey(w http.ResponseWriter, r *http.Request) (btw.PeriodKey, bool) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return btw.PeriodKey{}, false
	}
	key, err := parsePeriod(clientID, r.PathValue("year"), r.PathValue("type"), r.PathValue("number"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return btw.PeriodKey{}, false
	}
	return key, true
}

// List handles GET /api/v1/clients/{id}/declarations?year=2024
func (h *DeclarationHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	year := 0
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 0 {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid year"})
			return
		}
		year = y
	}

	ds, err := h.declarations.List(r.Context(), clientID, year)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// Get handles GET .../declarations/{year}/{type}/{number}
func (h *DeclarationHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	d, err := h.declarations.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Preview handles GET .../preview. Nothing is stored.
func (h *DeclarationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	sum, err := h.declarations.Preview(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Recompute handles POST .../recompute
func (h *DeclarationHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	res, err := h.declarations.Recompute(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Finalize handles POST .../finalize
func (h *DeclarationHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	d, err := h.declarations.Finalize(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// File handles POST .../file
func (h *DeclarationHandler) File(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	d, err := h.declarations.File(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Export handles POST .../export
func (h *DeclarationHandler) Export(w http.ResponseWriter, r *http.Request) {
	key, ok := h.periodKey(w, r)
	if !ok {
		return
	}
	res, err := h.declarations.Export(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
