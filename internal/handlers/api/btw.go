package api

import (
	"net/http"

	"github.com/btwdesk/api/internal/btw"
)

// CodesHandler serves the BTW code registry.
type CodesHandler struct {
	registry *btw.Registry
}

// NewCodesHandler creates a new codes handler.
func NewCodesHandler(registry *btw.Registry) *CodesHandler {
	return &CodesHandler{registry: registry}
}

// RegisterRoutes registers the registry route on a protected mux.
func (h *CodesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/btw/codes", h.List)
}

type codeJSON struct {
	Code           string `json:"code"`
	Percentage     string `json:"percentage"`
	Category       string `json:"category"`
	Box            string `json:"box,omitempty"`
	ExpectedSide   string `json:"expected_side,omitempty"`
	ContributesVAT bool   `json:"contributes_vat"`
	VariableRate   bool   `json:"variable_rate"`
}

// List handles GET /api/v1/btw/codes
func (h *CodesHandler) List(w http.ResponseWriter, r *http.Request) {
	codes := h.registry.Codes()
	out := make([]codeJSON, len(codes))
	for i, c := range codes {
		out[i] = codeJSON{
			Code:           c.Code,
			Percentage:     c.Percentage.String(),
			Category:       string(c.Category),
			Box:            string(c.Policy.Box),
			ExpectedSide:   string(c.Policy.ExpectedSide),
			ContributesVAT: c.Policy.ContributesVAT,
			VariableRate:   c.Policy.VariableRate,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
