package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/journal"
)

// maxImportLines bounds a single import request.
const maxImportLines = 5000

// JournalService is the part of journal.Service used by the handlers.
type JournalService interface {
	Validate(ctx context.Context, clientID uuid.UUID, p journal.LineParams) (btw.ValidationResult, error)
	Create(ctx context.Context, clientID uuid.UUID, p journal.LineParams) (journal.Saved, error)
	Update(ctx context.Context, clientID, lineID uuid.UUID, p journal.LineParams) (journal.Saved, error)
	Delete(ctx context.Context, clientID, lineID uuid.UUID) error
	Get(ctx context.Context, clientID, lineID uuid.UUID) (journal.Line, error)
	List(ctx context.Context, key btw.PeriodKey) ([]journal.Line, error)
	ImportBatch(ctx context.Context, clientID uuid.UUID, lines []journal.LineParams) (journal.ImportResult, error)
}

// JournalHandler handles a client's journal lines.
type JournalHandler struct {
	journal JournalService
	logger  *slog.Logger
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(journalSvc JournalService, logger *slog.Logger) *JournalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalHandler{journal: journalSvc, logger: logger}
}

// RegisterRoutes registers the journal routes on a protected mux.
func (h *JournalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/clients/{id}/journal", h.List)
	mux.HandleFunc("POST /api/v1/clients/{id}/journal", h.Create)
	mux.HandleFunc("POST /api/v1/clients/{id}/journal/validate", h.Validate)
	mux.HandleFunc("POST /api/v1/clients/{id}/journal/import", h.Import)
	mux.HandleFunc("GET /api/v1/clients/{id}/journal/{lineID}", h.Get)
	mux.HandleFunc("PUT /api/v1/clients/{id}/journal/{lineID}", h.Update)
	mux.HandleFunc("DELETE /api/v1/clients/{id}/journal/{lineID}", h.Delete)
}

// lineRequest is a journal line as posted by clients. Dates are plain
// calendar dates ("2024-03-31").
type lineRequest struct {
	Date          string           `json:"date"`
	AccountNumber string           `json:"account_number"`
	Description   string           `json:"description"`
	Debit         decimal.Decimal  `json:"debit"`
	Credit        decimal.Decimal  `json:"credit"`
	BTWCode       string           `json:"btw_code"`
	BTWAmount     *decimal.Decimal `json:"btw_amount"`
}

func (req lineRequest) params() (journal.LineParams, error) {
	p := journal.LineParams{
		AccountNumber: req.AccountNumber,
		Description:   req.Description,
		Debit:         req.Debit,
		Credit:        req.Credit,
		BTWCode:       req.BTWCode,
		BTWAmount:     req.BTWAmount,
	}
	if strings.TrimSpace(req.Date) == "" {
		return p, journal.ErrDateRequired
	}
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		return p, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	p.Date = d
	return p, nil
}

// decodeLine reads a line request and converts it. It writes a 400 and
// returns false on malformed input.
func (h *JournalHandler) decodeLine(w http.ResponseWriter, r *http.Request) (journal.LineParams, bool) {
	var req lineRequest
	if !decodeJSON(w, r, &req) {
		return journal.LineParams{}, false
	}
	p, err := req.params()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return journal.LineParams{}, false
	}
	return p, true
}

// List handles GET /api/v1/clients/{id}/journal?year=2024&period_type=quarter&period=1
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	periodType := q.Get("period_type")
	if periodType == "" {
		periodType = string(btw.PeriodYear)
	}
	key, err := parsePeriod(clientID, q.Get("year"), periodType, q.Get("period"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	lines, err := h.journal.List(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if lines == nil {
		lines = []journal.Line{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// Create handles POST /api/v1/clients/{id}/journal
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	saved, err := h.journal.Create(r.Context(), clientID, p)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	saved.Warnings = nonNil(saved.Warnings)
	writeJSON(w, http.StatusCreated, saved)
}

// Validate handles POST /api/v1/clients/{id}/journal/validate. It always
// answers 200; the body says whether the line would be accepted.
func (h *JournalHandler) Validate(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	res, err := h.journal.Validate(r.Context(), clientID, p)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res.Errors = nonNil(res.Errors)
	res.Warnings = nonNil(res.Warnings)
	writeJSON(w, http.StatusOK, res)
}

type importRequest struct {
	Lines []lineRequest `json:"lines"`
}

// Import handles POST /api/v1/clients/{id}/journal/import. A malformed date
// rejects the whole request; lines failing BTW validation are skipped and
// reported per line.
func (h *JournalHandler) Import(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "no lines to import"})
		return
	}
	if len(req.Lines) > maxImportLines {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: fmt.Sprintf("at most %d lines per import", maxImportLines)})
		return
	}

	params := make([]journal.LineParams, len(req.Lines))
	for i, lr := range req.Lines {
		p, err := lr.params()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: fmt.Sprintf("line %d: %v", i, err)})
			return
		}
		params[i] = p
	}

	res, err := h.journal.ImportBatch(r.Context(), clientID, params)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Get handles GET /api/v1/clients/{id}/journal/{lineID}
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "lineID")
	if !ok {
		return
	}
	line, err := h.journal.Get(r.Context(), clientID, lineID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// Update handles PUT /api/v1/clients/{id}/journal/{lineID}
func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "lineID")
	if !ok {
		return
	}
	p, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	saved, err := h.journal.Update(r.Context(), clientID, lineID, p)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	saved.Warnings = nonNil(saved.Warnings)
	writeJSON(w, http.StatusOK, saved)
}

// Delete handles DELETE /api/v1/clients/{id}/journal/{lineID}
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.journal.Delete(r.Context(), clientID, lineID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
