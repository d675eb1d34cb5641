package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/btwdesk/api/internal/services/account"
	"github.com/btwdesk/api/internal/services/client"
)

// ClientService is the part of client.Service used by the handlers.
type ClientService interface {
	Create(ctx context.Context, p client.Params) (client.Client, error)
	Update(ctx context.Context, id uuid.UUID, p client.Params) (client.Client, error)
	Get(ctx context.Context, id uuid.UUID) (client.Client, error)
	List(ctx context.Context) ([]client.Client, error)
}

// AccountService is the part of account.Service used by the handlers.
type AccountService interface {
	Create(ctx context.Context, clientID uuid.UUID, p account.CreateParams) (account.Account, error)
	List(ctx context.Context, clientID uuid.UUID) ([]account.Account, error)
}

// ClientHandler handles clients and their charts of accounts.
type ClientHandler struct {
	clients  ClientService
	accounts AccountService
	logger   *slog.Logger
}

// NewClientHandler creates a new client handler.
func NewClientHandler(clients ClientService, accounts AccountService, logger *slog.Logger) *ClientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientHandler{clients: clients, accounts: accounts, logger: logger}
}

// RegisterRoutes registers the client routes on a protected mux.
func (h *ClientHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/clients", h.List)
	mux.HandleFunc("POST /api/v1/clients", h.Create)
	mux.HandleFunc("GET /api/v1/clients/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/clients/{id}", h.Update)
	mux.HandleFunc("GET /api/v1/clients/{id}/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/v1/clients/{id}/accounts", h.CreateAccount)
}

type clientRequest struct {
	Name            string `json:"name"`
	BTWNumber       string `json:"btw_number"`
	KVKNumber       string `json:"kvk_number"`
	FilingFrequency string `json:"filing_frequency"`
}

func (req clientRequest) params() client.Params {
	return client.Params{
		Name:            req.Name,
		BTWNumber:       req.BTWNumber,
		KVKNumber:       req.KVKNumber,
		FilingFrequency: req.FilingFrequency,
	}
}

// List handles GET /api/v1/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if clients == nil {
		clients = []client.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// Create handles POST /api/v1/clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.clients.Create(r.Context(), req.params())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Get handles GET /api/v1/clients/{id}
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /api/v1/clients/{id}
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.clients.Update(r.Context(), id, req.params())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListAccounts handles GET /api/v1/clients/{id}/accounts
func (h *ClientHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.clients.Get(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	accounts, err := h.accounts.List(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []account.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

type accountRequest struct {
	Number   string `json:"number"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// CreateAccount handles POST /api/v1/clients/{id}/accounts
func (h *ClientHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req accountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.clients.Get(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	a, err := h.accounts.Create(r.Context(), id, account.CreateParams{
		Number:   req.Number,
		Name:     req.Name,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
