package http

import (
	"log/slog"
	"net/http"

	"github.com/archon-research/oracle-relay/internal/ports/inbound"
)

// APIMessage is the acknowledgement served at GET /api.
const APIMessage = "An API for use with your Dapp!"

// Handler serves the /api routes.
type Handler struct {
	status inbound.RelayStatus
	stats  inbound.OutcomeStats
	logger *slog.Logger
}

// NewHandler creates the API handler. stats may be nil.
func NewHandler(status inbound.RelayStatus, stats inbound.OutcomeStats, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		status: status,
		stats:  stats,
		logger: logger.With("component", "api-handler"),
	}
}

// RegisterRoutes registers the API routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api", h.API)
	mux.HandleFunc("GET /api/status", h.Status)
}

// API returns the static acknowledgement.
func (h *Handler) API(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, map[string]string{"message": APIMessage})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	RegisteredOracles int  `json:"registeredOracles"`
	Responses         *int `json:"responses,omitempty"`
	FailedResponses   *int `json:"failedResponses,omitempty"`
}

// Status reports the registry size and, when available, outcome counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}
	if h.status != nil {
		resp.RegisteredOracles = h.status.RegisteredOracles()
	}
	if h.stats != nil {
		total, failed := h.stats.Counts()
		resp.Responses = &total
		resp.FailedResponses = &failed
	}
	respondJSON(w, h.logger, http.StatusOK, resp)
}
