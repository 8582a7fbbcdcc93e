// Package handlers provides HTTP handlers for position management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles position HTTP requests
type Handler struct {
	service *portfolio.PortfolioService
	log     zerolog.Logger
}

// NewHandler creates a new position handler
func NewHandler(service *portfolio.PortfolioService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "positions").Logger(),
	}
}

// openRequest accepts either a full position or a screened candidate plus
// a contract count.
type openRequest struct {
	Position  *domain.Position          `json:"position,omitempty"`
	Candidate *domain.StrategyCandidate `json:"candidate,omitempty"`
	Contracts int                       `json:"contracts,omitempty"`
}

// closeRequest carries the total debit paid to buy a position back
type closeRequest struct {
	ClosePremium float64 `json:"close_premium"`
}

type wheelRequest struct {
	WheelState string `json:"wheel_state"`
}

// HandleListPositions handles GET /api/positions?status=open|closed|all
func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParsePositionStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	positions, err := h.service.ListByStatus(status)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		h.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	h.writeData(w, http.StatusOK, positions, map[string]interface{}{"count": len(positions)})
}

// HandleGetSummary handles GET /api/positions/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize positions")
		h.writeError(w, http.StatusInternalServerError, "failed to summarize positions")
		return
	}
	h.writeData(w, http.StatusOK, summary, nil)
}

// HandleGetGreeks handles GET /api/positions/greeks
func (h *Handler) HandleGetGreeks(w http.ResponseWriter, r *http.Request) {
	greeks, err := h.service.Greeks()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to aggregate greeks")
		h.writeError(w, http.StatusInternalServerError, "failed to aggregate greeks")
		return
	}
	h.writeData(w, http.StatusOK, greeks, nil)
}

// HandleListWheel handles GET /api/positions/wheel
func (h *Handler) HandleListWheel(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.WheelPositions()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list wheel positions")
		h.writeError(w, http.StatusInternalServerError, "failed to list wheel positions")
		return
	}
	h.writeData(w, http.StatusOK, positions, map[string]interface{}{"count": len(positions)})
}

// HandleCreatePosition handles POST /api/positions
func (h *Handler) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		created domain.Position
		err     error
	)
	switch {
	case req.Position != nil:
		created, err = h.service.Open(*req.Position)
	case req.Candidate != nil:
		created, err = h.service.OpenFromCandidate(*req.Candidate, req.Contracts)
	default:
		h.writeError(w, http.StatusBadRequest, "position or candidate is required")
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create position")
		h.writeError(w, http.StatusInternalServerError, "failed to create position")
		return
	}
	h.writeData(w, http.StatusCreated, created, nil)
}

// HandleGetPosition handles GET /api/positions/{id}
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, p, nil)
}

// HandleClosePosition handles POST /api/positions/{id}/close
func (h *Handler) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.service.Close(chi.URLParam(r, "id"), req.ClosePremium)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, p, map[string]interface{}{"realized_pnl": p.RealizedPnL()})
}

// HandleUpdateWheel handles PUT /api/positions/{id}/wheel
func (h *Handler) HandleUpdateWheel(w http.ResponseWriter, r *http.Request) {
	var req wheelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.service.SetWheelState(chi.URLParam(r, "id"), req.WheelState)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, p, nil)
}

// HandleDeletePosition handles DELETE /api/positions/{id}
func (h *Handler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetRolls handles GET /api/positions/{id}/rolls
func (h *Handler) HandleGetRolls(w http.ResponseWriter, r *http.Request) {
	advice, err := h.service.Rolls(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, marketdata.ErrUnavailable) {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, advice, nil)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrPositionClosed):
		h.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &ve):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("Position request failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}, extra map[string]interface{}) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	h.writeJSON(w, status, map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
