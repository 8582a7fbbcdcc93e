// Package handlers provides HTTP handlers for sizing and portfolio risk.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/rs/zerolog"
)

// ProfileSource computes portfolio risk over the stored positions
type ProfileSource interface {
	RiskProfile(capital float64) (domain.PortfolioRiskProfile, error)
	Capital() float64
}

// Handler handles risk HTTP requests
type Handler struct {
	manager   *risk.Manager
	positions ProfileSource
	log       zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(manager *risk.Manager, positions ProfileSource, log zerolog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		positions: positions,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// SizeRequest is the body of POST /api/risk/size. Zero capital uses the
// account default and zero fraction uses the configured max risk fraction.
type SizeRequest struct {
	Opportunity     domain.ScoredOpportunity `json:"opportunity"`
	Capital         float64                  `json:"capital"`
	MaxRiskFraction float64                  `json:"max_risk_fraction"`
}

// SizeResponse carries the plain risk-fraction size next to the capped plan
type SizeResponse struct {
	Contracts int            `json:"contracts"`
	Plan      risk.SizePlan  `json:"plan"`
	Trade     risk.TradeRisk `json:"trade"`
}

// HandleSize handles POST /api/risk/size
func (h *Handler) HandleSize(w http.ResponseWriter, r *http.Request) {
	var req SizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	capital := req.Capital
	if capital <= 0 && h.positions != nil {
		capital = h.positions.Capital()
	}
	fraction := req.MaxRiskFraction
	if fraction <= 0 {
		fraction = h.manager.Config().MaxRiskFraction
	}

	contracts, err := risk.SizePosition(req.Opportunity, capital, fraction)
	var se *domain.SizingError
	if errors.As(err, &se) {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Sizing failed")
		h.writeError(w, http.StatusInternalServerError, "sizing failed")
		return
	}

	plan, err := h.manager.PlanSize(req.Opportunity, capital)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeData(w, SizeResponse{
		Contracts: contracts,
		Plan:      plan,
		Trade:     h.manager.AnalyzeTradeRisk(req.Opportunity, capital),
	}, map[string]interface{}{"capital": capital, "max_risk_fraction": fraction})
}

// HandleGetPortfolioRisk handles GET /api/risk/portfolio?capital=
func (h *Handler) HandleGetPortfolioRisk(w http.ResponseWriter, r *http.Request) {
	var capital float64
	if raw := r.URL.Query().Get("capital"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, "capital must be a positive number")
			return
		}
		capital = v
	}

	profile, err := h.positions.RiskProfile(capital)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute portfolio risk")
		h.writeError(w, http.StatusInternalServerError, "failed to compute portfolio risk")
		return
	}
	h.writeData(w, profile, nil)
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}, extra map[string]interface{}) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
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
