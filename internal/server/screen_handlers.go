package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/services"
)

// Recommender runs screening passes and remembers the last one
type Recommender interface {
	Run(ctx context.Context, req services.ScreenRequest) (services.Report, error)
	Latest() (services.Report, error)
}

// ReportHistory lists stored reports
type ReportHistory interface {
	History(limit int) ([]services.ReportSummary, error)
}

// ScreenHandlers serves the screening endpoints
type ScreenHandlers struct {
	recommender Recommender
	history     ReportHistory
	log         zerolog.Logger
}

// NewScreenHandlers creates screening handlers. history may be nil.
func NewScreenHandlers(recommender Recommender, history ReportHistory, log zerolog.Logger) *ScreenHandlers {
	return &ScreenHandlers{
		recommender: recommender,
		history:     history,
		log:         log.With().Str("handler", "screen").Logger(),
	}
}

// RegisterRoutes registers the screening routes
func (h *ScreenHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/screen", func(r chi.Router) {
		r.Post("/", h.HandleScreen)
		r.Get("/latest", h.HandleLatest)
		r.Get("/history", h.HandleHistory)
		r.Get("/presets", h.HandlePresets)
	})
}

// HandleScreen handles POST /api/screen. An empty body screens the default
// watchlist with the default criteria.
func (h *ScreenHandlers) HandleScreen(w http.ResponseWriter, r *http.Request) {
	var req services.ScreenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.log, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	for i, s := range req.Strategies {
		parsed, err := domain.ParseStrategy(string(s))
		if err != nil {
			writeError(w, h.log, http.StatusBadRequest, err.Error())
			return
		}
		req.Strategies[i] = parsed
	}
	if req.MaxResults < 0 {
		writeError(w, h.log, http.StatusBadRequest, "max_results must not be negative")
		return
	}

	report, err := h.recommender.Run(r.Context(), req)
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, h.log, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, h.log, http.StatusServiceUnavailable, "screening interrupted")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Screening run failed")
		writeError(w, h.log, http.StatusInternalServerError, "screening failed")
		return
	}

	writeData(w, h.log, http.StatusOK, report, map[string]interface{}{
		"count":    len(report.Recommendations),
		"failures": len(report.Failures),
	})
}

// HandleLatest handles GET /api/screen/latest
func (h *ScreenHandlers) HandleLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.recommender.Latest()
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, h.log, http.StatusNotFound, "no screening report yet")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest report")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load latest report")
		return
	}
	writeData(w, h.log, http.StatusOK, report, map[string]interface{}{
		"count": len(report.Recommendations),
	})
}

// HandleHistory handles GET /api/screen/history?limit=N
func (h *ScreenHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "report history is not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.log, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	summaries, err := h.history.History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load report history")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load report history")
		return
	}
	writeData(w, h.log, http.StatusOK, summaries, map[string]interface{}{"count": len(summaries)})
}

// HandlePresets handles GET /api/screen/presets
func (h *ScreenHandlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	names := domain.PresetNames()
	presets := make(map[string]domain.ScreeningCriteria, len(names))
	for _, name := range names {
		c, err := domain.Preset(name)
		if err != nil {
			continue
		}
		presets[name] = c
	}
	writeData(w, h.log, http.StatusOK, presets, map[string]interface{}{"count": len(presets)})
}
