package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfiles struct {
	capital   float64
	requested float64
	err       error
}

func (s *stubProfiles) RiskProfile(capital float64) (domain.PortfolioRiskProfile, error) {
	s.requested = capital
	if s.err != nil {
		return domain.PortfolioRiskProfile{}, s.err
	}
	if capital <= 0 {
		capital = s.capital
	}
	return domain.PortfolioRiskProfile{Capital: capital, Alerts: []domain.RiskAlert{}}, nil
}

func (s *stubProfiles) Capital() float64 { return s.capital }

func setupRouter(profiles *stubProfiles) *chi.Mux {
	router := chi.NewRouter()
	NewHandler(risk.NewManager(risk.DefaultConfig(), zerolog.Nop()), profiles, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func opportunity(maxLoss float64) domain.ScoredOpportunity {
	return domain.ScoredOpportunity{
		Candidate: domain.StrategyCandidate{
			Symbol:    "AAPL",
			Strategy:  domain.CashSecuredPut,
			MaxLoss:   maxLoss,
			MaxProfit: 200,
			Margin:    maxLoss,
			NetCredit: 200,
			Probability: domain.ProbabilityMetrics{
				ProfitProbability: 0.8,
			},
		},
	}
}

func post(t *testing.T, router http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/risk/size", &buf))
	return rec
}

func TestHandleSize(t *testing.T) {
	router := setupRouter(&stubProfiles{capital: 100000})

	rec := post(t, router, SizeRequest{Opportunity: opportunity(500), Capital: 100000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data     SizeResponse           `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Contracts)
	assert.Equal(t, 4, resp.Data.Plan.Contracts)
	assert.Equal(t, "AAPL", resp.Data.Trade.Symbol)
	assert.NotEmpty(t, resp.Metadata["timestamp"])
	assert.EqualValues(t, 0.02, resp.Metadata["max_risk_fraction"])
}

func TestHandleSize_Defaults(t *testing.T) {
	router := setupRouter(&stubProfiles{capital: 50000})

	rec := post(t, router, SizeRequest{Opportunity: opportunity(500), MaxRiskFraction: 0.05})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data     SizeResponse           `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.Contracts, "50000 * 0.05 / 500")
	assert.EqualValues(t, 50000, resp.Metadata["capital"])
}

func TestHandleSize_Errors(t *testing.T) {
	router := setupRouter(&stubProfiles{capital: 100000})

	rec := post(t, router, SizeRequest{Opportunity: opportunity(0), Capital: 100000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot size AAPL")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/risk/size", bytes.NewBufferString("[")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetPortfolioRisk(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		err       error
		status    int
		requested float64
	}{
		{"default capital", "", nil, http.StatusOK, 0},
		{"explicit capital", "?capital=250000", nil, http.StatusOK, 250000},
		{"bad capital", "?capital=abc", nil, http.StatusBadRequest, 0},
		{"negative capital", "?capital=-5", nil, http.StatusBadRequest, 0},
		{"store failure", "", errors.New("disk"), http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &stubProfiles{capital: 100000, err: tt.err}
			rec := httptest.NewRecorder()
			setupRouter(profiles).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/risk/portfolio"+tt.query, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.requested, profiles.requested)
			if tt.status == http.StatusOK {
				var resp struct {
					Data domain.PortfolioRiskProfile `json:"data"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Greater(t, resp.Data.Capital, 0.0)
			}
		})
	}
}
