package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/di"
	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/rolls"
	"github.com/aristath/optionseller/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		ChainDir:        filepath.Join("..", "marketdata", "testdata"),
		Port:            8080,
		Capital:         100000,
		MaxResults:      10,
		Workers:         2,
		VolatilityFloor: 0.01,
		ReportsKeep:     5,
		Fetcher:         marketdata.DefaultFetcherConfig(),
		CacheTTL:        time.Minute,
		Schedule: config.ScheduleConfig{
			Rescan:        "0 */15 * * * *",
			RescanTimeout: time.Minute,
			Maintenance:   "0 30 2 * * *",
			CachePurge:    "@every 1m",
		},
		Criteria: domain.DefaultCriteria(),
		Risk:     risk.DefaultConfig(),
		Rolls:    rolls.DefaultConfig(),
	}

	container, jobs, err := di.Wire(context.Background(), cfg, "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{
		Log:       zerolog.Nop(),
		Port:      cfg.Port,
		DevMode:   true,
		Version:   "test",
		Container: container,
		Jobs:      jobs,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t)

	// Generate at least one observed request first.
	do(t, srv.Handler(), http.MethodGet, "/health", "")

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "optionseller_")
}

func TestServer_SystemStatus(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "test", data["version"])
	assert.Equal(t, "memory", data["cache_backend"])
	assert.Equal(t, false, data["backups_enabled"])
	assert.Len(t, data["databases"], 2)
	assert.Nil(t, data["last_screen_at"])

	metadata := body["metadata"].(map[string]interface{})
	assert.NotEmpty(t, metadata["timestamp"])
}

func TestServer_Screen(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	t.Run("latest before any run", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/screen/latest", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty body screens the watchlist", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode(t, rec)
		data := body["data"].(map[string]interface{})
		assert.Contains(t, data["symbols"], "AAPL")
		metadata := body["metadata"].(map[string]interface{})
		assert.Contains(t, metadata, "count")
		assert.Contains(t, metadata, "failures")
	})

	t.Run("strategy alias", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", `{"symbols":["AAPL"],"strategies":["csp"]}`)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("unknown strategy", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", `{"strategies":["iron_condor"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "iron_condor")
	})

	t.Run("negative max results", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", `{"max_results":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", `{"symbols":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown preset", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/screen/", `{"preset":"yolo"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("latest after a run", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/screen/latest", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/screen/history?limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.GreaterOrEqual(t, body["metadata"].(map[string]interface{})["count"], float64(2))

		rec = do(t, h, http.MethodGet, "/api/screen/history?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("presets", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/screen/presets", "")
		require.Equal(t, http.StatusOK, rec.Code)
		data := decode(t, rec)["data"].(map[string]interface{})
		assert.Len(t, data, 4)
		assert.Contains(t, data, "conservative_income")
	})
}

func TestServer_SystemOperations(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/system/backups", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/system/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/system/jobs/backup", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "backup job is not registered without a bucket")

	rec = do(t, h, http.MethodPost, "/api/system/jobs/cache_purge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "completed", data["status"])

	rec = do(t, h, http.MethodPost, "/api/system/jobs/rescan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]interface{})
	assert.NotNil(t, data["last_screen_at"])
}

func TestServer_ModuleRoutes(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/positions/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/risk/portfolio", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

type stubRecommender struct {
	report services.Report
	err    error
	got    services.ScreenRequest
}

func (s *stubRecommender) Run(_ context.Context, req services.ScreenRequest) (services.Report, error) {
	s.got = req
	return s.report, s.err
}

func (s *stubRecommender) Latest() (services.Report, error) {
	if s.err != nil {
		return services.Report{}, s.err
	}
	return s.report, nil
}

type stubHistory struct {
	limit int
}

func (s *stubHistory) History(limit int) ([]services.ReportSummary, error) {
	s.limit = limit
	return []services.ReportSummary{{ID: "r1"}}, nil
}

func TestScreenHandlers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "config error", err: &domain.ConfigError{Problems: []string{"bad"}}, wantStatus: http.StatusUnprocessableEntity},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable},
		{name: "canceled", err: context.Canceled, wantStatus: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stubRecommender{err: tt.err}
			h := NewScreenHandlers(rec, nil, zerolog.Nop())

			req := httptest.NewRequest(http.MethodPost, "/api/screen", strings.NewReader(`{"strategies":["cc","strangle"]}`))
			w := httptest.NewRecorder()
			h.HandleScreen(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, []domain.StrategyType{domain.CoveredCall, domain.ShortStrangle}, rec.got.Strategies)
		})
	}

	t.Run("latest not found", func(t *testing.T) {
		h := NewScreenHandlers(&stubRecommender{err: domain.ErrNotFound}, nil, zerolog.Nop())
		w := httptest.NewRecorder()
		h.HandleLatest(w, httptest.NewRequest(http.MethodGet, "/api/screen/latest", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("history without a store", func(t *testing.T) {
		h := NewScreenHandlers(&stubRecommender{}, nil, zerolog.Nop())
		w := httptest.NewRecorder()
		h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/api/screen/history", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("history passes the limit", func(t *testing.T) {
		history := &stubHistory{}
		h := NewScreenHandlers(&stubRecommender{}, history, zerolog.Nop())
		w := httptest.NewRecorder()
		h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/api/screen/history?limit=7", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 7, history.limit)
	})
}
