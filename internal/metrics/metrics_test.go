package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveScreen(t *testing.T) {
	r := NewRegistry()

	r.ObserveScreen(screening.Stats{
		Candidates: 40,
		Returned:   5,
		ByReason: map[domain.RejectReason]int{
			domain.ReasonOpenInterest: 12,
			domain.ReasonDelta:        3,
		},
		Duration: 20 * time.Millisecond,
	}, 2)
	r.ObserveScreen(screening.Stats{Candidates: 10, Returned: 1, ByReason: map[domain.RejectReason]int{domain.ReasonDelta: 1}}, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ScreenRuns))
	assert.Equal(t, 50.0, testutil.ToFloat64(r.Candidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Returned), "gauge holds the latest run")
	assert.Equal(t, 12.0, testutil.ToFloat64(r.Rejections.WithLabelValues(string(domain.ReasonOpenInterest))))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.Rejections.WithLabelValues(string(domain.ReasonDelta))))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.FetchFailures))
}

func TestObserveFetch(t *testing.T) {
	r := NewRegistry()

	r.ObserveFetch("csv", nil, time.Millisecond)
	r.ObserveFetch("csv", fmt.Errorf("wrapped: %w", marketdata.ErrUnavailable), time.Millisecond)
	r.ObserveFetch("csv", errors.New("boom"), time.Millisecond)
	r.ObserveFetch("cache", nil, time.Microsecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchRequests.WithLabelValues("csv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchRequests.WithLabelValues("csv", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchRequests.WithLabelValues("csv", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchRequests.WithLabelValues("cache", "ok")))
}

func TestObserveJobAndBackup(t *testing.T) {
	r := NewRegistry()
	r.ObserveJob("rescan", nil)
	r.ObserveJob("rescan", errors.New("x"))
	r.ObserveBackup(4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScheduledJobs.WithLabelValues("rescan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScheduledJobs.WithLabelValues("rescan", "error")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(r.LastBackupBytes))
}

func TestMiddlewareAndHandler(t *testing.T) {
	r := NewRegistry()

	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/positions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", r.Handler())

	for _, path := range []string{"/positions/a", "/positions/b", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.HTTPRequests.WithLabelValues("/positions/{id}", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequests.WithLabelValues("/health", "GET", "200")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "optionseller_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
