package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/shared"
)

var _ shared.PostingObserver = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesRuntimeCollectors(t *testing.T) {
	require.Contains(t, scrape(t, NewMetrics()), "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/memos/{kind}/{number}")
	req := httptest.NewRequest(http.MethodGet, "/memos/DEBIT/DM0000000001", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `ibs_http_requests_total{code="418",route="/memos/{kind}/{number}"} 1`)
	require.Contains(t, body, `ibs_http_request_duration_seconds_bucket{route="/memos/{kind}/{number}"`)
}

func TestObservePostingCountsOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("AR", "post", nil)
	metrics.ObservePosting("AR", "post", nil)
	metrics.ObservePosting("DISPATCH", "void", errors.New("forbidden"))

	body := scrape(t, metrics)
	require.Contains(t, body, `ibs_document_actions_total{action="post",module="AR",outcome="success"} 2`)
	require.Contains(t, body, `ibs_document_actions_total{action="void",module="DISPATCH",outcome="failure"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObservePosting("AR", "post", nil)
}
