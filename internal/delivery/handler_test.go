package delivery

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/shared"
)

func TestHandlerLifecycle(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(newMemoryRepo()))
	router := chi.NewRouter()
	router.Route("/delivery-receipts", h.MountRoutes)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithActor(req.Context(), clerk))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/delivery-receipts", `{"company":"ACME","date":"2024-04-10","order_id":1,"quantity":"12"}`)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/delivery-receipts", `{"company":"ACME","date":"2024-04-10","order_id":1,"quantity":"2","freight":"0","unit_cost":"800"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"number":"DR0000000001"`)

	rr = do(http.MethodPost, "/delivery-receipts/DR0000000001/post", `{"company":"ACME"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/delivery-receipts/DR0000000001/cancel", `{"company":"ACME","reason":"late"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(http.MethodGet, "/delivery-receipts?company=ACME&from=2024-04-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "DR0000000001")
}

func TestHandlerLogsEditFailure(t *testing.T) {
	var logs bytes.Buffer
	h := NewHandler(slog.New(slog.NewTextHandler(&logs, nil)), newService(newMemoryRepo()))
	router := chi.NewRouter()
	router.Route("/delivery-receipts", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPut, "/delivery-receipts/DR0000000404",
		strings.NewReader(`{"company":"ACME","date":"2024-04-10","quantity":"1","freight":"0","unit_cost":"800"}`))
	req = req.WithContext(shared.ContextWithActor(req.Context(), clerk))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
	require.Contains(t, logs.String(), `level=WARN msg="edit delivery receipt" number=DR0000000404`)
}
