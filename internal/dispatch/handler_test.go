package dispatch

import (
	"encoding/json"
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

func TestHandlerTicketToBilling(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(newMemoryRepo()))
	router := chi.NewRouter()
	router.Route("/dispatch", h.MountRoutes)

	do := func(method, target, body string, actor *shared.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if actor != nil {
			req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/dispatch/tickets", `{"company":"ACME"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(http.MethodPost, "/dispatch/tickets", `{"company":"ACME","customer_id":7,"vessel":"MV Luzon","terminal":"PIER1",
"date_left":"2024-05-06T08:00:00Z","date_arrived":"2024-05-06T07:00:00Z"}`, &clerk)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/dispatch/tickets", `{"company":"ACME","customer_id":7,"vessel":"MV Luzon","terminal":"PIER1",
"date_left":"2024-05-06T08:00:00Z","date_arrived":"2024-05-06T09:10:00Z","dispatch_discount_pct":"0","baf_discount_pct":"0"}`, &clerk)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var tk Ticket
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tk))
	require.True(t, tk.BillableHours.Equal(d("1.25")))

	rr = do(http.MethodGet, "/dispatch/tickets?company=ACME&unbilled=true", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), tk.Number)

	rr = do(http.MethodPost, "/dispatch/billings", `{"company":"ACME","date":"2024-05-31","customer_id":7,"ticket_ids":[]}`, &clerk)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/dispatch/billings", `{"company":"ACME","date":"2024-05-31","customer_id":7,"ticket_ids":[1]}`, &clerk)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"number":"DSB0000000001"`)

	rr = do(http.MethodPost, "/dispatch/billings", `{"company":"ACME","date":"2024-05-31","customer_id":7,"ticket_ids":[1]}`, &clerk)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(http.MethodPost, "/dispatch/billings/DSB0000000001/post", `{"company":"ACME"}`, &clerk)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"status":"Posted"`)

	rr = do(http.MethodPost, "/dispatch/billings/DSB0000000001/void", `{"company":"ACME"}`, &clerk)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodGet, "/dispatch/billings/DSB0000000001?company=ACME", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/dispatch/billings/DSB0000000404?company=ACME", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerTariffs(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(newMemoryRepo()))
	router := chi.NewRouter()
	router.Route("/dispatch", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPut, "/dispatch/tariffs", strings.NewReader(`{"company":"ACME","terminal":"PIER2","customer_type":"Tanker","dispatch_rate":"5000","baf_rate":"500"}`))
	req = req.WithContext(shared.ContextWithActor(req.Context(), admin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dispatch/tariffs", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dispatch/tariffs?company=ACME", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Tanker")
}
