package procurement

import (
	"fmt"
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

func TestHandlerPurchaseToReceipt(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(newMemoryProcRepo()))
	router := chi.NewRouter()
	router.Route("/purchase-orders", h.MountPurchaseOrderRoutes)
	router.Route("/receiving-reports", h.MountReceivingReportRoutes)

	do := func(method, target, body string, actor shared.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/purchase-orders", `{"company":"ACME","date":"2024-05-14","supplier_id":1,"product_id":9,"quantity":"10","unit_cost":"112"}`, buyer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/purchase-orders/PO0000000001/post", `{"company":"ACME","version":1}`, buyer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/receiving-reports", fmt.Sprintf(`{"company":"ACME","date":"2024-05-14","po_id":%d,"quantity":"11"}`, 1), buyer)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/receiving-reports", `{"company":"ACME","date":"2024-05-14","po_id":1,"quantity":"10"}`, buyer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/receiving-reports/RR0000000001/post", `{"company":"ACME"}`, buyer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/receiving-reports/RR0000000001/void", `{"company":"ACME"}`, buyer)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodGet, "/purchase-orders/PO0000000001?company=ACME", "", buyer)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"received":"10"`)

	rr = do(http.MethodGet, "/receiving-reports?company=ACME&supplier_id=x", "", buyer)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
