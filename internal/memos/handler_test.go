package memos

import (
	"bytes"
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

func newMemoRouter(svc *Service) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/memos", h.MountRoutes)
	return r
}

func serve(router http.Handler, method, target, body string, actor *shared.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAndPost(t *testing.T) {
	f := newFixture()
	router := newMemoRouter(f.svc)

	rr := serve(router, http.MethodPost, "/memos", `{"company":"ACME","kind":"DEBIT","date":"2024-03-05","source_type":"SI","source_id":10,"adjusted_price":"1120","quantity":"10"}`, &clerk)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Memo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "DM0000000001", created.Number)

	rr = serve(router, http.MethodGet, "/memos/DEBIT/DM0000000001/journal?company=ACME", "", &clerk)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"account_number":"1010201"`)

	rr = serve(router, http.MethodPost, "/memos/DEBIT/DM0000000001/post", `{"company":"ACME","version":1}`, &clerk)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"status":"Posted"`)

	rr = serve(router, http.MethodPost, "/memos/DEBIT/DM0000000001/post", `{"company":"ACME"}`, &clerk)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(router, http.MethodPost, "/memos/DEBIT/DM0000000001/void", `{"company":"ACME"}`, &clerk)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router := newMemoRouter(newFixture().svc)

	rr := serve(router, http.MethodPost, "/memos", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(router, http.MethodPost, "/memos", `{"company":"ACME","kind":"OTHER","date":"05/03/2024","source_type":"SI","source_id":10}`, &clerk)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"Kind"`)

	rr = serve(router, http.MethodPost, "/memos", `{"company":"ACME","kind":"DEBIT","date":"2024-03-05","source_type":"SI","source_id":12,"adjusted_price":"1","quantity":"1"}`, &clerk)
	require.Equal(t, http.StatusBadRequest, rr.Code, "unposted source")

	rr = serve(router, http.MethodGet, "/memos/DEBIT/DM0000000404?company=ACME", "", &clerk)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(router, http.MethodGet, "/memos", "", &clerk)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerLogsEditFailure(t *testing.T) {
	var logs bytes.Buffer
	h := NewHandler(slog.New(slog.NewTextHandler(&logs, nil)), newFixture().svc)
	router := chi.NewRouter()
	router.Route("/memos", h.MountRoutes)

	rr := serve(router, http.MethodPut, "/memos/DEBIT/DM0000000404", `{"company":"ACME","date":"2024-03-05","adjusted_price":"1","quantity":"1"}`, &clerk)
	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
	require.Contains(t, logs.String(), `level=WARN msg="edit memo" number=DM0000000404`)
}
