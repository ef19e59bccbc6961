package reports

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubStatements struct {
	from, to time.Time
}

func (s *stubStatements) TrialBalance(ctx context.Context, company string, from, to time.Time) (TrialBalance, error) {
	s.from, s.to = from, to
	return TrialBalance{
		Company:     company,
		Rows:        []TrialBalanceRow{{Number: "1010101", Name: "Cash", Debit: d("5"), Credit: d("0")}},
		TotalDebit:  d("5"),
		TotalCredit: d("0"),
	}, nil
}

func (s *stubStatements) ProfitAndLoss(ctx context.Context, company string, from, to time.Time) (ProfitAndLoss, error) {
	return ProfitAndLoss{}, ErrInvalidRange
}

func (s *stubStatements) BalanceSheet(ctx context.Context, company string, asOf time.Time) (BalanceSheet, error) {
	return BalanceSheet{Company: company, AsOf: asOf, Balanced: true}, nil
}

func (s *stubStatements) RetainedEarnings(ctx context.Context, company string, month time.Time) (RetainedEarningsStatement, error) {
	return RetainedEarningsStatement{Company: company, Month: month}, nil
}

func newTestRouter(svc statementService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.now = func() time.Time { return date(2024, time.March, 18) }
	r := chi.NewRouter()
	r.Route("/reports", h.MountRoutes)
	return r
}

func TestHandlerTrialBalanceDefaultsToCurrentMonth(t *testing.T) {
	svc := &stubStatements{}
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/trial-balance?company=ACME", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, date(2024, time.March, 1), svc.from)
	require.Equal(t, date(2024, time.March, 31), svc.to)
	var body TrialBalance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ACME", body.Company)
}

func TestHandlerTrialBalanceCSV(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubStatements{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/trial-balance.csv?company=ACME&from=2024-01-01&to=2024-01-31", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "trial-balance-2024-01-31.csv")
	require.True(t, strings.HasPrefix(rr.Body.String(), "Account Number,Account Title,Debit,Credit"))
}

func TestHandlerValidatesQuery(t *testing.T) {
	router := newTestRouter(&stubStatements{})
	for _, target := range []string{
		"/reports/trial-balance",
		"/reports/trial-balance?company=ACME&from=01/01/2024",
		"/reports/bs?company=ACME&as_of=yesterday",
		"/reports/retained-earnings?company=ACME",
		"/reports/pl?company=ACME",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandlerRetainedEarnings(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubStatements{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/retained-earnings?company=ACME&month=2024-02", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body RetainedEarningsStatement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, date(2024, time.February, 1), body.Month)
}
