package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/documents/doctest"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var (
	clerk = shared.Actor{ID: "clerk-1", Role: shared.RoleAccounting}
	admin = shared.Actor{ID: "admin-1", Role: shared.RoleAdmin}
	may   = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
)

type memoryRepo struct {
	*doctest.Ledger
	customers map[int64]Customer
	tariffs   map[string]Tariff
	tickets   map[int64]*Ticket
	billings  map[string]*Billing
	seq       map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger: doctest.NewLedger(),
		customers: map[int64]Customer{
			7: {ID: 7, Type: "Shipping Line", Tax: ledger.TaxProfile{VatType: ledger.VatTypeVatable}},
			8: {ID: 8, Type: "Shipping Line", Tax: ledger.TaxProfile{VatType: ledger.VatTypeVatable, HasEWT: true}},
		},
		tariffs: map[string]Tariff{
			"PIER1/Shipping Line": {Company: "ACME", Terminal: "PIER1", CustomerType: "Shipping Line", DispatchRate: d("4000"), BAFRate: d("480")},
		},
		tickets:  map[int64]*Ticket{},
		billings: map[string]*Billing{},
		seq:      map[string]int64{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	rollback := m.Snapshot()
	tickets := make(map[int64]Ticket, len(m.tickets))
	for k, v := range m.tickets {
		tickets[k] = *v
	}
	billings := make(map[string]Billing, len(m.billings))
	for k, v := range m.billings {
		billings[k] = *v
	}
	if err := fn(ctx, m); err != nil {
		rollback()
		m.tickets = map[int64]*Ticket{}
		for k, v := range tickets {
			v := v
			m.tickets[k] = &v
		}
		m.billings = map[string]*Billing{}
		for k, v := range billings {
			v := v
			m.billings[k] = &v
		}
		return err
	}
	return nil
}

func (m *memoryRepo) GetTicket(ctx context.Context, company, number string) (*Ticket, error) {
	for _, t := range m.tickets {
		if t.Company == company && t.Number == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTicketNotFound
}

func (m *memoryRepo) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	var out []Ticket
	for _, t := range m.tickets {
		if t.Company != filter.Company || (filter.Unbilled && t.Billed()) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memoryRepo) GetBilling(ctx context.Context, company, number string) (*Billing, error) {
	b, ok := m.billings[number]
	if !ok || b.Company != company {
		return nil, documents.ErrNotFound
	}
	cp := *b
	cp.TicketIDs = append([]int64(nil), b.TicketIDs...)
	return &cp, nil
}

func (m *memoryRepo) ListBillings(ctx context.Context, filter BillingFilter) ([]Billing, error) {
	var out []Billing
	for _, b := range m.billings {
		if b.Company == filter.Company && (filter.Status == "" || b.Status == filter.Status) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListTariffs(ctx context.Context, company string) ([]Tariff, error) {
	var out []Tariff
	for _, t := range m.tariffs {
		if t.Company == company {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRepo) NextNumber(ctx context.Context, company, entity, prefix string) (string, error) {
	m.seq[entity]++
	return documents.FormatNumber(prefix, m.seq[entity]), nil
}

func (m *memoryRepo) Customer(ctx context.Context, company string, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) Tariff(ctx context.Context, company, terminal, customerType string) (Tariff, error) {
	t, ok := m.tariffs[terminal+"/"+customerType]
	if !ok || t.Company != company {
		return Tariff{}, ErrTariffNotFound
	}
	return t, nil
}

func (m *memoryRepo) UpsertTariff(ctx context.Context, t Tariff) error {
	m.tariffs[t.Terminal+"/"+t.CustomerType] = t
	return nil
}

func (m *memoryRepo) InsertTicket(ctx context.Context, t *Ticket) error {
	t.ID = int64(len(m.tickets) + 1)
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *memoryRepo) LockTickets(ctx context.Context, company string, ids []int64) ([]Ticket, error) {
	var out []Ticket
	for _, id := range ids {
		if t, ok := m.tickets[id]; ok && t.Company == company {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memoryRepo) AssignTickets(ctx context.Context, billingID int64, ids []int64) error {
	for _, id := range ids {
		bid := billingID
		m.tickets[id].BillingID = &bid
	}
	return nil
}

func (m *memoryRepo) ReleaseTickets(ctx context.Context, billingID int64) error {
	for _, t := range m.tickets {
		if t.BillingID != nil && *t.BillingID == billingID {
			t.BillingID = nil
		}
	}
	return nil
}

func (m *memoryRepo) InsertBilling(ctx context.Context, b *Billing) error {
	b.ID = int64(len(m.billings) + 1)
	b.Version = 1
	cp := *b
	m.billings[b.Number] = &cp
	return nil
}

func (m *memoryRepo) UpdateBilling(ctx context.Context, b *Billing) error { return m.save(b) }

func (m *memoryRepo) LockBilling(ctx context.Context, company, number string) (*Billing, error) {
	return m.GetBilling(ctx, company, number)
}

func (m *memoryRepo) SaveStatus(ctx context.Context, b *Billing) error { return m.save(b) }

func (m *memoryRepo) save(b *Billing) error {
	if m.billings[b.Number].Version != b.Version {
		return documents.ErrConcurrentUpdate
	}
	b.Version++
	cp := *b
	m.billings[b.Number] = &cp
	return nil
}

func newService(repo *memoryRepo) *Service {
	return NewService(repo, Config{}, documents.Hooks{}).WithNow(func() time.Time { return may })
}

func ticket(t *testing.T, svc *Service, customer int64, hours time.Duration) *Ticket {
	t.Helper()
	left := may.Add(8 * time.Hour)
	tk, err := svc.CreateTicket(context.Background(), TicketInput{
		Company: "ACME", CustomerID: customer, Vessel: "MV Harbor Star", Terminal: "PIER1",
		DateLeft: left, DateArrived: left.Add(hours), Actor: clerk,
	})
	require.NoError(t, err)
	return tk
}

func TestBillableHoursRoundsUpToQuarter(t *testing.T) {
	left := may
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{20 * time.Minute, "1"},
		{60 * time.Minute, "1"},
		{61 * time.Minute, "1.25"},
		{90 * time.Minute, "1.5"},
		{2*time.Hour + 46*time.Minute, "3"},
	}
	for _, tc := range cases {
		got, err := BillableHours(left, left.Add(tc.elapsed))
		require.NoError(t, err)
		require.True(t, got.Equal(d(tc.want)), "%s: got %s", tc.elapsed, got)
	}
	_, err := BillableHours(left, left)
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestComputeChargesAppliesDiscounts(t *testing.T) {
	tk := Ticket{
		DateLeft:            may,
		DateArrived:         may.Add(150 * time.Minute),
		DispatchDiscountPct: d("10"),
		BAFDiscountPct:      d("50"),
	}
	c, err := ComputeCharges(tk, Tariff{DispatchRate: d("4000"), BAFRate: d("480")})
	require.NoError(t, err)
	require.True(t, c.BillableHours.Equal(d("2.5")))
	require.True(t, c.DispatchCharge.Equal(d("10000")))
	require.True(t, c.BAFCharge.Equal(d("1200")))
	require.True(t, c.DispatchDiscount.Equal(d("1000")))
	require.True(t, c.BAFDiscount.Equal(d("600")))
	require.True(t, c.NetBilling.Equal(d("9600")), c.NetBilling.String())

	tk.BAFDiscountPct = d("101")
	_, err = ComputeCharges(tk, Tariff{})
	require.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestCreateTicketNeedsTariff(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	_, err := svc.CreateTicket(context.Background(), TicketInput{
		Company: "ACME", CustomerID: 7, Vessel: "MV X", Terminal: "PIER9", DateLeft: may, DateArrived: may.Add(time.Hour), Actor: clerk,
	})
	require.ErrorIs(t, err, ErrTariffNotFound)
	require.Empty(t, repo.tickets)

	tk := ticket(t, svc, 7, 2*time.Hour)
	require.Equal(t, "DT0000000001", tk.Number)
	require.True(t, tk.NetBilling.Equal(d("8960")))
	require.Equal(t, "dispatch_ticket.create", repo.Audits[0].Action)
}

func TestBillingPostBooksReceivable(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	a := ticket(t, svc, 7, 2*time.Hour)
	b := ticket(t, svc, 7, time.Hour)

	billing, err := svc.CreateBilling(context.Background(), BillingInput{
		Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{b.ID, a.ID, a.ID}, Actor: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, "DSB0000000001", billing.Number)
	require.Equal(t, []int64{a.ID, b.ID}, billing.TicketIDs)
	require.True(t, billing.Amount.Equal(d("13440")), billing.Amount.String())

	posted, err := svc.PostBilling(context.Background(), "ACME", billing.Number, billing.Version, clerk)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPosted, posted.Status)

	m := ledger.DefaultAccountMap()
	lines := repo.LinesFor(billing.Number)
	require.Len(t, lines, 3)
	require.Equal(t, m.Number(ledger.AcctARNonTrade), lines[0].AccountNumber)
	require.True(t, lines[0].Debit.Equal(d("13440")))
	require.Equal(t, ledger.SubsidiaryCustomer, lines[0].SubsidiaryType)
	require.Equal(t, m.Number(ledger.AcctServiceRevenue), lines[1].AccountNumber)
	require.True(t, lines[1].Credit.Equal(d("12000")))
	require.True(t, lines[2].Credit.Equal(d("1440")))
	require.NoError(t, ledger.ValidateBalance(lines))
}

func TestBillingRejectsBilledAndForeignTickets(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	a := ticket(t, svc, 7, time.Hour)
	other := ticket(t, svc, 8, time.Hour)

	_, err := svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID, other.ID}, Actor: clerk})
	require.ErrorIs(t, err, ErrMixedCustomers)
	require.Empty(t, repo.billings)

	_, err = svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID}, Actor: clerk})
	require.NoError(t, err)
	_, err = svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID}, Actor: clerk})
	require.ErrorIs(t, err, ErrTicketAlreadyBilled)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{99}, Actor: clerk})
	require.ErrorIs(t, err, ErrTicketNotFound)

	_, err = svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, Actor: clerk})
	require.ErrorIs(t, err, ErrNoTickets)
}

func TestVoidAndCancelReleaseTickets(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	a := ticket(t, svc, 7, time.Hour)
	b := ticket(t, svc, 7, time.Hour)

	first, err := svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID}, Actor: clerk})
	require.NoError(t, err)
	first, err = svc.PostBilling(context.Background(), "ACME", first.Number, 0, clerk)
	require.NoError(t, err)

	_, err = svc.VoidBilling(context.Background(), "ACME", first.Number, first.Version, clerk)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.True(t, repo.tickets[a.ID].Billed())

	voided, err := svc.VoidBilling(context.Background(), "ACME", first.Number, first.Version, admin)
	require.NoError(t, err)
	require.Equal(t, documents.StatusVoided, voided.Status)
	require.Empty(t, repo.LinesFor(first.Number))
	require.False(t, repo.tickets[a.ID].Billed())

	second, err := svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID, b.ID}, Actor: clerk})
	require.NoError(t, err)
	_, err = svc.CancelBilling(context.Background(), "ACME", second.Number, second.Version, "", clerk)
	require.ErrorIs(t, err, documents.ErrCancelReasonRequired)
	_, err = svc.CancelBilling(context.Background(), "ACME", second.Number, second.Version, "wrong vessel", clerk)
	require.NoError(t, err)
	require.False(t, repo.tickets[a.ID].Billed())
	require.False(t, repo.tickets[b.ID].Billed())
}

func TestEditBillingSwapsTickets(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	a := ticket(t, svc, 7, time.Hour)
	b := ticket(t, svc, 7, 2*time.Hour)

	billing, err := svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID}, Actor: clerk})
	require.NoError(t, err)

	edited, err := svc.EditBilling(context.Background(), BillingInput{
		Company: "ACME", Number: billing.Number, Version: billing.Version, Date: may, TicketIDs: []int64{b.ID}, Remarks: "re-issued", Actor: clerk,
	})
	require.NoError(t, err)
	require.True(t, edited.Amount.Equal(b.NetBilling))
	require.False(t, repo.tickets[a.ID].Billed())
	require.Equal(t, billing.ID, *repo.tickets[b.ID].BillingID)

	_, err = svc.EditBilling(context.Background(), BillingInput{
		Company: "ACME", Number: billing.Number, Version: billing.Version, Date: may, TicketIDs: []int64{a.ID}, Actor: clerk,
	})
	require.ErrorIs(t, err, documents.ErrConcurrentUpdate)
}

func TestBillingInClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	a := ticket(t, svc, 7, time.Hour)
	repo.CloseMonth(ledger.ModuleDispatch, may)

	_, err := svc.CreateBilling(context.Background(), BillingInput{Company: "ACME", Date: may, CustomerID: 7, TicketIDs: []int64{a.ID}, Actor: clerk})
	require.ErrorIs(t, err, periods.ErrPeriodClosed)
	require.False(t, repo.tickets[a.ID].Billed())
}

func TestSaveTariffValidates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	err := svc.SaveTariff(context.Background(), Tariff{Company: "ACME", Terminal: "PIER2", CustomerType: "Shipping Line", DispatchRate: d("-1")}, admin)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, svc.SaveTariff(context.Background(), Tariff{Company: "ACME", Terminal: "PIER2", CustomerType: "Shipping Line", DispatchRate: d("3500"), BAFRate: d("400")}, admin))
	tariffs, err := svc.ListTariffs(context.Background(), "ACME")
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	require.Equal(t, "dispatch_tariff.save", repo.Audits[len(repo.Audits)-1].Action)
}
