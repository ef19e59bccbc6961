package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/harborline/ibs/internal/delivery"
	"github.com/harborline/ibs/internal/dispatch"
	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/importer"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/memos"
	"github.com/harborline/ibs/internal/notifications"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/procurement"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/internal/shared"
	"github.com/harborline/ibs/jobs"
)

// Services holds the domain services shared by the API server, the worker and the CLI.
type Services struct {
	Ledger        *ledger.Repository
	Periods       *periods.Service
	Reports       *reports.Service
	Notifications *notifications.Service
	Memos         *memos.Service
	Delivery      *delivery.Service
	Procurement   *procurement.Service
	Dispatch      *dispatch.Service
	Importer      *importer.Importer
}

// ServiceDeps are the connections the services are built on. Queue may be nil,
// in which case notifications are delivered inline.
type ServiceDeps struct {
	Config   *Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Queue    notifications.Enqueuer
	Observer shared.PostingObserver
}

// NewServices wires repositories, the statement cache and the document hooks.
func NewServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	ledgerRepo := ledger.NewRepository(deps.Pool)
	periodRepo := periods.NewRepository(deps.Pool)
	statementCache := reports.NewCache(deps.Redis, cfg.ReportCacheTTL)

	notifier := notifications.NewService(
		notifications.NewRepository(deps.Pool),
		deps.Queue,
		deps.Redis,
		notifications.Config{AccountingUsers: cfg.AccountingUsers, Queue: jobs.QueueDefault},
		deps.Logger,
	)
	hooks := documents.Hooks{
		Logger:   deps.Logger,
		Notifier: notifier,
		Cache:    statementCache,
		Observer: deps.Observer,
	}

	return &Services{
		Ledger:        ledgerRepo,
		Periods:       periods.NewService(periodRepo, statementCache),
		Reports:       reports.NewService(ledgerRepo, periodRepo, statementCache),
		Notifications: notifier,
		Memos:         memos.NewService(memos.NewRepository(deps.Pool), memos.Config{Accounts: cfg.Accounts, VATRate: cfg.VATRate}, hooks),
		Delivery:      delivery.NewService(delivery.NewRepository(deps.Pool), delivery.Config{Accounts: cfg.Accounts, VATRate: cfg.VATRate}, hooks),
		Procurement:   procurement.NewService(procurement.NewRepository(deps.Pool), procurement.Config{Accounts: cfg.Accounts, VATRate: cfg.VATRate}, hooks),
		Dispatch:      dispatch.NewService(dispatch.NewRepository(deps.Pool), dispatch.Config{Accounts: cfg.Accounts, VATRate: cfg.VATRate}, hooks),
		Importer:      importer.New(importer.NewRepository(deps.Pool), cfg.ImportDir, deps.Logger),
	}
}
