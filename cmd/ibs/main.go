package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harborline/ibs/cmd/ibs/cli"
	"github.com/harborline/ibs/internal/app"
	"github.com/harborline/ibs/internal/delivery"
	"github.com/harborline/ibs/internal/dispatch"
	"github.com/harborline/ibs/internal/importer"
	"github.com/harborline/ibs/internal/memos"
	"github.com/harborline/ibs/internal/notifications"
	"github.com/harborline/ibs/internal/observability"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/platform/cache"
	"github.com/harborline/ibs/internal/platform/db"
	"github.com/harborline/ibs/internal/procurement"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/jobs"
	"github.com/harborline/ibs/migrations"
)

const usage = `usage: ibs <command> [flags]

commands:
  serve                          run the HTTP API (default)
  migrate [up|down|version]      apply or roll back the embedded schema
  import -company C -actor U     load the legacy chart and opening balances from IMPORT_DIR
         [-async]                queue the import on the worker instead of running it here
  jobs stats                     show default queue counters
  jobs scheduled                 list the next scheduled tasks
  jobs trigger TYPE [flags]      enqueue gl:integrity or period:close
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = runMigrate(cfg, logger, args)
	case "import":
		err = runImport(ctx, cfg, logger, args)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queue := jobs.NewClient(cache.QueueOpts(cfg.RedisAddr))
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cache.QueueOpts(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(app.ServiceDeps{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Queue:    queue,
		Observer: metrics,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		MemoHandler:         memos.NewHandler(logger, services.Memos),
		DeliveryHandler:     delivery.NewHandler(logger, services.Delivery),
		ProcurementHandler:  procurement.NewHandler(logger, services.Procurement),
		DispatchHandler:     dispatch.NewHandler(logger, services.Dispatch),
		PeriodHandler:       periods.NewHandler(logger, services.Periods),
		ReportHandler:       reports.NewHandler(logger, services.Reports),
		NotificationHandler: notifications.NewHandler(logger, services.Notifications),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
		Idempotency:         app.NewIdempotencyStore(redisClient, 24*time.Hour),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	migrator, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("migrator close", slog.Any("error", err))
		}
	}()

	switch direction {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("migrate: unknown direction %q", direction)
	}
}

func runImport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	company := fs.String("company", "", "company code")
	actor := fs.String("actor", "", "user recorded as creator of the imported entries")
	async := fs.Bool("async", false, "queue the import on the worker")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *company == "" || *actor == "" {
		return errors.New("import: -company and -actor are required")
	}
	req := importer.Request{Company: *company, ActorID: *actor}

	if *async {
		queue := jobs.NewClient(cache.QueueOpts(cfg.RedisAddr))
		defer queue.Close()
		info, err := queue.EnqueueImport(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("import queued", slog.String("task_id", info.ID))
		return nil
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := importer.New(importer.NewRepository(pool), cfg.ImportDir, logger).Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d accounts, %d entries, %d skipped\n", result.RunID, result.Accounts, result.Entries, result.Skipped)
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: expected stats, scheduled or trigger")
	}
	opts := cache.QueueOpts(cfg.RedisAddr)
	client := asynq.NewClient(opts)
	defer client.Close()
	inspector := asynq.NewInspector(opts)
	defer inspector.Close()
	helpers := cli.NewJobsCLI(client, inspector)

	switch args[0] {
	case "stats":
		stats, err := helpers.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Println(stats)
	case "scheduled":
		tasks, err := helpers.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.NextAt.Format(time.RFC3339), t.Type, t.ID)
		}
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs trigger: task type required")
		}
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		var targs cli.TriggerArgs
		fs.StringVar(&targs.Company, "company", "", "company code")
		fs.StringVar(&targs.Module, "module", "", "AR, AP, DISPATCH or GL")
		fs.StringVar(&targs.Month, "month", "", "month as 2006-01")
		fs.StringVar(&targs.ActorID, "actor", "", "user closing the period")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := helpers.Trigger(ctx, args[1], targs)
		if err != nil {
			return err
		}
		fmt.Printf("queued %s as %s\n", info.Type, info.ID)
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}
