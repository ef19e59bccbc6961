// Package importer loads a legacy chart of accounts and opening balances from
// CSV files into the ledger.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

// ErrDirNotConfigured indicates IMPORT_DIR is empty.
var ErrDirNotConfigured = errors.New("importer: import directory not configured")

// Tx is the unit of work of one import run.
type Tx interface {
	ledger.Store
	periods.Checker
	UpsertAccountTitle(ctx context.Context, title ledger.AccountTitle) error
	ReferenceExists(ctx context.Context, company, reference string) (bool, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Store opens import transactions.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Request identifies the company and user an import runs for.
type Request struct {
	Company string `json:"company"`
	ActorID string `json:"actor_id"`
}

// Result summarises an import run.
type Result struct {
	RunID    uuid.UUID `json:"run_id"`
	Accounts int       `json:"accounts"`
	Entries  int       `json:"entries"`
	Skipped  int       `json:"skipped"`
}

// Importer reads the legacy files from a directory.
type Importer struct {
	store  Store
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an importer rooted at dir.
func New(store Store, dir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, dir: dir, logger: logger, now: time.Now}
}

// Run upserts the chart of accounts and posts every opening balance reference
// not yet in the ledger. The run is one transaction: any invalid or unbalanced
// reference aborts it.
func (i *Importer) Run(ctx context.Context, req Request) (Result, error) {
	result := Result{RunID: uuid.New()}
	if strings.TrimSpace(i.dir) == "" {
		return result, ErrDirNotConfigured
	}
	if req.Company == "" || req.ActorID == "" {
		return result, fmt.Errorf("%w: company and actor are required", shared.ErrInvalidInput)
	}
	titles, entries, err := i.load(ctx, req)
	if err != nil {
		return result, err
	}

	started := i.now()
	err = i.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		result.Accounts, result.Entries, result.Skipped = 0, 0, 0
		for _, title := range titles {
			if err := tx.UpsertAccountTitle(ctx, title); err != nil {
				return fmt.Errorf("importer: account %s: %w", title.Number, err)
			}
			result.Accounts++
		}
		now := i.now().UTC()
		for _, entry := range entries {
			exists, err := tx.ReferenceExists(ctx, entry.Company, entry.Reference)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}
			if err := periods.EnsureOpen(ctx, tx, entry.Company, entry.Module, entry.Date); err != nil {
				return fmt.Errorf("importer: reference %s: %w", entry.Reference, err)
			}
			if _, err := ledger.Post(ctx, tx, entry, now); err != nil {
				return fmt.Errorf("importer: reference %s: %w", entry.Reference, err)
			}
			result.Entries++
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Company:  req.Company,
			ActorID:  req.ActorID,
			Action:   "import.run",
			Entity:   "import",
			EntityID: result.RunID.String(),
			Meta:     map[string]any{"accounts": result.Accounts, "entries": result.Entries, "skipped": result.Skipped},
			At:       now,
		})
	})
	if err != nil {
		i.logger.Error("legacy import failed", slog.String("run_id", result.RunID.String()), slog.String("company", req.Company), slog.Any("error", err))
		return result, err
	}
	i.logger.Info("legacy import finished",
		slog.String("run_id", result.RunID.String()),
		slog.String("company", req.Company),
		slog.Int("accounts", result.Accounts),
		slog.Int("entries", result.Entries),
		slog.Int("skipped", result.Skipped),
		slog.Duration("took", i.now().Sub(started)))
	return result, nil
}

// load parses both files concurrently. The opening balances file is optional.
func (i *Importer) load(ctx context.Context, req Request) ([]ledger.AccountTitle, []ledger.Entry, error) {
	var (
		titles  []ledger.AccountTitle
		entries []ledger.Entry
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := os.Open(filepath.Join(i.dir, ChartFile))
		if err != nil {
			return fmt.Errorf("importer: open %s: %w", ChartFile, err)
		}
		defer f.Close()
		titles, err = ParseChart(req.Company, f)
		return err
	})
	g.Go(func() error {
		f, err := os.Open(filepath.Join(i.dir, OpeningBalancesFile))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("importer: open %s: %w", OpeningBalancesFile, err)
		}
		defer f.Close()
		entries, err = ParseOpeningBalances(req.Company, req.ActorID, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return titles, entries, nil
}
