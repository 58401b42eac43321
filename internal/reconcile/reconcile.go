// Package reconcile surfaces ledger entries stuck in pending_reconciliation
// and lets an operator resolve them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/storage"
)

// DefaultSweepInterval is how often the sweeper runs when unset.
const DefaultSweepInterval = 5 * time.Minute

// Service lists and resolves pending_reconciliation entries.
type Service struct {
	txs     storage.TransactionStore
	metrics *observability.Metrics
	log     *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(txs storage.TransactionStore, metrics *observability.Metrics, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{txs: txs, metrics: metrics, log: log.With("component", "reconcile")}
}

// Pending returns unresolved entries, oldest first.
func (s *Service) Pending(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := s.txs.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return rows, nil
}

// Sweep counts unresolved entries per kind, publishes the counts and logs
// every row.
func (s *Service) Sweep(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, t := range rows {
		counts[string(t.Kind)]++
		s.log.Errorw("unresolved ledger entry",
			"reconciliation", true,
			"id", t.ID,
			"kind", t.Kind,
			"wallet", t.UserWallet,
			"amount", t.Amount,
			"signature", t.TxSignature,
			"reference_id", t.ReferenceID,
			"age", time.Since(t.CreatedAt).Round(time.Second),
		)
	}
	s.metrics.SetPendingReconciliation(counts)

	if len(rows) > 0 {
		s.log.Infow("reconciliation sweep", "pending", len(rows), "by_kind", counts)
	}
	return counts, nil
}

// Resolve closes a pending_reconciliation entry as completed or failed.
// The balance is not touched; an operator that moves funds records that separately.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, status domain.TxStatus, note string) error {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return domain.Validationf("resolution status must be %s or %s", domain.TxStatusCompleted, domain.TxStatusFailed)
	}
	if note == "" {
		return domain.Validationf("resolution note is required")
	}

	err := s.txs.Resolve(ctx, id, status, note)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.Validationf("no pending_reconciliation entry %s", id)
	case err != nil:
		return fmt.Errorf("resolve %s: %w", id, err)
	}

	s.log.Infow("ledger entry resolved", "id", id, "status", status, "note", note)
	return nil
}

// Sweeper runs Sweep on a schedule.
type Sweeper struct {
	scheduler gocron.Scheduler
	svc       *Service
	interval  time.Duration
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// NewSweeper creates a Sweeper. interval <= 0 uses DefaultSweepInterval.
func NewSweeper(svc *Service, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Sweeper{
		scheduler: s,
		svc:       svc,
		interval:  interval,
		timeout:   interval / 2,
		log:       svc.log,
	}, nil
}

// Start registers the sweep job, runs it once immediately and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("reconciliation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.scheduler.Start()
	s.log.Infow("reconciliation sweeper started", "interval", s.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *Sweeper) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		s.log.Warnw("scheduler shutdown", "error", err)
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.svc.Sweep(ctx); err != nil {
		s.log.Errorw("reconciliation sweep failed", "error", err)
	}
}
