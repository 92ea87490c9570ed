package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

// Sweeper releases confirmed payments after their dwell period. It scans a
// snapshot of processing transactions on a global ticker; each release is its
// own atomic update, so a record confirmed mid-sweep is simply picked up on
// the next pass.
type Sweeper struct {
	logger        *slog.Logger
	store         transaction.Store
	engine        *Engine
	sweepInterval time.Duration
	dwell         time.Duration
}

func NewSweeper(
	logger *slog.Logger,
	cfg *config.ReconcilerConfig,
	store transaction.Store,
	engine *Engine,
) *Sweeper {
	return &Sweeper{
		logger:        logger,
		store:         store,
		engine:        engine,
		sweepInterval: cfg.SweepInterval,
		dwell:         cfg.ReleaseDwell,
	}
}

// Start begins sweeping until context is canceled
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting release sweeper",
		"sweep_interval", s.sweepInterval.String(),
		"release_dwell", s.dwell.String(),
	)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Release sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("Error during release sweep", "error", err)
			}
		}
	}
}

// sweep releases every processing transaction whose dwell has elapsed.
// Per-record failures are logged and skipped so one bad record cannot stall
// the rest of the sweep.
func (s *Sweeper) sweep(ctx context.Context) error {
	records, err := s.store.ListByState(ctx, transaction.StateProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing transactions: %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	released := 0
	for _, rec := range records {
		if rec.ConfirmedAt == nil {
			// Should not happen: ConfirmedAt is set on entering processing
			s.logger.Warn("Processing transaction without confirmation time, skipping", "reference", rec.Reference)
			continue
		}
		if now.Sub(*rec.ConfirmedAt) < s.dwell {
			continue
		}

		if err := s.engine.Release(ctx, rec.Reference); err != nil {
			s.logger.Error("Failed to release transaction", "reference", rec.Reference, "error", err)
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.Info("Release sweep completed", "scanned", len(records), "released", released)
	}
	return nil
}
