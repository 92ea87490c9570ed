package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
)

// StatusQuerier is the slice of the gateway client the poller needs
type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.StatusResult, error)
}

// Poller runs one watcher goroutine per in-flight transaction and queries the
// gateway on a fixed interval. The watchers only schedule work; the actual
// gateway calls go through a shared worker pool so the number of concurrent
// outbound queries stays bounded no matter how many transactions are open.
type Poller struct {
	logger   *slog.Logger
	store    transaction.Store
	querier  StatusQuerier
	engine   *Engine
	pool     *ants.Pool
	interval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	tracked map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewPoller(
	logger *slog.Logger,
	cfg *config.ReconcilerConfig,
	store transaction.Store,
	querier StatusQuerier,
	engine *Engine,
	pool *ants.Pool,
) *Poller {
	return &Poller{
		logger:   logger,
		store:    store,
		querier:  querier,
		engine:   engine,
		pool:     pool,
		interval: cfg.PollInterval,
		tracked:  make(map[string]context.CancelFunc),
	}
}

// Start resumes tracking for transactions that were in flight before the
// process started, then blocks until the context is canceled and every
// watcher has drained.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	p.logger.Info("Starting status poller", "poll_interval", p.interval.String())

	p.resume(ctx)

	<-ctx.Done()
	p.logger.Info("Status poller stopping due to context cancellation.")
	p.wg.Wait()
}

// Track starts watching a transaction. Tracking the same reference twice is
// a no-op; the first watcher keeps running.
func (p *Poller) Track(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.logger.Warn("Poller not started, cannot track transaction", "reference", reference)
		return
	}
	if _, ok := p.tracked[reference]; ok {
		return
	}

	watchCtx, cancel := context.WithCancel(p.ctx)
	p.tracked[reference] = cancel
	p.wg.Add(1)
	go p.watch(watchCtx, reference)

	p.logger.Debug("Tracking transaction", "reference", reference)
}

// untrack cancels a watcher exactly once. Subsequent calls for the same
// reference find nothing in the map and return.
func (p *Poller) untrack(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.tracked[reference]
	if !ok {
		return
	}
	delete(p.tracked, reference)
	cancel()
	p.logger.Debug("Stopped tracking transaction", "reference", reference)
}

// resume re-tracks every non-terminal transaction found in the store so a
// restart does not strand in-flight payments on the webhook channel alone
func (p *Poller) resume(ctx context.Context) {
	for _, state := range []transaction.State{transaction.StatePending, transaction.StateProcessing} {
		records, err := p.store.ListByState(ctx, state)
		if err != nil {
			p.logger.Error("Failed to resume tracking", "state", state, "error", err)
			continue
		}
		for _, rec := range records {
			p.Track(rec.Reference)
		}
	}
}

func (p *Poller) watch(ctx context.Context, reference string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ref := reference
			if err := p.pool.Submit(func() { p.tick(ctx, ref) }); err != nil {
				p.logger.Error("Failed to submit poll tick to worker pool", "reference", reference, "error", err)
			}
		}
	}
}

// tick performs one status query cycle for a transaction. Terminal or missing
// records end tracking; everything else is retried on the next tick.
func (p *Poller) tick(ctx context.Context, reference string) {
	rec, err := p.store.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound{}) {
			p.logger.Warn("Tracked transaction no longer exists, stopping", "reference", reference)
			p.untrack(reference)
			return
		}
		p.logger.Error("Failed to load tracked transaction", "reference", reference, "error", err)
		return
	}

	if rec.State.Terminal() {
		p.untrack(reference)
		return
	}

	if rec.CheckoutRequestID == "" {
		// Nothing to query yet; the initiate call has not assigned an ID
		return
	}

	res, err := p.querier.QueryStatus(ctx, rec.CheckoutRequestID)
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && !gwErr.Transient() {
			p.logger.Warn("Gateway rejected status query",
				"reference", reference,
				"checkout_request_id", rec.CheckoutRequestID,
				"error", err,
			)
		} else {
			p.logger.Error("Status query failed, will retry next tick", "reference", reference, "error", err)
		}
		return
	}

	if err := p.engine.HandlePollResult(ctx, reference, res); err != nil {
		p.logger.Error("Failed to apply poll result", "reference", reference, "error", err)
	}
}
