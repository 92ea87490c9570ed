package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/data/memory"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
)

type MockStatusQuerier struct {
	mock.Mock
}

func (m *MockStatusQuerier) QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.StatusResult, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}

func newTestPoller(t *testing.T, store transaction.Store, querier StatusQuerier) *Poller {
	t.Helper()
	logger := newTestLogger()
	engine := NewEngine(logger, store, nil, nil)
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	cfg := &config.ReconcilerConfig{PollInterval: 10 * time.Millisecond}
	p := NewPoller(logger, cfg, store, querier, engine, pool)
	p.ctx = context.Background()
	return p
}

func TestPoller_Tick_AppliesStatusResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)

	rec := newPendingRecord(t, store, "ws_CO_100", "")
	querier.On("QueryStatus", ctx, "ws_CO_100").
		Return(&gateway.StatusResult{Status: "completed", ReceiptNumber: "QK10AA10"}, nil).Once()

	p.tick(ctx, rec.Reference)

	got, err := store.GetByReference(ctx, rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateProcessing, got.State)
	require.NotNil(t, got.Detail.ReceiptNumber)
	assert.Equal(t, "QK10AA10", *got.Detail.ReceiptNumber)
	querier.AssertExpectations(t)
}

func TestPoller_Tick_TerminalRecordStopsTracking(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)

	rec := newPendingRecord(t, store, "ws_CO_101", "")
	_, err := store.Update(ctx, rec.Reference, func(r *transaction.Record) error {
		r.Apply(transaction.EventPaymentFailed, "", nil)
		return nil
	})
	require.NoError(t, err)

	canceled := 0
	p.tracked[rec.Reference] = func() { canceled++ }

	p.tick(ctx, rec.Reference)
	p.tick(ctx, rec.Reference)

	assert.Equal(t, 1, canceled, "tracking must be released exactly once")
	assert.NotContains(t, p.tracked, rec.Reference)
	querier.AssertNotCalled(t, "QueryStatus", mock.Anything, mock.Anything)
}

func TestPoller_Tick_MissingRecordStopsTracking(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)

	canceled := 0
	p.tracked["ghost-ref"] = func() { canceled++ }

	p.tick(ctx, "ghost-ref")

	assert.Equal(t, 1, canceled)
	assert.NotContains(t, p.tracked, "ghost-ref")
}

func TestPoller_Tick_NoCheckoutIDSkipsQuery(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)

	rec := newPendingRecord(t, store, "", "")

	p.tick(ctx, rec.Reference)

	got, err := store.GetByReference(ctx, rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatePending, got.State)
	querier.AssertNotCalled(t, "QueryStatus", mock.Anything, mock.Anything)
}

func TestPoller_Tick_QueryErrorRetriedNextTick(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)

	rec := newPendingRecord(t, store, "ws_CO_102", "")

	querier.On("QueryStatus", ctx, "ws_CO_102").
		Return(nil, &gateway.Error{StatusHint: 503, Message: "unavailable"}).Once()
	querier.On("QueryStatus", ctx, "ws_CO_102").
		Return(&gateway.StatusResult{Status: "completed"}, nil).Once()

	p.tick(ctx, rec.Reference)
	mid, err := store.GetByReference(ctx, rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatePending, mid.State, "query failure must not change state")

	p.tick(ctx, rec.Reference)
	got, err := store.GetByReference(ctx, rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateProcessing, got.State)
	querier.AssertExpectations(t)
}

func TestPoller_Track_DeduplicatesReferences(t *testing.T) {
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	p := newTestPoller(t, store, querier)
	ctx, cancel := context.WithCancel(context.Background())
	p.ctx = ctx

	p.Track("ref-a")
	p.Track("ref-a")
	p.Track("ref-b")

	p.mu.Lock()
	tracked := len(p.tracked)
	p.mu.Unlock()
	assert.Equal(t, 2, tracked)

	cancel()
	p.wg.Wait()
}

func TestPoller_Track_BeforeStartIsNoOp(t *testing.T) {
	store := memory.NewTransactionStore()
	querier := new(MockStatusQuerier)
	logger := newTestLogger()
	engine := NewEngine(logger, store, nil, nil)
	pool, err := ants.NewPool(1)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	p := NewPoller(logger, &config.ReconcilerConfig{PollInterval: time.Second}, store, querier, engine, pool)

	p.Track("ref-early")
	assert.Empty(t, p.tracked)
}
