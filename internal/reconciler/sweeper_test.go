package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/data/memory"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

// confirmRecord moves a pending record to processing and backdates its
// confirmation time by age
func confirmRecord(t *testing.T, store transaction.Store, reference string, age time.Duration) {
	t.Helper()
	_, err := store.Update(context.Background(), reference, func(r *transaction.Record) error {
		r.Apply(transaction.EventPaymentConfirmed, "", nil)
		confirmed := time.Now().Add(-age)
		r.ConfirmedAt = &confirmed
		return nil
	})
	require.NoError(t, err)
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	cfg := &config.ReconcilerConfig{
		SweepInterval: time.Minute,
		ReleaseDwell:  24 * time.Hour,
	}

	t.Run("releases transactions past the dwell", func(t *testing.T) {
		store := memory.NewTransactionStore()
		engine := NewEngine(logger, store, nil, nil)
		sweeper := NewSweeper(logger, cfg, store, engine)

		due := newPendingRecord(t, store, "ws_CO_200", "")
		confirmRecord(t, store, due.Reference, 25*time.Hour)

		require.NoError(t, sweeper.sweep(ctx))

		got, err := store.GetByReference(ctx, due.Reference)
		require.NoError(t, err)
		assert.Equal(t, transaction.StateReleased, got.State)
	})

	t.Run("leaves transactions within the dwell", func(t *testing.T) {
		store := memory.NewTransactionStore()
		engine := NewEngine(logger, store, nil, nil)
		sweeper := NewSweeper(logger, cfg, store, engine)

		recent := newPendingRecord(t, store, "ws_CO_201", "")
		confirmRecord(t, store, recent.Reference, time.Hour)

		require.NoError(t, sweeper.sweep(ctx))

		got, err := store.GetByReference(ctx, recent.Reference)
		require.NoError(t, err)
		assert.Equal(t, transaction.StateProcessing, got.State)
	})

	t.Run("ignores non-processing transactions", func(t *testing.T) {
		store := memory.NewTransactionStore()
		engine := NewEngine(logger, store, nil, nil)
		sweeper := NewSweeper(logger, cfg, store, engine)

		pending := newPendingRecord(t, store, "ws_CO_202", "")

		require.NoError(t, sweeper.sweep(ctx))

		got, err := store.GetByReference(ctx, pending.Reference)
		require.NoError(t, err)
		assert.Equal(t, transaction.StatePending, got.State)
	})

	t.Run("releases only the due subset", func(t *testing.T) {
		store := memory.NewTransactionStore()
		engine := NewEngine(logger, store, nil, nil)
		sweeper := NewSweeper(logger, cfg, store, engine)

		due := newPendingRecord(t, store, "ws_CO_203", "")
		confirmRecord(t, store, due.Reference, 30*time.Hour)

		notDue, err := transaction.NewRecord("254722000111", 900)
		require.NoError(t, err)
		notDue.CheckoutRequestID = "ws_CO_204"
		notDue.Apply(transaction.EventGatewayAccepted, "", nil)
		require.NoError(t, store.Create(ctx, notDue))
		confirmRecord(t, store, notDue.Reference, 23*time.Hour)

		require.NoError(t, sweeper.sweep(ctx))

		gotDue, err := store.GetByReference(ctx, due.Reference)
		require.NoError(t, err)
		assert.Equal(t, transaction.StateReleased, gotDue.State)

		gotNotDue, err := store.GetByReference(ctx, notDue.Reference)
		require.NoError(t, err)
		assert.Equal(t, transaction.StateProcessing, gotNotDue.State)
	})
}
