package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *transaction.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByReference(ctx context.Context, reference string) ([]*transaction.AuditEntry, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.AuditEntry), args.Error(1)
}

func TestNewAuditRepository(t *testing.T) {
	db := &mongo.Database{}
	logger := slog.Default()

	repo := NewAuditRepository(logger, db)

	assert.NotNil(t, repo)
	assert.IsType(t, &AuditRepository{}, repo)
}

func TestAuditRepository_Append(t *testing.T) {
	ctx := context.Background()
	entry := &transaction.AuditEntry{
		Reference: "ref-1234",
		State:     transaction.StatePending,
		At:        time.Now(),
		Note:      "transaction created",
	}

	t.Run("success", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		mockRepo.On("Append", ctx, entry).Return(nil)

		err := mockRepo.Append(ctx, entry)

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("insert failure", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		expectedErr := errors.New("insert failed")
		mockRepo.On("Append", ctx, entry).Return(expectedErr)

		err := mockRepo.Append(ctx, entry)

		assert.Error(t, err)
		assert.Equal(t, expectedErr, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestAuditRepository_ListByReference(t *testing.T) {
	ctx := context.Background()
	reference := "ref-1234"

	t.Run("success", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		expected := []*transaction.AuditEntry{
			{Reference: reference, State: transaction.StatePending, At: time.Now(), Note: "transaction created"},
			{Reference: reference, State: transaction.StateProcessing, At: time.Now(), Note: "payment confirmed"},
		}
		mockRepo.On("ListByReference", ctx, reference).Return(expected, nil)

		entries, err := mockRepo.ListByReference(ctx, reference)

		assert.NoError(t, err)
		assert.Equal(t, expected, entries)
		mockRepo.AssertExpectations(t)
	})

	t.Run("query failure", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		expectedErr := errors.New("find failed")
		mockRepo.On("ListByReference", ctx, reference).Return(nil, expectedErr)

		entries, err := mockRepo.ListByReference(ctx, reference)

		assert.Error(t, err)
		assert.Nil(t, entries)
		mockRepo.AssertExpectations(t)
	})
}
