package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

const (
	// AuditCollectionName is the name of the audit collection in MongoDB
	AuditCollectionName = "audit_entries"
)

// AuditRepository implements the transaction.AuditRepository interface for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) transaction.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores one audit entry. Entries are append-only; there is no update
// or delete path.
func (r *AuditRepository) Append(ctx context.Context, entry *transaction.AuditEntry) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			"reference", entry.Reference,
			"error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByReference retrieves all archived entries for a transaction, oldest
// first so the result reads as a timeline.
func (r *AuditRepository) ListByReference(ctx context.Context, reference string) ([]*transaction.AuditEntry, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"reference": reference}
	opts := options.Find().SetSort(bson.M{"at": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			"reference", reference,
			"error", err)
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*transaction.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode audit entries",
			"reference", reference,
			"error", err)
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	return entries, nil
}
