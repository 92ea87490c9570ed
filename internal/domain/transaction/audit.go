package transaction

import (
	"context"
	"encoding/json"
	"time"
)

// AuditEntry mirrors one record log entry into the audit archive. The
// in-record log remains the source of truth; the archive is a best-effort
// copy that survives record-store compaction and serves the audit read API.
type AuditEntry struct {
	Reference string          `json:"reference" bson:"reference"`
	State     State           `json:"state" bson:"state"`
	At        time.Time       `json:"at" bson:"at"`
	Note      string          `json:"note" bson:"note"`
	Raw       json.RawMessage `json:"raw,omitempty" bson:"raw,omitempty"`
}

// AuditRepository manages archived audit entries
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByReference(ctx context.Context, reference string) ([]*AuditEntry, error)
}
