package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one immutable audit record. Entries are append-only; nothing
// updates or deletes them short of a tenant-wide data purge.
type Entry struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	UserID        string          `json:"usuarioId,omitempty"`
	Action        string          `json:"acao"`
	Entity        string          `json:"entidade"`
	EntityID      string          `json:"entidadeId,omitempty"`
	Before        json.RawMessage `json:"antes,omitempty"`
	After         json.RawMessage `json:"depois,omitempty"`
	ChangedFields []string        `json:"camposAlterados,omitempty"`
	OccurredAt    time.Time       `json:"ocorridoEm"`
}

// HistoryQuery filters the audit trail. TenantID is mandatory; entries never
// cross the tenant boundary.
type HistoryQuery struct {
	TenantID string
	Entity   string
	EntityID string
	UserID   string
	Limit    int
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	History(ctx context.Context, q HistoryQuery) ([]Entry, error)
	PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}
