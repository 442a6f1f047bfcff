package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"jurix.app/internal/ids"
	"jurix.app/internal/obs"
)

// Logger appends entries without ever failing the business operation that
// produced them. Store errors are reported to the log and a metric, not to
// the caller.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger constructs a Logger. A nil store degrades to structured log
// lines, which keeps the trail visible in environments without a database.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Append records the entry, filling ID and timestamp when absent. It has no
// error return: a lost audit line must not fail the mutation it describes.
func (l *Logger) Append(ctx context.Context, entry Entry) {
	if strings.TrimSpace(entry.Action) == "" {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = l.now().UTC()
	}
	if l.store == nil {
		l.logLine(entry)
		return
	}
	if err := l.store.Append(ctx, &entry); err != nil {
		obs.AuditAppendFailure()
		obs.LogRequest(map[string]any{
			"ts":    l.now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit append failed",
			"event": entry.Action,
			"error": err.Error(),
		})
	}
}

func (l *Logger) logLine(entry Entry) {
	data, err := json.Marshal(map[string]any{
		"ts":     entry.OccurredAt.Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  entry.Action,
		"tenant": entry.TenantID,
		"user":   entry.UserID,
		"entity": entry.Entity,
		"id":     entry.EntityID,
		"fields": entry.ChangedFields,
	})
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
