package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jurix.app/internal/audit"
)

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	fields := []byte("[]")
	if len(entry.ChangedFields) > 0 {
		data, err := json.Marshal(entry.ChangedFields)
		if err != nil {
			return fmt.Errorf("marshal changed fields: %w", err)
		}
		fields = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, tenant_id, user_id, action, entity, entity_id, before, after, changed_fields, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.TenantID, nullIfEmpty(entry.UserID), entry.Action, entry.Entity,
		nullIfEmpty(entry.EntityID), nullIfEmptyJSON(entry.Before), nullIfEmptyJSON(entry.After),
		fields, entry.OccurredAt)
	return err
}

func (s *Store) History(ctx context.Context, q audit.HistoryQuery) ([]audit.Entry, error) {
	if strings.TrimSpace(q.TenantID) == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	where := []string{"tenant_id = $1"}
	args := []any{q.TenantID}
	idx := 2
	if q.Entity != "" {
		where = append(where, fmt.Sprintf("entity = $%d", idx))
		args = append(args, q.Entity)
		idx++
	}
	if q.EntityID != "" {
		where = append(where, fmt.Sprintf("entity_id = $%d", idx))
		args = append(args, q.EntityID)
		idx++
	}
	if q.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, q.UserID)
		idx++
	}
	query := fmt.Sprintf(`
		select id, tenant_id, coalesce(user_id, ''), action, entity, coalesce(entity_id, ''),
		       before, after, changed_fields, occurred_at
		from audit_log
		where %s
		order by occurred_at desc, id desc
		limit $%d
	`, strings.Join(where, " and "), idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e             audit.Entry
			before, after []byte
			fields        []byte
		)
		// before/after are nullable; a raw scan into json.RawMessage rejects NULL.
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Entity, &e.EntityID,
			&before, &after, &fields, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			e.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &e.ChangedFields); err != nil {
				return nil, fmt.Errorf("decode changed fields: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from audit_log where tenant_id = $1 and occurred_at < $2
	`, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeAllBefore runs retention across every tenant, for the scheduled job.
func (s *Store) PurgeAllBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_log where occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullIfEmptyJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
