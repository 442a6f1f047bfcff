package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jurix.app/internal/authz"
	"jurix.app/internal/ids"
)

func (s *Store) OverridesForUser(ctx context.Context, tenantID, userID string) ([]authz.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		select tenant_id, user_id, module, action, allowed, created_at
		from permission_overrides
		where tenant_id = $1 and user_id = $2
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []authz.Override
	for rows.Next() {
		var o authz.Override
		if err := rows.Scan(&o.TenantID, &o.UserID, &o.Module, &o.Action, &o.Allowed, &o.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

func (s *Store) ActiveGrantsForUser(ctx context.Context, tenantID, userID string) ([]authz.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select g.module, g.action, g.allowed
		from user_cargos uc
		join cargos c on c.id = uc.cargo_id and c.active
		join cargo_grants g on g.cargo_id = c.id
		where uc.tenant_id = $1 and uc.user_id = $2
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []authz.Grant
	for rows.Next() {
		var g authz.Grant
		if err := rows.Scan(&g.Module, &g.Action, &g.Allowed); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) CreatePosition(ctx context.Context, p *authz.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := ids.New()
	row := tx.QueryRowContext(ctx, `
		insert into cargos (id, tenant_id, name, level, active)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, id, p.TenantID, p.Name, p.Level, p.Active)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.ErrNotFound
			}
		}
		return err
	}
	if err := insertGrants(ctx, tx, id, p.Grants); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (*authz.Position, error) {
	var p authz.Position
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, level, active, created_at, updated_at
		from cargos
		where id = $1
	`, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	grants, err := s.positionGrants(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Grants = grants
	return &p, nil
}

func (s *Store) ListPositions(ctx context.Context, tenantID string) ([]*authz.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, level, active, created_at, updated_at
		from cargos
		where tenant_id = $1
		order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*authz.Position
	for rows.Next() {
		var p authz.Position
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range positions {
		grants, err := s.positionGrants(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Grants = grants
	}
	return positions, nil
}

func (s *Store) UpdatePosition(ctx context.Context, id string, upd authz.PositionUpdate) (*authz.Position, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Level != nil {
		sets = append(sets, fmt.Sprintf("level = $%d", idx))
		args = append(args, *upd.Level)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update cargos set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, authz.ErrConflict
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, authz.ErrNotFound
		}
	}
	return s.GetPosition(ctx, id)
}

func (s *Store) SetPositionActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update cargos set active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) SetPositionGrants(ctx context.Context, id string, grants []authz.Grant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from cargos where id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from cargo_grants where cargo_id = $1`, id); err != nil {
		return err
	}
	if err := insertGrants(ctx, tx, id, grants); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update cargos set updated_at = now() where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AssignPosition(ctx context.Context, tenantID, userID, positionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cargoTenant string
	if err := tx.QueryRowContext(ctx, `select tenant_id from cargos where id = $1`, positionID).Scan(&cargoTenant); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ErrNotFound
		}
		return err
	}
	if cargoTenant != tenantID {
		return fmt.Errorf("%w: cargo belongs to another tenant", authz.ErrInvalidInput)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into user_cargos (user_id, cargo_id, tenant_id)
		values ($1, $2, $3)
	`, userID, positionID, tenantID); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.ErrNotFound
			}
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) UnassignPosition(ctx context.Context, userID, positionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_cargos
		where user_id = $1 and cargo_id = $2
	`, userID, positionID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) PositionUserIDs(ctx context.Context, positionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id from user_cargos where cargo_id = $1 order by user_id
	`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (s *Store) PutOverride(ctx context.Context, o authz.Override) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permission_overrides (tenant_id, user_id, module, action, allowed)
		values ($1, $2, $3, $4, $5)
		on conflict (tenant_id, user_id, module, action) do update
		set allowed = excluded.allowed
	`, o.TenantID, o.UserID, o.Module, o.Action, o.Allowed)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RemoveOverride(ctx context.Context, tenantID, userID, module, action string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from permission_overrides
		where tenant_id = $1 and user_id = $2 and module = $3 and action = $4
	`, tenantID, userID, module, action)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) positionGrants(ctx context.Context, id string) ([]authz.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select module, action, allowed
		from cargo_grants
		where cargo_id = $1
		order by module, action
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []authz.Grant
	for rows.Next() {
		var g authz.Grant
		if err := rows.Scan(&g.Module, &g.Action, &g.Allowed); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func insertGrants(ctx context.Context, tx *sql.Tx, cargoID string, grants []authz.Grant) error {
	for _, g := range grants {
		if _, err := tx.ExecContext(ctx, `
			insert into cargo_grants (cargo_id, module, action, allowed)
			values ($1, $2, $3, $4)
			on conflict (cargo_id, module, action) do update
			set allowed = excluded.allowed
		`, cargoID, g.Module, g.Action, g.Allowed); err != nil {
			return err
		}
	}
	return nil
}
