package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jurix.app/internal/ids"
	"jurix.app/internal/obs"
	"jurix.app/internal/session"
)

func (s *Store) TenantState(ctx context.Context, tenantID string) (*session.TenantState, error) {
	var (
		t      session.TenantState
		reason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, status, session_version, plan_revision, status_changed_at, status_reason
		from tenants
		where id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.Status, &t.SessionVersion, &t.PlanRevision, &t.StatusChangedAt, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		t.StatusReason = reason.String
	}
	return &t, nil
}

func (s *Store) UserState(ctx context.Context, tenantID, userID string) (*session.UserState, error) {
	var (
		u      session.UserState
		reason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, email, role, active, session_version, status_changed_at, status_reason
		from users
		where tenant_id = $1 and id = $2
	`, tenantID, userID).Scan(&u.ID, &u.TenantID, &u.Email, &u.Role, &u.Active, &u.SessionVersion, &u.StatusChangedAt, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		u.StatusReason = reason.String
	}
	return &u, nil
}

func (s *Store) FindOperatorByEmail(ctx context.Context, email string) (*session.OperatorState, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var op session.OperatorState
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, active, session_version
		from operators
		where lower(email) = $1
	`, email).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Active, &op.SessionVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CreateOperator inserts the privileged identity, ignoring the insert when
// the email is already registered. Used by the startup bootstrap.
func (s *Store) CreateOperator(ctx context.Context, op *session.OperatorState) error {
	_, err := s.db.ExecContext(ctx, `
		insert into operators (id, email, password_hash, active, session_version)
		values ($1, $2, $3, $4, $5)
		on conflict (lower(email)) do nothing
	`, op.ID, strings.ToLower(strings.TrimSpace(op.Email)), op.PasswordHash, op.Active, op.SessionVersion)
	return err
}

func (s *Store) OperatorState(ctx context.Context, operatorID string) (*session.OperatorState, error) {
	var op session.OperatorState
	err := s.db.QueryRowContext(ctx, `
		select id, active, session_version
		from operators
		where id = $1
	`, operatorID).Scan(&op.ID, &op.Active, &op.SessionVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// BumpTenant increments the counter inside the database so concurrent bumps
// never lose an increment.
func (s *Store) BumpTenant(ctx context.Context, tenantID, reason string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		update tenants
		set session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $2,
		    updated_at = now()
		where id = $1
		returning session_version
	`, tenantID, nullIfEmpty(reason)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, session.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	obs.SessionBump(session.EntityTenant)
	return version, nil
}

func (s *Store) BumpUser(ctx context.Context, tenantID, userID, reason string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		update users
		set session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $3,
		    updated_at = now()
		where tenant_id = $1 and id = $2
		returning session_version
	`, tenantID, userID, nullIfEmpty(reason)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, session.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	obs.SessionBump(session.EntityUser)
	return version, nil
}

func (s *Store) CreateTenant(ctx context.Context, name string) (*session.TenantState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", session.ErrInvalidInput)
	}
	var t session.TenantState
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (id, name, status)
		values ($1, $2, $3)
		returning id, name, status, session_version, plan_revision, status_changed_at
	`, ids.New(), name, session.TenantActive)
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &t.SessionVersion, &t.PlanRevision, &t.StatusChangedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, fmt.Errorf("%w: tenant name taken", session.ErrInvalidInput)
		}
		return nil, err
	}
	return &t, nil
}

// SetTenantStatus records the transition and bumps the session version in one
// statement. Every transition bumps, reactivation included.
func (s *Store) SetTenantStatus(ctx context.Context, tenantID string, status session.TenantStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown tenant status %q", session.ErrInvalidInput, status)
	}
	res, err := s.db.ExecContext(ctx, `
		update tenants
		set status = $2,
		    session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $3,
		    updated_at = now()
		where id = $1
	`, tenantID, status, nullIfEmpty(reason))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return session.ErrNotFound
	}
	obs.SessionBump(session.EntityTenant)
	return nil
}

func (s *Store) SetTenantPlan(ctx context.Context, tenantID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		update tenants
		set plan_revision = plan_revision + 1,
		    session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $2,
		    updated_at = now()
		where id = $1
	`, tenantID, nullIfEmpty(reason))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return session.ErrNotFound
	}
	obs.SessionBump(session.EntityTenant)
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *session.UserState) error {
	if u == nil {
		return fmt.Errorf("%w: user is required", session.ErrInvalidInput)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" || u.TenantID == "" {
		return fmt.Errorf("%w: tenant_id and email are required", session.ErrInvalidInput)
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, tenant_id, email, password_hash, role, active)
		values ($1, $2, $3, $4, $5, $6)
		returning session_version, status_changed_at
	`, id, u.TenantID, u.Email, u.PasswordHash, u.Role, u.Active)
	if err := row.Scan(&u.SessionVersion, &u.StatusChangedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: email taken", session.ErrInvalidInput)
			case pgErrForeignKeyViolation:
				return session.ErrNotFound
			}
		}
		return err
	}
	u.ID = id
	return nil
}

// SetUserRole changes the role and bumps in the same statement: the old
// token's permissions die with its version.
func (s *Store) SetUserRole(ctx context.Context, tenantID, userID, role, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set role = $3,
		    session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $4,
		    updated_at = now()
		where tenant_id = $1 and id = $2
	`, tenantID, userID, role, nullIfEmpty(reason))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return session.ErrNotFound
	}
	obs.SessionBump(session.EntityUser)
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, tenantID, userID string, active bool, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set active = $3,
		    session_version = session_version + 1,
		    status_changed_at = now(),
		    status_reason = $4,
		    updated_at = now()
		where tenant_id = $1 and id = $2
	`, tenantID, userID, active, nullIfEmpty(reason))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return session.ErrNotFound
	}
	obs.SessionBump(session.EntityUser)
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*session.UserState, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		u      session.UserState
		reason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, email, password_hash, role, active, session_version, status_changed_at, status_reason
		from users
		where email = $1
	`, email).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.SessionVersion, &u.StatusChangedAt, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		u.StatusReason = reason.String
	}
	return &u, nil
}
