package session

import "context"

// Ledger reads and bumps the monotonic session-version counters. Increments
// are atomic in the store (single UPDATE, not read-modify-write); reads and
// increments are deliberately not transactional across writer and poller;
// staleness is bounded by the client poll interval.
type Ledger interface {
	TenantState(ctx context.Context, tenantID string) (*TenantState, error)
	UserState(ctx context.Context, tenantID, userID string) (*UserState, error)
	OperatorState(ctx context.Context, operatorID string) (*OperatorState, error)

	// BumpTenant increments the tenant counter, stamps statusChangedAt and
	// records the reason. Returns the new version.
	BumpTenant(ctx context.Context, tenantID, reason string) (int64, error)

	// BumpUser does the same for a user.
	BumpUser(ctx context.Context, tenantID, userID, reason string) (int64, error)
}

// Directory covers the administrative mutations that must pair a record
// change with its session-version bump. Implementations perform both sides in
// one statement or transaction.
type Directory interface {
	CreateTenant(ctx context.Context, name string) (*TenantState, error)

	// SetTenantStatus transitions the tenant and bumps its version, whatever
	// the direction of the transition.
	SetTenantStatus(ctx context.Context, tenantID string, status TenantStatus, reason string) error

	// SetTenantPlan records a plan change: planRevision and sessionVersion
	// both advance.
	SetTenantPlan(ctx context.Context, tenantID, reason string) error

	CreateUser(ctx context.Context, u *UserState) error
	SetUserRole(ctx context.Context, tenantID, userID, role, reason string) error
	SetUserActive(ctx context.Context, tenantID, userID string, active bool, reason string) error
	FindUserByEmail(ctx context.Context, email string) (*UserState, error)
	FindOperatorByEmail(ctx context.Context, email string) (*OperatorState, error)
}
