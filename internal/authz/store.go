package authz

import "context"

// Store is what the resolver reads. Both methods fetch the complete set for a
// user so that a batch of N checks stays at a constant number of round-trips.
type Store interface {
	// OverridesForUser returns every individual override for the user.
	OverridesForUser(ctx context.Context, tenantID, userID string) ([]Override, error)

	// ActiveGrantsForUser returns the grants of every active position the
	// user holds. Grants of deactivated positions are excluded here, not in
	// the resolver.
	ActiveGrantsForUser(ctx context.Context, tenantID, userID string) ([]Grant, error)
}

// PositionStore manages positions, assignments and overrides for the admin
// surface.
type PositionStore interface {
	CreatePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id string) (*Position, error)
	ListPositions(ctx context.Context, tenantID string) ([]*Position, error)
	UpdatePosition(ctx context.Context, id string, upd PositionUpdate) (*Position, error)
	SetPositionActive(ctx context.Context, id string, active bool) error
	SetPositionGrants(ctx context.Context, id string, grants []Grant) error

	AssignPosition(ctx context.Context, tenantID, userID, positionID string) error
	UnassignPosition(ctx context.Context, userID, positionID string) error
	PositionUserIDs(ctx context.Context, positionID string) ([]string, error)

	PutOverride(ctx context.Context, o Override) error
	RemoveOverride(ctx context.Context, tenantID, userID, module, action string) error
}

// SessionBumper pairs a permission mutation with a session-version increment
// so the change lands before token expiry. Implemented by the session ledger
// store; declared here to keep the dependency pointing outward.
type SessionBumper interface {
	BumpUser(ctx context.Context, tenantID, userID, reason string) (int64, error)
}
