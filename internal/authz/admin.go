package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"jurix.app/internal/audit"
)

// bumpReasonPermissions is stamped on session-version increments triggered by
// permission mutations.
const bumpReasonPermissions = "PERMISSIONS_CHANGED"

// Admin performs position and override mutations. Every mutation emits an
// audit entry and, where a user's effective permissions changed, bumps that
// user's session version so the change lands without waiting for token
// expiry. Audit and bump failures never roll back the mutation itself.
type Admin struct {
	store   PositionStore
	auditor *audit.Logger
	bumper  SessionBumper
}

// NewAdmin constructs the admin service. The bumper may be nil in tests that
// only exercise the mutation path.
func NewAdmin(store PositionStore, auditor *audit.Logger, bumper SessionBumper) (*Admin, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: position store is required", ErrInvalidInput)
	}
	if auditor == nil {
		return nil, fmt.Errorf("%w: audit logger is required", ErrInvalidInput)
	}
	return &Admin{store: store, auditor: auditor, bumper: bumper}, nil
}

// CreatePosition creates a tenant-scoped position. Names are unique within
// the tenant; the store surfaces ErrConflict on duplicates.
func (a *Admin) CreatePosition(ctx context.Context, tenantID, name string, level int, grants []Grant) (*Position, error) {
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return nil, fmt.Errorf("%w: tenant_id and name are required", ErrInvalidInput)
	}
	if err := validateGrants(grants); err != nil {
		return nil, err
	}
	p := &Position{
		TenantID: tenantID,
		Name:     name,
		Level:    level,
		Active:   true,
		Grants:   grants,
	}
	if err := a.store.CreatePosition(ctx, p); err != nil {
		return nil, err
	}
	after, _ := json.Marshal(p.Grants)
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      tenantID,
		Action:        "cargo.create",
		Entity:        "cargo",
		EntityID:      p.ID,
		After:         after,
		ChangedFields: grantKeys(nil, p.Grants),
	})
	return p, nil
}

// UpdatePosition edits a position's name or level.
func (a *Admin) UpdatePosition(ctx context.Context, id string, upd PositionUpdate) (*Position, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: position id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: position name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	before, err := a.store.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := a.store.UpdatePosition(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	var changed []string
	if upd.Name != nil && *upd.Name != before.Name {
		changed = append(changed, "nome")
	}
	if upd.Level != nil && *upd.Level != before.Level {
		changed = append(changed, "nivel")
	}
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(p)
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      p.TenantID,
		Action:        "cargo.update",
		Entity:        "cargo",
		EntityID:      p.ID,
		Before:        beforeJSON,
		After:         afterJSON,
		ChangedFields: changed,
	})
	return p, nil
}

// DeactivatePosition soft-disables a position. Sessions of its holders stay
// valid; revocation is a separate, explicit action.
func (a *Admin) DeactivatePosition(ctx context.Context, id string) error {
	p, err := a.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.SetPositionActive(ctx, id, false); err != nil {
		return err
	}
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      p.TenantID,
		Action:        "cargo.deactivate",
		Entity:        "cargo",
		EntityID:      id,
		ChangedFields: []string{"ativo"},
	})
	return nil
}

// SetGrants replaces a position's grant set and bumps every holder's session
// version. Grants are editable whether or not the position is active.
func (a *Admin) SetGrants(ctx context.Context, id string, grants []Grant) error {
	if err := validateGrants(grants); err != nil {
		return err
	}
	before, err := a.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.SetPositionGrants(ctx, id, grants); err != nil {
		return err
	}
	beforeJSON, _ := json.Marshal(before.Grants)
	afterJSON, _ := json.Marshal(grants)
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      before.TenantID,
		Action:        "cargo.grants.update",
		Entity:        "cargo",
		EntityID:      id,
		Before:        beforeJSON,
		After:         afterJSON,
		ChangedFields: grantKeys(before.Grants, grants),
	})
	a.bumpPositionUsers(ctx, before.TenantID, id)
	return nil
}

// AssignPosition links a user to a position and bumps the user.
func (a *Admin) AssignPosition(ctx context.Context, tenantID, userID, positionID string) error {
	tenantID, userID, positionID = strings.TrimSpace(tenantID), strings.TrimSpace(userID), strings.TrimSpace(positionID)
	if tenantID == "" || userID == "" || positionID == "" {
		return fmt.Errorf("%w: tenant_id, user_id and position_id are required", ErrInvalidInput)
	}
	if err := a.store.AssignPosition(ctx, tenantID, userID, positionID); err != nil {
		return err
	}
	a.auditor.Append(ctx, audit.Entry{
		TenantID: tenantID,
		UserID:   userID,
		Action:   "cargo.assign",
		Entity:   "cargo",
		EntityID: positionID,
	})
	a.bumpUser(ctx, tenantID, userID)
	return nil
}

// UnassignPosition removes the link and bumps the user.
func (a *Admin) UnassignPosition(ctx context.Context, tenantID, userID, positionID string) error {
	if err := a.store.UnassignPosition(ctx, userID, positionID); err != nil {
		return err
	}
	a.auditor.Append(ctx, audit.Entry{
		TenantID: tenantID,
		UserID:   userID,
		Action:   "cargo.unassign",
		Entity:   "cargo",
		EntityID: positionID,
	})
	a.bumpUser(ctx, tenantID, userID)
	return nil
}

// PutOverride upserts an individual exception and bumps the user.
func (a *Admin) PutOverride(ctx context.Context, o Override) error {
	o.TenantID = strings.TrimSpace(o.TenantID)
	o.UserID = strings.TrimSpace(o.UserID)
	if o.TenantID == "" || o.UserID == "" {
		return fmt.Errorf("%w: tenant_id and user_id are required", ErrInvalidInput)
	}
	if err := ValidateKey(o.Module, o.Action); err != nil {
		return err
	}
	if err := a.store.PutOverride(ctx, o); err != nil {
		return err
	}
	after, _ := json.Marshal(o)
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      o.TenantID,
		UserID:        o.UserID,
		Action:        "override.set",
		Entity:        "override",
		After:         after,
		ChangedFields: []string{o.Module + "." + o.Action},
	})
	a.bumpUser(ctx, o.TenantID, o.UserID)
	return nil
}

// RemoveOverride deletes an exception; absence of an override means "defer to
// position/role" again.
func (a *Admin) RemoveOverride(ctx context.Context, tenantID, userID, module, action string) error {
	if err := ValidateKey(module, action); err != nil {
		return err
	}
	if err := a.store.RemoveOverride(ctx, tenantID, userID, module, action); err != nil {
		return err
	}
	a.auditor.Append(ctx, audit.Entry{
		TenantID:      tenantID,
		UserID:        userID,
		Action:        "override.remove",
		Entity:        "override",
		ChangedFields: []string{module + "." + action},
	})
	a.bumpUser(ctx, tenantID, userID)
	return nil
}

// GetPosition fetches a single position with its grants.
func (a *Admin) GetPosition(ctx context.Context, id string) (*Position, error) {
	return a.store.GetPosition(ctx, id)
}

// ListPositions returns every position of the tenant, active or not.
func (a *Admin) ListPositions(ctx context.Context, tenantID string) ([]*Position, error) {
	return a.store.ListPositions(ctx, tenantID)
}

func (a *Admin) bumpUser(ctx context.Context, tenantID, userID string) {
	if a.bumper == nil {
		return
	}
	// Best effort: polling picks the change up within one interval anyway.
	_, _ = a.bumper.BumpUser(ctx, tenantID, userID, bumpReasonPermissions)
}

func (a *Admin) bumpPositionUsers(ctx context.Context, tenantID, positionID string) {
	if a.bumper == nil {
		return
	}
	userIDs, err := a.store.PositionUserIDs(ctx, positionID)
	if err != nil {
		return
	}
	for _, uid := range userIDs {
		_, _ = a.bumper.BumpUser(ctx, tenantID, uid, bumpReasonPermissions)
	}
}

func validateGrants(grants []Grant) error {
	for _, g := range grants {
		if err := ValidateKey(g.Module, g.Action); err != nil {
			return err
		}
	}
	return nil
}

// grantKeys lists the "module.action" keys whose effective value differs
// between two grant sets, sorted for stable audit entries.
func grantKeys(before, after []Grant) []string {
	b := make(map[string]bool, len(before))
	for _, g := range before {
		b[g.Module+"."+g.Action] = g.Allowed
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, g := range after {
		key := g.Module + "." + g.Action
		seen[key] = struct{}{}
		if prev, ok := b[key]; !ok || prev != g.Allowed {
			keys = append(keys, key)
		}
	}
	for key := range b {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
