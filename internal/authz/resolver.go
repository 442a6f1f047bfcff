package authz

import (
	"context"
	"fmt"

	"jurix.app/internal/obs"
)

// Resolver answers "can this user do this?" by merging three tiers in strict
// precedence: individual override, then active position grants, then the role
// default table (with the auto-view fallback). ADMIN and SUPER_ADMIN
// short-circuit before any store access.
type Resolver struct {
	store     Store
	blocklist map[Role]map[string]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAutoViewBlocklist replaces the per-role module opt-out list consulted
// by the auto-view fallback.
func WithAutoViewBlocklist(list map[Role][]string) ResolverOption {
	return func(r *Resolver) {
		r.blocklist = indexBlocklist(list)
	}
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	r := &Resolver{
		store:     store,
		blocklist: indexBlocklist(defaultAutoViewBlocklist),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func indexBlocklist(list map[Role][]string) map[Role]map[string]struct{} {
	out := make(map[Role]map[string]struct{}, len(list))
	for role, modules := range list {
		set := make(map[string]struct{}, len(modules))
		for _, m := range modules {
			set[m] = struct{}{}
		}
		out[role] = set
	}
	return out
}

// Resolve decides a single (module, action) pair. A zero identity yields
// false without error; a store failure propagates and the caller is expected
// to fail closed.
func (r *Resolver) Resolve(ctx context.Context, ident Identity, module, action string) (bool, error) {
	if err := ValidateKey(module, action); err != nil {
		return false, err
	}
	if ident.Anonymous() {
		obs.PermissionCheck(false, "no_session")
		return false, nil
	}
	if ident.Role.Omnipotent() {
		obs.PermissionCheck(true, "role_admin")
		return true, nil
	}

	overrides, err := r.store.OverridesForUser(ctx, ident.TenantID, ident.UserID)
	if err != nil {
		return false, fmt.Errorf("load overrides: %w", err)
	}
	grants, err := r.store.ActiveGrantsForUser(ctx, ident.TenantID, ident.UserID)
	if err != nil {
		return false, fmt.Errorf("load position grants: %w", err)
	}

	allowed, source := r.evaluate(ident.Role, overrides, grants, module, action)
	obs.PermissionCheck(allowed, source)
	return allowed, nil
}

// ResolveMany evaluates a batch of pairs with the same two store fetches a
// single Resolve performs; results are keyed "module.action" and are
// identical to calling Resolve per pair.
func (r *Resolver) ResolveMany(ctx context.Context, ident Identity, pairs []Pair) (map[string]bool, error) {
	results := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if err := ValidateKey(p.Module, p.Action); err != nil {
			return nil, err
		}
	}
	if ident.Anonymous() {
		for _, p := range pairs {
			results[p.Key()] = false
			obs.PermissionCheck(false, "no_session")
		}
		return results, nil
	}
	if ident.Role.Omnipotent() {
		for _, p := range pairs {
			results[p.Key()] = true
			obs.PermissionCheck(true, "role_admin")
		}
		return results, nil
	}

	overrides, err := r.store.OverridesForUser(ctx, ident.TenantID, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	grants, err := r.store.ActiveGrantsForUser(ctx, ident.TenantID, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("load position grants: %w", err)
	}

	for _, p := range pairs {
		allowed, source := r.evaluate(ident.Role, overrides, grants, p.Module, p.Action)
		results[p.Key()] = allowed
		obs.PermissionCheck(allowed, source)
	}
	return results, nil
}

// evaluate applies the precedence chain in memory. The source tag names the
// tier that decided, for metrics.
func (r *Resolver) evaluate(role Role, overrides []Override, grants []Grant, module, action string) (bool, string) {
	for _, o := range overrides {
		if o.Module == module && o.Action == action {
			return o.Allowed, "override"
		}
	}
	for _, g := range grants {
		if g.Module == module && g.Action == action && g.Allowed {
			return true, "position"
		}
	}
	if RoleDefaultAllows(role, module, action) {
		return true, "role_default"
	}
	if action == ActionView {
		if _, eligible := autoViewRoles[role]; eligible {
			if _, blocked := r.blocklist[role][module]; !blocked {
				return true, "auto_view"
			}
		}
	}
	return false, "denied"
}
