package authz

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the caller the resolver decides for. A zero identity means "no
// session": every check answers false without touching the store.
type Identity struct {
	UserID   string
	TenantID string
	Role     Role
}

// Anonymous reports whether the identity carries no authenticated user.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// Grant allows or denies one (module, action) pair inside a position.
type Grant struct {
	Module  string `json:"modulo"`
	Action  string `json:"acao"`
	Allowed bool   `json:"permitido"`
}

// Position is a tenant-defined custom role ("cargo"). Many users may share
// one position; deactivation is a soft flag and never cascades into session
// revocation on its own.
type Position struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"nome"`
	Level     int       `json:"nivel"`
	Active    bool      `json:"ativo"`
	Grants    []Grant   `json:"permissoes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PositionUpdate carries partial edits to a position's own fields. Grants are
// replaced through SetPositionGrants, not here.
type PositionUpdate struct {
	Name  *string
	Level *int
}

// Override is a per-user exception that beats both the position tier and the
// role default table, whichever way its Allowed flag points.
type Override struct {
	TenantID  string    `json:"tenantId"`
	UserID    string    `json:"usuarioId"`
	Module    string    `json:"modulo"`
	Action    string    `json:"acao"`
	Allowed   bool      `json:"permitido"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pair names one permission check in a batch.
type Pair struct {
	Module string `json:"modulo"`
	Action string `json:"acao"`
}

// Key returns the canonical "module.action" form used in batch results.
func (p Pair) Key() string {
	return p.Module + "." + p.Action
}

// ValidateKey checks module/action format at the boundary. Modules and
// actions are open-ended product identifiers, not an enum; only the shape is
// enforced.
func ValidateKey(module, action string) error {
	if !validIdent(module) {
		return fmt.Errorf("%w: invalid module %q", ErrInvalidInput, module)
	}
	if !validIdent(action) {
		return fmt.Errorf("%w: invalid action %q", ErrInvalidInput, action)
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r == '_' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
