package authz

import (
	"fmt"
	"strings"
)

// Role is one of the built-in identities. The set is closed; tenant-defined
// granularity goes through positions (cargos) instead.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleAdvogado   Role = "ADVOGADO"
	RoleSecretaria Role = "SECRETARIA"
	RoleFinanceiro Role = "FINANCEIRO"
	RoleCliente    Role = "CLIENTE"
)

var allRoles = map[Role]struct{}{
	RoleSuperAdmin: {},
	RoleAdmin:      {},
	RoleAdvogado:   {},
	RoleSecretaria: {},
	RoleFinanceiro: {},
	RoleCliente:    {},
}

// ParseRole maps a stored role tag onto the closed enum. The core never
// depends on whatever name the persistence layer gives this column.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := allRoles[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// Omnipotent reports whether the role bypasses permission evaluation
// entirely. ADMIN and SUPER_ADMIN never reach the override/position lookups.
func (r Role) Omnipotent() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Valid reports whether r belongs to the enum.
func (r Role) Valid() bool {
	_, ok := allRoles[r]
	return ok
}

// ActionView is the read action that the auto-view fallback may grant even
// without an explicit entry in the role default table.
const ActionView = "visualizar"

// roleDefaults is the fallback grant tier consulted after overrides and
// positions. Keys are module identifiers, values the allowed actions.
var roleDefaults = map[Role]map[string][]string{
	RoleAdvogado: {
		"processos":  {"visualizar", "criar", "editar", "excluir", "exportar"},
		"clientes":   {"visualizar", "criar", "editar"},
		"peticoes":   {"visualizar", "criar", "editar"},
		"documentos": {"visualizar", "criar", "editar"},
		"agenda":     {"visualizar", "criar", "editar"},
		"relatorios": {"visualizar", "exportar"},
	},
	RoleSecretaria: {
		"processos":  {"visualizar", "criar", "editar"},
		"clientes":   {"visualizar", "criar", "editar"},
		"agenda":     {"visualizar", "criar", "editar", "excluir"},
		"documentos": {"visualizar", "criar"},
	},
	RoleFinanceiro: {
		"financeiro": {"visualizar", "criar", "editar", "excluir", "exportar"},
		"relatorios": {"visualizar", "exportar"},
		"clientes":   {"visualizar"},
	},
	RoleCliente: {
		"processos":  {"visualizar"},
		"clientes":   {"visualizar"},
		"advogados":  {"visualizar"},
		"financeiro": {"visualizar"},
		"relatorios": {"visualizar"},
	},
}

// autoViewRoles may see modules they have no explicit grant for, unless the
// module is blocklisted for that role. CLIENTE is deliberately absent: its
// visibility is exactly its default table.
var autoViewRoles = map[Role]struct{}{
	RoleAdvogado:   {},
	RoleSecretaria: {},
	RoleFinanceiro: {},
}

// defaultAutoViewBlocklist opts modules out of the auto-view fallback per
// role. Ships empty; entries are honoured as soon as they exist.
var defaultAutoViewBlocklist = map[Role][]string{}

// RoleDefaultAllows consults the role default table.
func RoleDefaultAllows(role Role, module, action string) bool {
	actions, ok := roleDefaults[role][module]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// DefaultModules returns the modules a role can reach through its default
// table, in no particular order.
func DefaultModules(role Role) []string {
	defaults := roleDefaults[role]
	modules := make([]string, 0, len(defaults))
	for m := range defaults {
		modules = append(modules, m)
	}
	return modules
}
