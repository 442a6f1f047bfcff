package authz

import (
	"context"
	"encoding/json"
	"strings"

	"jurix.app/internal/audit"
)

// defaultPositions is the starter set seeded into every new tenant so that
// baseline role granularity exists without manual setup.
var defaultPositions = []Position{
	{
		Name:  "Secretária",
		Level: 2,
		Grants: []Grant{
			{Module: "processos", Action: "visualizar", Allowed: true},
			{Module: "clientes", Action: "visualizar", Allowed: true},
			{Module: "clientes", Action: "criar", Allowed: true},
			{Module: "agenda", Action: "criar", Allowed: true},
			{Module: "agenda", Action: "editar", Allowed: true},
		},
	},
	{
		Name:  "Auxiliar Jurídico",
		Level: 2,
		Grants: []Grant{
			{Module: "processos", Action: "visualizar", Allowed: true},
			{Module: "processos", Action: "editar", Allowed: true},
			{Module: "peticoes", Action: "criar", Allowed: true},
			{Module: "documentos", Action: "criar", Allowed: true},
		},
	},
	{
		Name:  "Financeiro",
		Level: 3,
		Grants: []Grant{
			{Module: "financeiro", Action: "visualizar", Allowed: true},
			{Module: "financeiro", Action: "criar", Allowed: true},
			{Module: "financeiro", Action: "editar", Allowed: true},
			{Module: "relatorios", Action: "exportar", Allowed: true},
		},
	},
	{
		Name:  "Suporte TI",
		Level: 1,
		Grants: []Grant{
			{Module: "configuracoes", Action: "visualizar", Allowed: true},
			{Module: "configuracoes", Action: "editar", Allowed: true},
		},
	},
	{
		Name:  "Coordenador de Operações",
		Level: 4,
		Grants: []Grant{
			{Module: "processos", Action: "visualizar", Allowed: true},
			{Module: "equipe", Action: "visualizar", Allowed: true},
			{Module: "agenda", Action: "visualizar", Allowed: true},
			{Module: "relatorios", Action: "visualizar", Allowed: true},
			{Module: "relatorios", Action: "exportar", Allowed: true},
		},
	},
}

// SeedDefaultPositions creates whichever of the starter positions a tenant is
// missing. Re-running it fills gaps without duplicating; existing positions
// (matched by name, case-insensitively) are left untouched.
func (a *Admin) SeedDefaultPositions(ctx context.Context, tenantID string) ([]*Position, error) {
	existing, err := a.store.ListPositions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = struct{}{}
	}

	var created []*Position
	for _, tpl := range defaultPositions {
		if _, ok := have[strings.ToLower(tpl.Name)]; ok {
			continue
		}
		p := &Position{
			TenantID: tenantID,
			Name:     tpl.Name,
			Level:    tpl.Level,
			Active:   true,
			Grants:   append([]Grant(nil), tpl.Grants...),
		}
		if err := a.store.CreatePosition(ctx, p); err != nil {
			return created, err
		}
		created = append(created, p)
	}
	if len(created) > 0 {
		names := make([]string, len(created))
		for i, p := range created {
			names[i] = p.Name
		}
		after, _ := json.Marshal(names)
		a.auditor.Append(ctx, audit.Entry{
			TenantID: tenantID,
			Action:   "cargo.seed_defaults",
			Entity:   "tenant",
			EntityID: tenantID,
			After:    after,
		})
	}
	return created, nil
}
