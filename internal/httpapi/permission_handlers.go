package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"jurix.app/internal/authz"
	"jurix.app/internal/session"
)

type permissionCheckRequest struct {
	Module string `json:"modulo"`
	Action string `json:"acao"`
	UserID string `json:"usuarioId"`
}

type permissionCheckResponse struct {
	HasPermission bool `json:"hasPermission"`
}

type permissionResolveRequest struct {
	Pairs []authz.Pair `json:"pares"`
}

type permissionResolveResponse struct {
	Results map[string]bool `json:"resultados"`
}

// handlePermissionCheck answers a single can-do question for the caller, or
// for another user of the same tenant when the caller is an admin.
func (a *API) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, claims, ok := identityFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req permissionCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.UserID != "" && req.UserID != claims.Subject {
		// Probing someone else's permissions is an admin capability.
		if !authz.Role(claims.Role).Omnipotent() {
			writeError(w, r, http.StatusForbidden, "cannot check another user's permissions")
			return
		}
		target, err := a.cfg.Ledger.UserState(r.Context(), claims.TenantID, req.UserID)
		if err != nil {
			handleSessionError(w, r, err)
			return
		}
		ident = authz.Identity{UserID: target.ID, TenantID: target.TenantID, Role: authz.Role(target.Role)}
	}

	allowed, err := a.cfg.Resolver.Resolve(r.Context(), ident, req.Module, req.Action)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionCheckResponse{HasPermission: allowed})
}

// handlePermissionResolve evaluates a batch of pairs for the caller in one
// round-trip, the shape frontends use to light up a whole screen.
func (a *API) handlePermissionResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, _, ok := identityFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req permissionResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, r, http.StatusBadRequest, "pares is required")
		return
	}
	if len(req.Pairs) > 200 {
		writeError(w, r, http.StatusBadRequest, "too many pairs")
		return
	}

	results, err := a.cfg.Resolver.ResolveMany(r.Context(), ident, req.Pairs)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionResolveResponse{Results: results})
}

// handleModules lists the modules the caller's role can reach, cached per
// role since the default tables only change on deploy.
func (a *API) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	role := authz.Role(claims.Role)

	key := "modules:" + string(role)
	modules, ok := a.moduleCache.Get(key)
	if !ok {
		modules = authz.DefaultModules(role)
		sort.Strings(modules)
		a.moduleCache.Set(key, modules)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"role":    strings.ToUpper(string(role)),
		"modulos": modules,
	})
}
