package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"jurix.app/internal/audit"
	"jurix.app/internal/authz"
	"jurix.app/internal/session"
)

type createTenantRequest struct {
	Name string `json:"nome"`
}

type tenantStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"motivo"`
}

type tenantPlanRequest struct {
	Reason string `json:"motivo"`
}

type createCargoRequest struct {
	Name   string        `json:"nome"`
	Level  int           `json:"nivel"`
	Grants []authz.Grant `json:"permissoes"`
}

type updateCargoRequest struct {
	Name  *string `json:"nome"`
	Level *int    `json:"nivel"`
}

type cargoGrantsRequest struct {
	Grants []authz.Grant `json:"permissoes"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
	Role     string `json:"role"`
}

type assignCargoRequest struct {
	CargoID string `json:"cargoId"`
}

type overrideRequest struct {
	Module  string `json:"modulo"`
	Action  string `json:"acao"`
	Allowed bool   `json:"permitido"`
}

type userRoleRequest struct {
	Role   string `json:"role"`
	Reason string `json:"motivo"`
}

type userActiveRequest struct {
	Active bool   `json:"ativo"`
	Reason string `json:"motivo"`
}

func (a *API) publishRevocation(ctx context.Context, evt session.Revocation) {
	if a.cfg.Publisher == nil {
		return
	}
	a.cfg.Publisher.Publish(ctx, evt)
}

// --- tenants (operator surface) ---

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := a.requireOperator(w, r)
	if !ok {
		return
	}
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := a.cfg.Directory.CreateTenant(r.Context(), req.Name)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	// New tenants start with the standard position set in place.
	if _, err := a.cfg.Admin.SeedDefaultPositions(r.Context(), tenant.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "tenant created but seeding failed")
		return
	}
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID: tenant.ID,
		UserID:   claims.Subject,
		Action:   "tenant.create",
		Entity:   "tenant",
		EntityID: tenant.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tenant.ID))
	writeJSON(w, http.StatusCreated, tenant)
}

func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	tenantID := parts[0]
	switch parts[1] {
	case "status":
		a.handleTenantStatus(w, r, tenantID)
	case "plan":
		a.handleTenantPlan(w, r, tenantID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTenantStatus(w http.ResponseWriter, r *http.Request, tenantID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	claims, ok := a.requireOperator(w, r)
	if !ok {
		return
	}
	var req tenantStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := session.TenantStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	before, err := a.cfg.Ledger.TenantState(r.Context(), tenantID)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if err := a.cfg.Directory.SetTenantStatus(r.Context(), tenantID, status, req.Reason); err != nil {
		handleSessionError(w, r, err)
		return
	}
	beforeJSON, _ := json.Marshal(map[string]any{"status": before.Status})
	afterJSON, _ := json.Marshal(map[string]any{"status": status, "motivo": req.Reason})
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID:      tenantID,
		UserID:        claims.Subject,
		Action:        "tenant.status",
		Entity:        "tenant",
		EntityID:      tenantID,
		Before:        beforeJSON,
		After:         afterJSON,
		ChangedFields: []string{"status"},
	})
	a.publishRevocation(r.Context(), session.Revocation{TenantID: tenantID, Reason: string(status)})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTenantPlan(w http.ResponseWriter, r *http.Request, tenantID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	claims, ok := a.requireOperator(w, r)
	if !ok {
		return
	}
	var req tenantPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.cfg.Directory.SetTenantPlan(r.Context(), tenantID, req.Reason); err != nil {
		handleSessionError(w, r, err)
		return
	}
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID:      tenantID,
		UserID:        claims.Subject,
		Action:        "tenant.plan",
		Entity:        "tenant",
		EntityID:      tenantID,
		ChangedFields: []string{"planRevision"},
	})
	a.publishRevocation(r.Context(), session.Revocation{TenantID: tenantID, Reason: "PLAN_CHANGED"})
	w.WriteHeader(http.StatusNoContent)
}

// --- cargos (tenant admin surface) ---

func (a *API) handleCargos(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if claims.TenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant context required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		positions, err := a.cfg.Admin.ListPositions(r.Context(), claims.TenantID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cargos": positions})
	case http.MethodPost:
		var req createCargoRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.cfg.Admin.CreatePosition(r.Context(), claims.TenantID, req.Name, req.Level, req.Grants)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/cargos/%s", p.ID))
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCargoResource(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cargos/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	cargoID := parts[0]

	if len(parts) == 2 {
		if parts[1] != "grants" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleCargoGrants(w, r, claims, cargoID)
		return
	}

	// Resolve first so every method gets the same tenant check. A cargo in
	// another tenant must be indistinguishable from a missing one.
	p, err := a.cfg.Admin.GetPosition(r.Context(), cargoID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if !a.sameTenant(w, r, claims, p.TenantID) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var req updateCargoRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.cfg.Admin.UpdatePosition(r.Context(), cargoID, authz.PositionUpdate{Name: req.Name, Level: req.Level})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := a.cfg.Admin.DeactivatePosition(r.Context(), cargoID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleCargoGrants(w http.ResponseWriter, r *http.Request, claims *session.Claims, cargoID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req cargoGrantsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.cfg.Admin.GetPosition(r.Context(), cargoID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if !a.sameTenant(w, r, claims, p.TenantID) {
		return
	}
	if err := a.cfg.Admin.SetGrants(r.Context(), cargoID, req.Grants); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	// Holders were bumped; tell connected clients instead of waiting a poll.
	a.publishRevocation(r.Context(), session.Revocation{TenantID: p.TenantID, Reason: "PERMISSIONS_CHANGED"})
	w.WriteHeader(http.StatusNoContent)
}

// --- users (tenant admin surface) ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if claims.TenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant context required")
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if role == authz.RoleSuperAdmin {
		writeError(w, r, http.StatusBadRequest, "cannot create operator accounts here")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "senha must be at least 8 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password hashing failed")
		return
	}

	user := &session.UserState{
		TenantID:     claims.TenantID,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         string(role),
		Active:       true,
	}
	if err := a.cfg.Directory.CreateUser(r.Context(), user); err != nil {
		handleSessionError(w, r, err)
		return
	}
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Action:   "user.create",
		Entity:   "user",
		EntityID: user.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if claims.TenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant context required")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch parts[1] {
	case "cargo":
		a.handleUserCargo(w, r, claims, userID, parts[2:])
	case "overrides":
		a.handleUserOverrides(w, r, claims, userID, parts[2:])
	case "role":
		a.handleUserRole(w, r, claims, userID)
	case "active":
		a.handleUserActive(w, r, claims, userID)
	case "force-logout":
		a.handleForceLogout(w, r, claims, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserCargo(w http.ResponseWriter, r *http.Request, claims *session.Claims, userID string, rest []string) {
	switch r.Method {
	case http.MethodPost:
		if len(rest) != 0 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		var req assignCargoRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.cfg.Admin.AssignPosition(r.Context(), claims.TenantID, userID, req.CargoID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: "PERMISSIONS_CHANGED"})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if len(rest) != 1 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if err := a.cfg.Admin.UnassignPosition(r.Context(), claims.TenantID, userID, rest[0]); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: "PERMISSIONS_CHANGED"})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleUserOverrides(w http.ResponseWriter, r *http.Request, claims *session.Claims, userID string, rest []string) {
	switch r.Method {
	case http.MethodPut:
		if len(rest) != 0 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		var req overrideRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		err := a.cfg.Admin.PutOverride(r.Context(), authz.Override{
			TenantID: claims.TenantID,
			UserID:   userID,
			Module:   req.Module,
			Action:   req.Action,
			Allowed:  req.Allowed,
		})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: "PERMISSIONS_CHANGED"})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if len(rest) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if err := a.cfg.Admin.RemoveOverride(r.Context(), claims.TenantID, userID, rest[0], rest[1]); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: "PERMISSIONS_CHANGED"})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, claims *session.Claims, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req userRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if role == authz.RoleSuperAdmin {
		writeError(w, r, http.StatusBadRequest, "cannot promote to operator")
		return
	}
	before, err := a.cfg.Ledger.UserState(r.Context(), claims.TenantID, userID)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if err := a.cfg.Directory.SetUserRole(r.Context(), claims.TenantID, userID, string(role), req.Reason); err != nil {
		handleSessionError(w, r, err)
		return
	}
	beforeJSON, _ := json.Marshal(map[string]any{"role": before.Role})
	afterJSON, _ := json.Marshal(map[string]any{"role": role})
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID:      claims.TenantID,
		UserID:        claims.Subject,
		Action:        "user.role",
		Entity:        "user",
		EntityID:      userID,
		Before:        beforeJSON,
		After:         afterJSON,
		ChangedFields: []string{"role"},
	})
	a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: "ROLE_CHANGED"})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserActive(w http.ResponseWriter, r *http.Request, claims *session.Claims, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req userActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.cfg.Directory.SetUserActive(r.Context(), claims.TenantID, userID, req.Active, req.Reason); err != nil {
		handleSessionError(w, r, err)
		return
	}
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID:      claims.TenantID,
		UserID:        claims.Subject,
		Action:        "user.active",
		Entity:        "user",
		EntityID:      userID,
		ChangedFields: []string{"ativo"},
	})
	if !req.Active {
		a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: session.ReasonUserDisabled})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleForceLogout(w http.ResponseWriter, r *http.Request, claims *session.Claims, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	version, err := a.cfg.Ledger.BumpUser(r.Context(), claims.TenantID, userID, "FORCE_LOGOUT")
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Action:   "user.force_logout",
		Entity:   "user",
		EntityID: userID,
	})
	a.publishRevocation(r.Context(), session.Revocation{TenantID: claims.TenantID, UserID: userID, Reason: session.ReasonVersionMismatch})
	writeJSON(w, http.StatusOK, map[string]any{"sessionVersion": version})
}

func (a *API) sameTenant(w http.ResponseWriter, r *http.Request, claims *session.Claims, tenantID string) bool {
	if claims.TenantID != tenantID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return false
	}
	return true
}
