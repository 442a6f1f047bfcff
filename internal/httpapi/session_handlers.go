package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"jurix.app/internal/session"
)

type validateRequest struct {
	TenantID      string `json:"tenantId"`
	UserID        string `json:"userId"`
	OperatorID    string `json:"operatorId"`
	TenantVersion int64  `json:"tenantSessionVersion"`
	UserVersion   int64  `json:"userSessionVersion"`
}

type sessionCheckRequest struct {
	UserID string `json:"userId"`
}

type sessionCheckResponse struct {
	Valid        bool   `json:"valid"`
	Entity       string `json:"entity,omitempty"`
	Reason       string `json:"reason,omitempty"`
	PollInterval string `json:"pollInterval"`
}

// handleInternalValidate is the edge-facing check: another instance holds a
// token, we hold the ledger. Responses are never cacheable.
func (a *API) handleInternalValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		result session.Result
		err    error
	)
	if strings.TrimSpace(req.OperatorID) != "" {
		result, err = a.cfg.Validator.ValidateOperator(r.Context(), req.OperatorID, req.UserVersion)
	} else {
		result, err = a.cfg.Validator.Validate(r.Context(), req.TenantID, req.UserID, req.TenantVersion, req.UserVersion)
	}
	if err != nil {
		if errors.Is(err, session.ErrInvalidInput) {
			// A claim below the version floor is a malformed token, not a
			// stale one.
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "validation unavailable")
		return
	}

	if result.Valid {
		writeJSON(w, http.StatusOK, result)
		return
	}
	code := http.StatusUnauthorized
	if result.Reason == session.ReasonTenantNotFound || result.Reason == session.ReasonUserNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, result)
}

// handleSessionCheck is the client poll target. The caller's own verified
// claims are the input; a body naming someone else is rejected.
func (a *API) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if r.ContentLength != 0 {
		var req sessionCheckRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.UserID != "" && req.UserID != claims.Subject {
			writeError(w, r, http.StatusForbidden, "cannot check another user's session")
			return
		}
	}

	var (
		result session.Result
		err    error
	)
	if claims.TenantID == "" {
		result, err = a.cfg.Validator.ValidateOperator(r.Context(), claims.Subject, claims.UserSessionVersion)
	} else {
		result, err = a.cfg.Validator.Validate(r.Context(), claims.TenantID, claims.Subject,
			claims.TenantSessionVersion, claims.UserSessionVersion)
	}
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionCheckResponse{
		Valid:        result.Valid,
		Entity:       result.Entity,
		Reason:       result.Reason,
		PollInterval: a.cfg.PollInterval.String(),
	})
}

// handleCacheInvalidate drops the module catalog cache on this instance.
// Peers converge through their own TTLs.
func (a *API) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.moduleCache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
