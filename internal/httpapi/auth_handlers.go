package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"jurix.app/internal/audit"
	"jurix.app/internal/authz"
	"jurix.app/internal/session"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleAuthToken exchanges credentials for a session token carrying the
// version snapshots of the moment of issue.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.cfg.Directory == nil || a.cfg.Ledger == nil {
		writeError(w, r, http.StatusServiceUnavailable, "credential store unavailable")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and senha are required")
		return
	}

	user, err := a.cfg.Directory.FindUserByEmail(r.Context(), email)
	if errors.Is(err, session.ErrNotFound) {
		a.issueOperatorToken(w, r, email, req.Password)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication unavailable")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Active {
		writeError(w, r, http.StatusForbidden, "user disabled")
		return
	}

	tenant, err := a.cfg.Ledger.TenantState(r.Context(), user.TenantID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication unavailable")
		return
	}
	if tenant.Status != session.TenantActive {
		writeError(w, r, http.StatusForbidden, "tenant "+strings.ToLower(string(tenant.Status)))
		return
	}

	token, expiresAt, err := a.cfg.Tokens.Issue(user, tenant)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.cfg.Auditor.Append(r.Context(), audit.Entry{
		TenantID: user.TenantID,
		UserID:   user.ID,
		Action:   "auth.token.issued",
		Entity:   "user",
		EntityID: user.ID,
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// issueOperatorToken handles the credential path for the tenant-less
// privileged identity. Operators live outside any tenant, so no tenant state
// is consulted and no tenant-scoped audit entry is written.
func (a *API) issueOperatorToken(w http.ResponseWriter, r *http.Request, email, password string) {
	op, err := a.cfg.Directory.FindOperatorByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication unavailable")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !op.Active {
		writeError(w, r, http.StatusForbidden, "operator disabled")
		return
	}

	token, expiresAt, err := a.cfg.Tokens.IssueOperator(op, string(authz.RoleSuperAdmin))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
