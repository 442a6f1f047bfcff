package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"jurix.app/internal/authz"
	"jurix.app/internal/session"
)

const (
	authHeader           = "Authorization"
	bearer               = "Bearer "
	internalSecretHeader = "X-Internal-Secret"
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

const internalPrefix = "/internal/"

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.cfg.Tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Edge instances authenticate with a shared secret, not a user token.
		if strings.HasPrefix(r.URL.Path, internalPrefix) {
			if !a.internalCallerAllowed(r) {
				writeError(w, r, http.StatusUnauthorized, "invalid internal secret")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.cfg.Tokens.Parse(token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := session.ContextWithClaims(r.Context(), claims)
		ctx = session.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) internalCallerAllowed(r *http.Request) bool {
	secret := strings.TrimSpace(a.cfg.InternalSecret)
	if secret == "" {
		return false
	}
	given := strings.TrimSpace(r.Header.Get(internalSecretHeader))
	return subtle.ConstantTimeCompare([]byte(secret), []byte(given)) == 1
}

// identityFromRequest maps verified claims onto the resolver's identity.
func identityFromRequest(r *http.Request) (authz.Identity, *session.Claims, bool) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		return authz.Identity{}, nil, false
	}
	return authz.Identity{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     authz.Role(claims.Role),
	}, claims, true
}

// requireAdmin allows ADMIN of the same tenant and the tenant-less operator.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (*session.Claims, bool) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	role := authz.Role(claims.Role)
	if !role.Omnipotent() {
		writeError(w, r, http.StatusForbidden, "admin privileges required")
		return nil, false
	}
	return claims, true
}

// requireOperator allows only the tenant-less privileged identity.
func (a *API) requireOperator(w http.ResponseWriter, r *http.Request) (*session.Claims, bool) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if authz.Role(claims.Role) != authz.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "operator privileges required")
		return nil, false
	}
	return claims, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
