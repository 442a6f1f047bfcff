package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "jurix"

// Claims are the JWT claims carried by a session token. Versions are
// snapshots taken at issuance; the validator compares them against the live
// ledger and they are never trusted as current truth.
type Claims struct {
	TenantID             string `json:"ten,omitempty"`
	Role                 string `json:"role"`
	TenantSessionVersion int64  `json:"tsv,omitempty"`
	UserSessionVersion   int64  `json:"usv"`
	jwt.RegisteredClaims
}

// TokenSource signs and verifies session tokens with HS256.
type TokenSource struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenSource.
type TokenOption func(*TokenSource)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(ts *TokenSource) {
		if trimmed := strings.TrimSpace(issuer); trimmed != "" {
			ts.issuer = trimmed
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) TokenOption {
	return func(ts *TokenSource) {
		if fn != nil {
			ts.now = fn
		}
	}
}

// NewTokenSource constructs a TokenSource.
func NewTokenSource(secret string, ttl time.Duration, opts ...TokenOption) (*TokenSource, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: token secret is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", ErrInvalidInput)
	}
	ts := &TokenSource{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// Issue signs a token for a tenant user. The tenant state supplies the
// tenant-side version snapshot.
func (ts *TokenSource) Issue(user *UserState, tenant *TenantState) (string, time.Time, error) {
	if user == nil || tenant == nil {
		return "", time.Time{}, fmt.Errorf("%w: user and tenant are required", ErrInvalidInput)
	}
	return ts.sign(Claims{
		TenantID:             tenant.ID,
		Role:                 user.Role,
		TenantSessionVersion: tenant.SessionVersion,
		UserSessionVersion:   user.SessionVersion,
	}, user.ID)
}

// IssueOperator signs a token for the tenant-less privileged identity.
func (ts *TokenSource) IssueOperator(op *OperatorState, role string) (string, time.Time, error) {
	if op == nil {
		return "", time.Time{}, fmt.Errorf("%w: operator is required", ErrInvalidInput)
	}
	return ts.sign(Claims{
		Role:               role,
		UserSessionVersion: op.SessionVersion,
	}, op.ID)
}

func (ts *TokenSource) sign(claims Claims, subject string) (string, time.Time, error) {
	now := ts.now().UTC()
	exp := now.Add(ts.ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    ts.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature and required claims.
func (ts *TokenSource) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return ts.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := ts.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (ts *TokenSource) validateClaims(claims *Claims) error {
	if claims.Issuer != ts.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := ts.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	if claims.UserSessionVersion < versionBase {
		return errors.New("user session version below base")
	}
	if claims.TenantID != "" && claims.TenantSessionVersion < versionBase {
		return errors.New("tenant session version below base")
	}
	return nil
}
