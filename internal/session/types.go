package session

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("session: not found")
	ErrInvalidInput = errors.New("session: invalid input")
	ErrUnauthorized = errors.New("session: unauthorized")
	ErrInvalidToken = errors.New("session: invalid token")
)

// TenantStatus is the lifecycle state of a tenant account. Anything other
// than ACTIVE revokes every session of the tenant.
type TenantStatus string

const (
	TenantActive       TenantStatus = "ACTIVE"
	TenantSuspended    TenantStatus = "SUSPENDED"
	TenantCancelled    TenantStatus = "CANCELLED"
	TenantTrialExpired TenantStatus = "TRIAL_EXPIRED"
)

// Valid reports whether s is a known status value.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantSuspended, TenantCancelled, TenantTrialExpired:
		return true
	}
	return false
}

// Revocation reasons. Tenant status values double as reasons when the tenant
// is not ACTIVE.
const (
	ReasonTenantNotFound  = "TENANT_NOT_FOUND"
	ReasonUserNotFound    = "USER_NOT_FOUND"
	ReasonUserDisabled    = "USER_DISABLED"
	ReasonVersionMismatch = "SESSION_VERSION_MISMATCH"
)

// Entities a revocation verdict points at.
const (
	EntityTenant   = "TENANT"
	EntityUser     = "USER"
	EntityOperator = "OPERATOR"
)

// versionBase is the first session version a record carries. Claims below it
// are malformed, not merely stale.
const versionBase = 1

// TenantState is the ledger view of a tenant.
type TenantState struct {
	ID              string       `json:"id"`
	Name            string       `json:"nome"`
	Status          TenantStatus `json:"status"`
	SessionVersion  int64        `json:"sessionVersion"`
	PlanRevision    int64        `json:"planRevision"`
	StatusChangedAt time.Time    `json:"statusChangedAt"`
	StatusReason    string       `json:"statusReason,omitempty"`
}

// UserState is the ledger view of a user. Email and PasswordHash are loaded
// only on the credential path.
type UserState struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Email           string    `json:"email,omitempty"`
	PasswordHash    string    `json:"-"`
	Role            string    `json:"role"`
	Active          bool      `json:"ativo"`
	SessionVersion  int64     `json:"sessionVersion"`
	StatusChangedAt time.Time `json:"statusChangedAt"`
	StatusReason    string    `json:"statusReason,omitempty"`
}

// OperatorState is the record backing a tenant-less privileged identity.
// Email and PasswordHash are loaded only on the credential path.
type OperatorState struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	PasswordHash   string `json:"-"`
	Active         bool   `json:"ativo"`
	SessionVersion int64  `json:"sessionVersion"`
}

// Result is the validator's verdict. Reason is set only when Valid is false.
type Result struct {
	Valid  bool   `json:"valid"`
	Entity string `json:"entity,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Revocation is the event fanned out to connected clients when a session
// becomes invalid ahead of its poll interval.
type Revocation struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"usuarioId,omitempty"`
	Reason   string `json:"reason"`
}
