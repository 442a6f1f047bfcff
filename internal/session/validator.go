package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jurix.app/internal/obs"
)

// Validator answers "is this token still trustworthy?" by comparing claimed
// version snapshots against the live ledger. It never consults the token
// signature, that happened upstream; a signed token issued before a
// revoking change must still be rejected here.
type Validator struct {
	ledger Ledger
}

// NewValidator constructs a Validator.
func NewValidator(ledger Ledger) (*Validator, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrInvalidInput)
	}
	return &Validator{ledger: ledger}, nil
}

// Validate checks the tenant first, then (when userID is non-empty) the
// user, short-circuiting on the first failing check:
//
//	tenant exists → status ACTIVE → tenant version matches →
//	user exists → user active → user version matches.
//
// A ledger failure propagates as an error and must not be confused with a
// revocation verdict.
func (v *Validator) Validate(ctx context.Context, tenantID, userID string, claimedTenantV, claimedUserV int64) (Result, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Result{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	if claimedTenantV < versionBase || (strings.TrimSpace(userID) != "" && claimedUserV < versionBase) {
		return Result{}, fmt.Errorf("%w: session version claims below base", ErrInvalidInput)
	}

	tenant, err := v.ledger.TenantState(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return v.revoked(EntityTenant, ReasonTenantNotFound), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.Status != TenantActive {
		return v.revoked(EntityTenant, string(tenant.Status)), nil
	}
	if tenant.SessionVersion != claimedTenantV {
		return v.revoked(EntityTenant, ReasonVersionMismatch), nil
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		obs.SessionValidation(true, "")
		return Result{Valid: true}, nil
	}

	user, err := v.ledger.UserState(ctx, tenantID, userID)
	if errors.Is(err, ErrNotFound) {
		return v.revoked(EntityUser, ReasonUserNotFound), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return v.revoked(EntityUser, ReasonUserDisabled), nil
	}
	if user.SessionVersion != claimedUserV {
		return v.revoked(EntityUser, ReasonVersionMismatch), nil
	}

	obs.SessionValidation(true, "")
	return Result{Valid: true}, nil
}

// ValidateOperator is the simplified path for the tenant-less privileged
// identity: its own existence, active flag and version, nothing else.
func (v *Validator) ValidateOperator(ctx context.Context, operatorID string, claimedV int64) (Result, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return Result{}, fmt.Errorf("%w: operator id is required", ErrInvalidInput)
	}
	if claimedV < versionBase {
		return Result{}, fmt.Errorf("%w: session version claim below base", ErrInvalidInput)
	}
	op, err := v.ledger.OperatorState(ctx, operatorID)
	if errors.Is(err, ErrNotFound) {
		return v.revoked(EntityOperator, ReasonUserNotFound), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load operator: %w", err)
	}
	if !op.Active {
		return v.revoked(EntityOperator, ReasonUserDisabled), nil
	}
	if op.SessionVersion != claimedV {
		return v.revoked(EntityOperator, ReasonVersionMismatch), nil
	}
	obs.SessionValidation(true, "")
	return Result{Valid: true}, nil
}

func (v *Validator) revoked(entity, reason string) Result {
	obs.SessionValidation(false, reason)
	return Result{Valid: false, Entity: entity, Reason: reason}
}
