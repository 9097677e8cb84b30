package tenant

import (
	"errors"
	"fmt"
)

// RejectionReason names why a tenant could not be resolved for a request.
type RejectionReason string

const (
	ReasonTenantClaimMissing RejectionReason = "TenantClaimMissing"
	ReasonTenantMismatch     RejectionReason = "TenantMismatch"
	ReasonTenantInactive     RejectionReason = "TenantInactive"
	ReasonMembershipNotFound RejectionReason = "MembershipNotFound"
)

// Sentinels matched with errors.Is against a *RejectionError.
var (
	ErrTenantClaimMissing = errors.New("tenant claim missing")
	ErrTenantMismatch     = errors.New("tenant header does not match tenant claim")
	ErrTenantInactive     = errors.New("tenant is not active")
	ErrMembershipNotFound = errors.New("principal has no membership in tenant")
)

// Audited reports whether the reason is treated as a cross-tenant attempt.
// Missing claims and inactive tenants are business state, not breach attempts.
func (r RejectionReason) Audited() bool {
	return r == ReasonTenantMismatch || r == ReasonMembershipNotFound
}

func (r RejectionReason) sentinel() error {
	switch r {
	case ReasonTenantClaimMissing:
		return ErrTenantClaimMissing
	case ReasonTenantMismatch:
		return ErrTenantMismatch
	case ReasonTenantInactive:
		return ErrTenantInactive
	case ReasonMembershipNotFound:
		return ErrMembershipNotFound
	default:
		return nil
	}
}

// RejectionError is returned by the Resolver when a request must not proceed.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func reject(reason RejectionReason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason.sentinel()
}

// AsRejection extracts the RejectionError from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
