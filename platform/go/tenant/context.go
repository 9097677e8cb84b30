package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnresolved is returned whenever an operation needs a tenant but the
// caller carries no resolved Context. Dependent operations fail closed.
var ErrUnresolved = errors.New("tenant context is not resolved")

// Context is the resolved tenant identity for exactly one request or operation.
// The zero value is Unresolved. Fields are unexported so a Context cannot be
// mutated after construction; copies are values, never shared pointers.
type Context struct {
	tenantID    uuid.UUID
	tenantName  string
	principalID string
	role        Role
	state       State
}

// NewContext builds a Resolved Context. The Resolver is the only request-path
// caller; administrative tooling uses it to act on behalf of a known tenant.
func NewContext(tenantID uuid.UUID, tenantName, principalID string, role Role) (Context, error) {
	if tenantID == uuid.Nil {
		return Context{}, ErrUnresolved
	}
	return Context{
		tenantID:    tenantID,
		tenantName:  tenantName,
		principalID: principalID,
		role:        role,
		state:       StateResolved,
	}, nil
}

// TenantID returns the resolved tenant id, uuid.Nil when unresolved.
func (c Context) TenantID() uuid.UUID {
	if !c.IsResolved() {
		return uuid.Nil
	}
	return c.tenantID
}

// TenantName is the denormalized tenant display name.
func (c Context) TenantName() string { return c.tenantName }

// PrincipalID identifies the caller the context was resolved for.
func (c Context) PrincipalID() string { return c.principalID }

// Role is the caller's membership role in the tenant.
func (c Context) Role() Role { return c.role }

// State reports the lifecycle state carried by the context.
func (c Context) State() State { return c.state }

// IsResolved reports whether the context can scope tenant-owned operations.
func (c Context) IsResolved() bool {
	return c.state == StateResolved && c.tenantID != uuid.Nil
}

// Require returns the tenant id or ErrUnresolved.
func (c Context) Require() (uuid.UUID, error) {
	if !c.IsResolved() {
		return uuid.Nil, ErrUnresolved
	}
	return c.tenantID, nil
}

type ctxKey struct{}

// WithContext returns a derived context.Context carrying the tenant Context.
// The value lives only as long as the request's context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Require extracts a resolved tenant Context or fails with ErrUnresolved.
func Require(ctx context.Context) (Context, error) {
	tc, ok := FromContext(ctx)
	if !ok || !tc.IsResolved() {
		return Context{}, ErrUnresolved
	}
	return tc, nil
}
