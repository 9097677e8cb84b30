package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the tenant lifecycle status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusInactive:
		return true
	default:
		return false
	}
}

// Role is a principal's role inside a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// Tenant is a tenant directory record.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership relates a principal to a tenant.
type Membership struct {
	TenantID  uuid.UUID
	UserID    string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Directory lookup errors.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrNoMembership   = errors.New("membership not found")
)

// Directory is read access to tenant and membership records.
// Membership only returns active memberships.
type Directory interface {
	Tenant(ctx context.Context, id uuid.UUID) (Tenant, error)
	Membership(ctx context.Context, principalID string, tenantID uuid.UUID) (Membership, error)
}

// MemoryDirectory is an in-memory Directory suitable for tests and local development.
type MemoryDirectory struct {
	mu          sync.RWMutex
	tenants     map[uuid.UUID]Tenant
	memberships map[membershipKey]Membership
}

type membershipKey struct {
	tenantID    uuid.UUID
	principalID string
}

// NewMemoryDirectory constructs an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		tenants:     make(map[uuid.UUID]Tenant),
		memberships: make(map[membershipKey]Membership),
	}
}

// PutTenant stores or replaces a tenant record.
func (d *MemoryDirectory) PutTenant(t Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = t
}

// PutMembership stores or replaces the membership for (tenant, user).
func (d *MemoryDirectory) PutMembership(m Membership) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[membershipKey{tenantID: m.TenantID, principalID: m.UserID}] = m
}

func (d *MemoryDirectory) Tenant(_ context.Context, id uuid.UUID) (Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (d *MemoryDirectory) Membership(_ context.Context, principalID string, tenantID uuid.UUID) (Membership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.memberships[membershipKey{tenantID: tenantID, principalID: principalID}]
	if !ok || !m.Active {
		return Membership{}, ErrNoMembership
	}
	return m, nil
}
