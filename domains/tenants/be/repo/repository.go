package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// NewPostgresRepository returns the directory store over the tenants and
// memberships tables. It serves both the service and the resolver.
func NewPostgresRepository(db *persistence.TenantDB) (*persistence.DirectoryStore, error) {
	return persistence.NewDirectoryStore(db)
}

// MemoryRepository is an in-memory implementation suitable for tests and the
// dev server. It behaves like the Postgres store, including the error set.
type MemoryRepository struct {
	mu          sync.RWMutex
	tenants     map[uuid.UUID]tenant.Tenant
	memberships []tenant.Membership
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tenants: make(map[uuid.UUID]tenant.Tenant)}
}

func (r *MemoryRepository) CreateTenant(_ context.Context, t tenant.Tenant, owner *tenant.Membership) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tenants[t.ID]; exists {
		return tenant.Tenant{}, persistence.ErrConflict
	}
	r.tenants[t.ID] = t
	if owner != nil {
		m := *owner
		m.TenantID = t.ID
		m.Active = true
		r.memberships = append(r.memberships, m)
	}
	return t, nil
}

func (r *MemoryRepository) Tenant(_ context.Context, id uuid.UUID) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (r *MemoryRepository) ListTenants(_ context.Context, status *tenant.Status, limit, offset int) ([]tenant.Tenant, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if status != nil && t.Status != *status {
			continue
		}
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	return items[start:end], total, nil
}

func (r *MemoryRepository) SetTenantStatus(_ context.Context, id uuid.UUID, status tenant.Status, now time.Time) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	if t.Status == tenant.StatusInactive {
		return tenant.Tenant{}, persistence.ErrImmutable
	}
	t.Status = status
	t.UpdatedAt = now
	r.tenants[id] = t
	return t, nil
}

func (r *MemoryRepository) AddMembership(_ context.Context, _ uuid.UUID, m tenant.Membership) (tenant.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[m.TenantID]; !ok {
		return tenant.Membership{}, tenant.ErrTenantNotFound
	}
	if _, ok := r.activeIndex(m.TenantID, m.UserID); ok {
		return tenant.Membership{}, persistence.ErrConflict
	}
	m.Active = true
	r.memberships = append(r.memberships, m)
	return m, nil
}

func (r *MemoryRepository) RevokeMembership(_ context.Context, tenantID uuid.UUID, userID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.activeIndex(tenantID, userID)
	if !ok {
		return tenant.ErrNoMembership
	}
	r.memberships[i].Active = false
	return nil
}

func (r *MemoryRepository) ListMemberships(_ context.Context, tenantID uuid.UUID) ([]tenant.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []tenant.Membership
	for _, m := range r.memberships {
		if m.TenantID == tenantID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

// Membership implements tenant.Directory.
func (r *MemoryRepository) Membership(_ context.Context, principalID string, tenantID uuid.UUID) (tenant.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.activeIndex(tenantID, principalID)
	if !ok {
		return tenant.Membership{}, tenant.ErrNoMembership
	}
	return r.memberships[i], nil
}

func (r *MemoryRepository) activeIndex(tenantID uuid.UUID, userID string) (int, bool) {
	for i, m := range r.memberships {
		if m.TenantID == tenantID && m.UserID == userID && m.Active {
			return i, true
		}
	}
	return -1, false
}

var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ service.Repository = (*persistence.DirectoryStore)(nil)
	_ tenant.Directory   = (*MemoryRepository)(nil)
)
