package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const maxNameLength = 200

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("tenant not found")
	ErrTenantImmutable    = errors.New("tenant is inactive and can no longer change")
	ErrConflict           = errors.New("tenant already exists")
	ErrMembershipExists   = errors.New("principal already has an active membership in this tenant")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// Repository is the administrative store of tenants and memberships.
// *persistence.DirectoryStore implements it.
type Repository interface {
	// CreateTenant stores t and, when owner is non-nil, its owner membership atomically.
	CreateTenant(ctx context.Context, t tenant.Tenant, owner *tenant.Membership) (tenant.Tenant, error)
	Tenant(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	ListTenants(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Tenant, int, error)
	SetTenantStatus(ctx context.Context, id uuid.UUID, status tenant.Status, now time.Time) (tenant.Tenant, error)
	AddMembership(ctx context.Context, id uuid.UUID, m tenant.Membership) (tenant.Membership, error)
	RevokeMembership(ctx context.Context, tenantID uuid.UUID, userID string, now time.Time) error
	ListMemberships(ctx context.Context, tenantID uuid.UUID) ([]tenant.Membership, error)
}

// ProvisionInput represents the request to create a tenant.
type ProvisionInput struct {
	Name string
	// OwnerID, when set, receives an owner membership.
	OwnerID string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *tenant.Status
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []tenant.Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Service provides tenant registry operations on the administrative path.
type Service struct {
	repo   Repository
	cache  tenant.Invalidator
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Service. cache may be nil when no directory cache is in use.
func New(repo Repository, cache tenant.Invalidator, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Provision creates an active tenant and, when requested, its first owner.
// On error nothing is stored and the zero Tenant is returned.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (tenant.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return tenant.Tenant{}, fmt.Errorf("%w: tenant name must be 1..%d characters", ErrInvalidInput, maxNameLength)
	}

	now := s.now().UTC()
	id := uuid.New()
	var owner *tenant.Membership
	if ownerID := strings.TrimSpace(input.OwnerID); ownerID != "" {
		owner = &tenant.Membership{TenantID: id, UserID: ownerID, Role: tenant.RoleOwner, Active: true, CreatedAt: now}
	}

	created, err := s.repo.CreateTenant(ctx, tenant.Tenant{
		ID:        id,
		Name:      name,
		Status:    tenant.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, owner)
	if err != nil {
		return tenant.Tenant{}, translate(err)
	}
	fields := []zap.Field{zap.String("tenant_id", created.ID.String()), zap.String("tenant_name", created.Name)}
	if owner != nil {
		fields = append(fields, zap.String("owner_id", owner.UserID))
	}
	s.logger.Info("tenant provisioned", fields...)
	return created, nil
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	t, err := s.repo.Tenant(ctx, id)
	if err != nil {
		return tenant.Tenant{}, translate(err)
	}
	return t, nil
}

// List tenants with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	items, total, err := s.repo.ListTenants(ctx, opts.Status, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Tenants:    items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Suspend blocks resolution for the tenant until it is activated again.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.setStatus(ctx, id, tenant.StatusSuspended)
}

// Activate re-enables a suspended tenant.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.setStatus(ctx, id, tenant.StatusActive)
}

// Deactivate retires the tenant. Inactive is terminal.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.setStatus(ctx, id, tenant.StatusInactive)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status tenant.Status) (tenant.Tenant, error) {
	updated, err := s.repo.SetTenantStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return tenant.Tenant{}, translate(err)
	}
	s.invalidate(id)
	s.logger.Info("tenant status changed", zap.String("tenant_id", id.String()), zap.String("status", string(status)))
	return updated, nil
}

// AddMember grants principal a role in the tenant.
func (s *Service) AddMember(ctx context.Context, tenantID uuid.UUID, userID string, role tenant.Role) (tenant.Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return tenant.Membership{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return tenant.Membership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return tenant.Membership{}, err
	}
	if t.Status == tenant.StatusInactive {
		return tenant.Membership{}, ErrTenantImmutable
	}

	m, err := s.repo.AddMembership(ctx, uuid.New(), tenant.Membership{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		Active:    true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return tenant.Membership{}, ErrMembershipExists
		}
		return tenant.Membership{}, translate(err)
	}
	s.invalidate(tenantID)
	s.logger.Info("membership added", zap.String("tenant_id", tenantID.String()), zap.String("user_id", userID), zap.String("role", string(role)))
	return m, nil
}

// RevokeMember deactivates the principal's membership.
func (s *Service) RevokeMember(ctx context.Context, tenantID uuid.UUID, userID string) error {
	if err := s.repo.RevokeMembership(ctx, tenantID, strings.TrimSpace(userID), s.now().UTC()); err != nil {
		return translate(err)
	}
	s.invalidate(tenantID)
	s.logger.Info("membership revoked", zap.String("tenant_id", tenantID.String()), zap.String("user_id", userID))
	return nil
}

// Members lists active memberships.
func (s *Service) Members(ctx context.Context, tenantID uuid.UUID) ([]tenant.Membership, error) {
	if _, err := s.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListMemberships(ctx, tenantID)
}

func (s *Service) invalidate(tenantID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(tenantID)
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return ErrNotFound
	case errors.Is(err, tenant.ErrNoMembership):
		return ErrMembershipNotFound
	case errors.Is(err, persistence.ErrImmutable):
		return ErrTenantImmutable
	case errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}
