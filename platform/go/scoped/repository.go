// Package scoped provides the tenant-scoped repository used by every feature
// that stores tenant-owned records.
//
// Callers never pass a tenant filter. A Repository takes the tenant Context
// from the call's context.Context (or from an explicit View), derives the
// default Filter from it and checks ownership before and after every store
// call. A missing or unresolved Context fails the call with
// tenant.ErrUnresolved.
package scoped

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Entity is a tenant-owned record. (OwnerTenantID, EntityID) is its identity.
type Entity[T any] interface {
	OwnerTenantID() uuid.UUID
	EntityID() uuid.UUID
	WithOwner(tenantID uuid.UUID) T
	WithID(id uuid.UUID) T
}

// Key is the composite identity of a tenant-owned record.
type Key struct {
	TenantID uuid.UUID
	ID       uuid.UUID
}

// KeyOf returns the composite key of e.
func KeyOf[T Entity[T]](e T) Key {
	return Key{TenantID: e.OwnerTenantID(), ID: e.EntityID()}
}

// Store is the storage primitive a Repository delegates to. Every call receives
// the default Filter; implementations must apply it and must return ErrNotFound
// when the filter matches nothing.
type Store[T Entity[T]] interface {
	List(ctx context.Context, f Filter) ([]T, error)
	Get(ctx context.Context, f Filter) (T, error)
	Insert(ctx context.Context, f Filter, entity T) (T, error)
	Update(ctx context.Context, f Filter, entity T) (T, error)
	Delete(ctx context.Context, f Filter) error
}

// Repository enforces tenant ownership on top of a Store.
type Repository[T Entity[T]] struct {
	store        Store[T]
	sink         audit.Sink
	resourceType string
	logger       *zap.Logger
}

// New constructs a Repository for resourceType records.
func New[T Entity[T]](store Store[T], sink audit.Sink, resourceType string, logger *zap.Logger) *Repository[T] {
	if store == nil {
		panic("scoped repository: store is required")
	}
	if sink == nil {
		panic("scoped repository: audit sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository[T]{
		store:        store,
		sink:         sink,
		resourceType: resourceType,
		logger:       logger.With(zap.String("resource_type", resourceType)),
	}
}

// In binds the repository to an explicit tenant Context.
func (r *Repository[T]) In(tc tenant.Context) View[T] {
	return View[T]{repo: r, tc: tc}
}

func (r *Repository[T]) view(ctx context.Context) (View[T], error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return View[T]{}, err
	}
	return r.In(tc), nil
}

// GetAll returns every record owned by the context tenant.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	v, err := r.view(ctx)
	if err != nil {
		return nil, err
	}
	return v.GetAll(ctx)
}

// Find returns the context tenant's records narrowed by conds.
func (r *Repository[T]) Find(ctx context.Context, conds ...Cond) ([]T, error) {
	v, err := r.view(ctx)
	if err != nil {
		return nil, err
	}
	return v.Find(ctx, conds...)
}

// GetByID looks up (context tenant, id).
func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	v, err := r.view(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.GetByID(ctx, id)
}

// Add stores entity under the context tenant.
func (r *Repository[T]) Add(ctx context.Context, entity T) (T, error) {
	v, err := r.view(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.Add(ctx, entity)
}

// Update replaces entity, which must already belong to the context tenant.
func (r *Repository[T]) Update(ctx context.Context, entity T) (T, error) {
	v, err := r.view(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.Update(ctx, entity)
}

// Delete removes entity, which must belong to the context tenant.
func (r *Repository[T]) Delete(ctx context.Context, entity T) error {
	v, err := r.view(ctx)
	if err != nil {
		return err
	}
	return v.Delete(ctx, entity)
}

// View is a Repository bound to one tenant Context.
type View[T Entity[T]] struct {
	repo *Repository[T]
	tc   tenant.Context
}

func (v View[T]) scope() (Filter, error) {
	if v.repo == nil {
		return Filter{}, tenant.ErrUnresolved
	}
	return Scope(v.tc)
}

func (v View[T]) GetAll(ctx context.Context) ([]T, error) {
	return v.Find(ctx)
}

func (v View[T]) Find(ctx context.Context, conds ...Cond) ([]T, error) {
	f, err := v.scope()
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		if err := c.Check(); err != nil {
			return nil, err
		}
	}
	f = f.Where(conds...)

	items, err := v.repo.store.List(ctx, f)
	if err != nil {
		return nil, v.failed(ctx, "list", uuid.Nil, uuid.Nil, err)
	}
	for _, item := range items {
		if item.OwnerTenantID() != f.TenantID() {
			return nil, v.repo.violation(ctx, v.tc, "list", item.OwnerTenantID(), item.EntityID())
		}
	}
	return items, nil
}

func (v View[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	f, err := v.scope()
	if err != nil {
		return zero, err
	}
	if id == uuid.Nil {
		return zero, ErrNotFound
	}

	f = f.ByID(id)
	item, err := v.repo.store.Get(ctx, f)
	if err != nil {
		return zero, v.failed(ctx, "get", uuid.Nil, id, err)
	}
	if !Matches(f, item) {
		return zero, v.repo.violation(ctx, v.tc, "get", item.OwnerTenantID(), item.EntityID())
	}
	return item, nil
}

func (v View[T]) Add(ctx context.Context, entity T) (T, error) {
	var zero T
	f, err := v.scope()
	if err != nil {
		return zero, err
	}

	switch owner := entity.OwnerTenantID(); owner {
	case uuid.Nil:
		entity = entity.WithOwner(f.TenantID())
	case f.TenantID():
	default:
		return zero, v.repo.violation(ctx, v.tc, "add", owner, entity.EntityID())
	}
	if entity.EntityID() == uuid.Nil {
		entity = entity.WithID(uuid.New())
	}

	stored, err := v.repo.store.Insert(ctx, f, entity)
	if err != nil {
		return zero, v.failed(ctx, "add", entity.OwnerTenantID(), entity.EntityID(), err)
	}
	if !Matches(f, stored) {
		return zero, v.repo.violation(ctx, v.tc, "add", stored.OwnerTenantID(), stored.EntityID())
	}
	return stored, nil
}

func (v View[T]) Update(ctx context.Context, entity T) (T, error) {
	var zero T
	f, err := v.scope()
	if err != nil {
		return zero, err
	}
	if owner := entity.OwnerTenantID(); owner != f.TenantID() {
		return zero, v.repo.violation(ctx, v.tc, "update", owner, entity.EntityID())
	}
	if entity.EntityID() == uuid.Nil {
		return zero, ErrNotFound
	}

	f = f.ByID(entity.EntityID())
	stored, err := v.repo.store.Update(ctx, f, entity)
	if err != nil {
		return zero, v.failed(ctx, "update", entity.OwnerTenantID(), entity.EntityID(), err)
	}
	if !Matches(f, stored) {
		return zero, v.repo.violation(ctx, v.tc, "update", stored.OwnerTenantID(), stored.EntityID())
	}
	return stored, nil
}

func (v View[T]) Delete(ctx context.Context, entity T) error {
	f, err := v.scope()
	if err != nil {
		return err
	}
	if owner := entity.OwnerTenantID(); owner != f.TenantID() {
		return v.repo.violation(ctx, v.tc, "delete", owner, entity.EntityID())
	}
	if entity.EntityID() == uuid.Nil {
		return ErrNotFound
	}

	if err := v.repo.store.Delete(ctx, f.ByID(entity.EntityID())); err != nil {
		return v.failed(ctx, "delete", entity.OwnerTenantID(), entity.EntityID(), err)
	}
	return nil
}

// failed translates a store error. A store that reports an ownership violation
// (for example a row-level security WITH CHECK failure) is audited like one
// detected here.
func (v View[T]) failed(ctx context.Context, op string, owner, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrOwnershipViolation):
		if owner == uuid.Nil {
			owner = v.tc.TenantID()
		}
		return v.repo.violation(ctx, v.tc, op, owner, id)
	}
	return v.repo.storageError(ctx, op, err)
}

// violation records and returns an ownership error. The audit event is
// best effort; a sink failure never hides the violation from the caller.
func (r *Repository[T]) violation(ctx context.Context, tc tenant.Context, op string, attempted, resourceID uuid.UUID) error {
	verr := &OwnershipError{
		Op:           op,
		ResourceType: r.resourceType,
		ResourceID:   resourceID.String(),
		Attempted:    attempted,
		Actual:       tc.TenantID(),
	}

	logger := r.loggerFrom(ctx)
	logger.Error("tenant ownership violation",
		zap.String("op", op),
		zap.String("resource_id", verr.ResourceID),
		zap.String("attempted_tenant_id", attempted.String()),
		zap.String("actual_tenant_id", verr.Actual.String()),
		zap.String("principal_id", tc.PrincipalID()),
	)

	event := audit.Stamp(ctx, audit.Event{
		PrincipalID:       tc.PrincipalID(),
		AttemptedTenantID: attempted,
		ActualTenantID:    tc.TenantID(),
		ResourceType:      r.resourceType,
		ResourceID:        verr.ResourceID,
		Reason:            audit.ReasonOwnershipViolation,
	})
	if err := r.sink.Record(ctx, event); err != nil {
		logger.Error("record cross-tenant access event", zap.Error(err))
	}
	return verr
}

// storageError passes domain errors through and logs everything else as a
// storage failure.
func (r *Repository[T]) storageError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrParentNotFound):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	r.loggerFrom(ctx).Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return err
}

func (r *Repository[T]) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger.With(zap.String("resource_type", r.resourceType))
	}
	return r.logger
}
