package scoped

import (
	"fmt"
	"reflect"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Column names shared by every tenant-owned table.
const (
	ColumnTenantID = "tenant_id"
	ColumnID       = "id"
)

// Filter is the default scope applied to every store call. It can only be
// built from a resolved tenant Context; a zero Filter matches nothing.
type Filter struct {
	scope tenant.Context
	id    uuid.UUID
	conds []Cond
}

// Cond narrows a filter to rows whose Column equals Value. It is always
// combined with the tenant predicate, never a replacement for it. Value must
// be a non-nil comparable value; slices, maps and funcs are rejected.
type Cond struct {
	Column string
	Value  any
}

// Check reports ErrInvalidCondition for an empty column or a Value that
// cannot be compared with ==.
func (c Cond) Check() error {
	if c.Column == "" {
		return fmt.Errorf("%w: empty column", ErrInvalidCondition)
	}
	if c.Value == nil || !reflect.TypeOf(c.Value).Comparable() {
		return fmt.Errorf("%w: %s has non-comparable value %T", ErrInvalidCondition, c.Column, c.Value)
	}
	return nil
}

// Fielder exposes column values for in-memory matching of narrowed filters.
// Entities that do not implement it never match a filter carrying conditions.
type Fielder interface {
	Field(column string) (any, bool)
}

// Scope returns the default filter for tc, or tenant.ErrUnresolved.
func Scope(tc tenant.Context) (Filter, error) {
	if _, err := tc.Require(); err != nil {
		return Filter{}, err
	}
	return Filter{scope: tc}, nil
}

// ByID narrows the filter to the composite key (tenant, id).
func (f Filter) ByID(id uuid.UUID) Filter {
	f.id = id
	return f
}

// Where narrows the filter with additional equality conditions.
func (f Filter) Where(conds ...Cond) Filter {
	f.conds = append(slices.Clip(f.conds), conds...)
	return f
}

// Conds returns the additional conditions.
func (f Filter) Conds() []Cond { return slices.Clone(f.conds) }

// Tenant returns the tenant Context the filter is bound to.
func (f Filter) Tenant() tenant.Context { return f.scope }

// TenantID returns the scoped tenant id, uuid.Nil for a zero filter.
func (f Filter) TenantID() uuid.UUID { return f.scope.TenantID() }

// ID returns the entity id the filter is narrowed to, if any.
func (f Filter) ID() (uuid.UUID, bool) { return f.id, f.id != uuid.Nil }

// Key returns the composite key for a filter narrowed with ByID.
func (f Filter) Key() Key { return Key{TenantID: f.TenantID(), ID: f.id} }

// Valid reports tenant.ErrUnresolved for a filter not bound to a resolved tenant.
func (f Filter) Valid() error {
	_, err := f.scope.Require()
	return err
}

// Predicate renders the filter as a SQL predicate. An unbound filter renders a
// constant false so that a query built from it returns no rows.
func (f Filter) Predicate() sq.Sqlizer {
	if f.Valid() != nil {
		return sq.Expr("FALSE")
	}
	// sq.Eq would expand a uuid.UUID into an IN list, so each column is an Expr.
	pred := sq.And{sq.Expr(ColumnTenantID+" = ?", f.TenantID())}
	if id, ok := f.ID(); ok {
		pred = append(pred, sq.Expr(ColumnID+" = ?", id))
	}
	for _, c := range f.conds {
		pred = append(pred, sq.Expr(c.Column+" = ?", c.Value))
	}
	return pred
}

// Matches reports whether e falls inside the filter.
func Matches[T Entity[T]](f Filter, e T) bool {
	if f.Valid() != nil {
		return false
	}
	if e.OwnerTenantID() != f.TenantID() {
		return false
	}
	if id, ok := f.ID(); ok && e.EntityID() != id {
		return false
	}
	if len(f.conds) == 0 {
		return true
	}
	fielder, ok := any(e).(Fielder)
	if !ok {
		return false
	}
	for _, c := range f.conds {
		if c.Check() != nil {
			return false
		}
		if v, ok := fielder.Field(c.Column); !ok || v != c.Value {
			return false
		}
	}
	return true
}
