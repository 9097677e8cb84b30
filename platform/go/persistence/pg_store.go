package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
)

// Table describes how a tenant-owned entity maps onto its table. tenant_id and
// id are implicit leading columns; Columns lists the remaining ones.
type Table[T scoped.Entity[T]] struct {
	Name    string
	Columns []string
	// Scan reads tenant_id, id, then Columns in order.
	Scan func(row pgx.Row) (T, error)
	// Values returns the values for Columns in order.
	Values  func(entity T) []any
	OrderBy string
}

func (t Table[T]) selectColumns() []string {
	return append([]string{scoped.ColumnTenantID, scoped.ColumnID}, t.Columns...)
}

func (t Table[T]) validate() error {
	if _, err := normalizeIdentifier("table name", t.Name); err != nil {
		return err
	}
	for _, col := range t.Columns {
		if _, err := normalizeIdentifier("column name", col); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	switch {
	case t.Scan == nil:
		return fmt.Errorf("table %s: scan func is required", t.Name)
	case t.Values == nil:
		return fmt.Errorf("table %s: values func is required", t.Name)
	}
	return nil
}

// PGStore is a scoped.Store over a tenant-owned Postgres table. Every
// statement carries the Filter predicate and runs inside TenantDB.WithTenant
// so the tenant_isolation policy applies as well.
type PGStore[T scoped.Entity[T]] struct {
	db      *TenantDB
	table   Table[T]
	builder sq.StatementBuilderType
}

// NewPGStore constructs a PGStore.
func NewPGStore[T scoped.Entity[T]](db *TenantDB, table Table[T]) (*PGStore[T], error) {
	if db == nil {
		return nil, fmt.Errorf("tenant db is required")
	}
	if err := table.validate(); err != nil {
		return nil, err
	}
	return &PGStore[T]{
		db:      db,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (s *PGStore[T]) List(ctx context.Context, f scoped.Filter) ([]T, error) {
	if err := f.Valid(); err != nil {
		return nil, err
	}
	for _, c := range f.Conds() {
		if !slices.Contains(s.table.Columns, c.Column) {
			return nil, fmt.Errorf("list %s: unknown column %q", s.table.Name, c.Column)
		}
	}

	query := s.builder.Select(s.table.selectColumns()...).From(s.table.Name).Where(f.Predicate())
	if s.table.OrderBy != "" {
		query = query.OrderBy(s.table.OrderBy)
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list %s: %w", s.table.Name, err)
	}

	var out []T
	err = s.db.WithTenantReadOnly(ctx, f.Tenant(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			item, err := s.table.Scan(rows)
			if err != nil {
				return fmt.Errorf("scan %s: %w", s.table.Name, err)
			}
			out = append(out, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (s *PGStore[T]) Get(ctx context.Context, f scoped.Filter) (T, error) {
	var zero T
	if err := f.Valid(); err != nil {
		return zero, err
	}
	if _, ok := f.ID(); !ok {
		return zero, scoped.ErrNotFound
	}

	sql, args, err := s.builder.Select(s.table.selectColumns()...).From(s.table.Name).Where(f.Predicate()).ToSql()
	if err != nil {
		return zero, fmt.Errorf("build get %s: %w", s.table.Name, err)
	}

	var item T
	err = s.db.WithTenantReadOnly(ctx, f.Tenant(), func(tx pgx.Tx) error {
		var scanErr error
		item, scanErr = s.table.Scan(tx.QueryRow(ctx, sql, args...))
		return scanErr
	})
	if err != nil {
		return zero, classify(err)
	}
	return item, nil
}

func (s *PGStore[T]) Insert(ctx context.Context, f scoped.Filter, entity T) (T, error) {
	var zero T
	if err := f.Valid(); err != nil {
		return zero, err
	}
	if entity.OwnerTenantID() != f.TenantID() {
		return zero, scoped.ErrOwnershipViolation
	}

	values := append([]any{entity.OwnerTenantID(), entity.EntityID()}, s.table.Values(entity)...)
	sql, args, err := s.builder.
		Insert(s.table.Name).
		Columns(s.table.selectColumns()...).
		Values(values...).
		Suffix("RETURNING " + strings.Join(s.table.selectColumns(), ", ")).
		ToSql()
	if err != nil {
		return zero, fmt.Errorf("build insert %s: %w", s.table.Name, err)
	}

	var stored T
	err = s.db.WithTenant(ctx, f.Tenant(), func(tx pgx.Tx) error {
		var scanErr error
		stored, scanErr = s.table.Scan(tx.QueryRow(ctx, sql, args...))
		return scanErr
	})
	if err != nil {
		return zero, classify(err)
	}
	return stored, nil
}

func (s *PGStore[T]) Update(ctx context.Context, f scoped.Filter, entity T) (T, error) {
	var zero T
	if err := f.Valid(); err != nil {
		return zero, err
	}
	if !scoped.Matches(f, entity) {
		return zero, scoped.ErrOwnershipViolation
	}

	values := s.table.Values(entity)
	set := make(map[string]any, len(s.table.Columns))
	for i, col := range s.table.Columns {
		set[col] = values[i]
	}

	sql, args, err := s.builder.
		Update(s.table.Name).
		SetMap(set).
		Where(f.Predicate()).
		Suffix("RETURNING " + strings.Join(s.table.selectColumns(), ", ")).
		ToSql()
	if err != nil {
		return zero, fmt.Errorf("build update %s: %w", s.table.Name, err)
	}

	var stored T
	err = s.db.WithTenant(ctx, f.Tenant(), func(tx pgx.Tx) error {
		var scanErr error
		stored, scanErr = s.table.Scan(tx.QueryRow(ctx, sql, args...))
		return scanErr
	})
	if err != nil {
		return zero, classify(err)
	}
	return stored, nil
}

func (s *PGStore[T]) Delete(ctx context.Context, f scoped.Filter) error {
	if err := f.Valid(); err != nil {
		return err
	}
	if _, ok := f.ID(); !ok {
		return scoped.ErrNotFound
	}

	sql, args, err := s.builder.Delete(s.table.Name).Where(f.Predicate()).ToSql()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", s.table.Name, err)
	}

	err = s.db.WithTenant(ctx, f.Tenant(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return scoped.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, scoped.ErrNotFound) {
			return err
		}
		return classify(err)
	}
	return nil
}
