package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	tenantColumns     = "id, name, status, created_at, updated_at"
	membershipColumns = "tenant_id, user_id, role, active, created_at"
)

// DirectoryStore reads and writes the tenants and memberships tables through
// the administrative path. It implements tenant.Directory.
type DirectoryStore struct {
	db      *TenantDB
	builder sq.StatementBuilderType
}

// NewDirectoryStore constructs a DirectoryStore.
func NewDirectoryStore(db *TenantDB) (*DirectoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("tenant db is required")
	}
	return &DirectoryStore{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

func (s *DirectoryStore) Tenant(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
		var scanErr error
		t, scanErr = scanTenant(row)
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *DirectoryStore) Membership(ctx context.Context, principalID string, tenantID uuid.UUID) (tenant.Membership, error) {
	var m tenant.Membership
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 AND user_id = $2 AND active`,
			tenantID, principalID)
		var scanErr error
		m, scanErr = scanMembership(row)
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.Membership{}, tenant.ErrNoMembership
	}
	if err != nil {
		return tenant.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// CreateTenant inserts a new tenant record and, when owner is set, the owner
// membership in the same transaction. Either both rows exist or neither does.
func (s *DirectoryStore) CreateTenant(ctx context.Context, t tenant.Tenant, owner *tenant.Membership) (tenant.Tenant, error) {
	var out tenant.Tenant
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO tenants (id, name, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+tenantColumns,
			t.ID, t.Name, string(t.Status), t.CreatedAt, t.UpdatedAt)
		var scanErr error
		out, scanErr = scanTenant(row)
		if scanErr != nil || owner == nil {
			return scanErr
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO memberships (id, tenant_id, user_id, role, active, created_at)
			 VALUES ($1, $2, $3, $4, TRUE, $5)`,
			uuid.New(), out.ID, owner.UserID, string(owner.Role), owner.CreatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.Tenant{}, ErrConflict
		}
		return tenant.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return out, nil
}

// ListTenants returns tenants ordered by creation time plus the total count.
func (s *DirectoryStore) ListTenants(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Tenant, int, error) {
	where := sq.And{}
	if status != nil {
		where = append(where, sq.Eq{"status": string(*status)})
	}

	countSQL, countArgs, err := s.builder.Select("COUNT(*)").From("tenants").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count tenants: %w", err)
	}
	listSQL, listArgs, err := s.builder.
		Select(tenantColumns).
		From("tenants").
		Where(where).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list tenants: %w", err)
	}

	var (
		total int
		out   []tenant.Tenant
	)
	err = s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, listSQL, listArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTenant(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	return out, total, nil
}

// SetTenantStatus changes a tenant's status. An inactive tenant is immutable
// and yields ErrImmutable.
func (s *DirectoryStore) SetTenantStatus(ctx context.Context, id uuid.UUID, status tenant.Status, now time.Time) (tenant.Tenant, error) {
	var out tenant.Tenant
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE tenants SET status = $2, updated_at = $3
			 WHERE id = $1 AND status <> 'inactive'
			 RETURNING `+tenantColumns,
			id, string(status), now)
		var scanErr error
		out, scanErr = scanTenant(row)
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return scanErr
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrImmutable
		}
		return tenant.ErrTenantNotFound
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrImmutable), errors.Is(err, tenant.ErrTenantNotFound):
		return tenant.Tenant{}, err
	default:
		return tenant.Tenant{}, fmt.Errorf("set tenant status: %w", err)
	}
}

// AddMembership inserts an active membership. A second active membership for
// the same (tenant, user) yields ErrConflict.
func (s *DirectoryStore) AddMembership(ctx context.Context, id uuid.UUID, m tenant.Membership) (tenant.Membership, error) {
	var out tenant.Membership
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO memberships (id, tenant_id, user_id, role, active, created_at)
			 VALUES ($1, $2, $3, $4, TRUE, $5)
			 RETURNING `+membershipColumns,
			id, m.TenantID, m.UserID, string(m.Role), m.CreatedAt)
		var scanErr error
		out, scanErr = scanMembership(row)
		return scanErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return tenant.Membership{}, ErrConflict
			case pgerrcode.ForeignKeyViolation:
				return tenant.Membership{}, tenant.ErrTenantNotFound
			}
		}
		return tenant.Membership{}, fmt.Errorf("add membership: %w", err)
	}
	return out, nil
}

// RevokeMembership deactivates the active membership for (tenant, user).
func (s *DirectoryStore) RevokeMembership(ctx context.Context, tenantID uuid.UUID, userID string, now time.Time) error {
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE memberships SET active = FALSE, revoked_at = $3
			 WHERE tenant_id = $1 AND user_id = $2 AND active`,
			tenantID, userID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return tenant.ErrNoMembership
		}
		return nil
	})
	if err != nil && !errors.Is(err, tenant.ErrNoMembership) {
		return fmt.Errorf("revoke membership: %w", err)
	}
	return err
}

// ListMemberships returns the active memberships of a tenant.
func (s *DirectoryStore) ListMemberships(ctx context.Context, tenantID uuid.UUID) ([]tenant.Membership, error) {
	var out []tenant.Membership
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 AND active ORDER BY created_at ASC`,
			tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMembership(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

func scanTenant(row pgx.Row) (tenant.Tenant, error) {
	var (
		t      tenant.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return tenant.Tenant{}, err
	}
	t.Status = tenant.Status(status)
	if !t.Status.Valid() {
		return tenant.Tenant{}, fmt.Errorf("tenant %s has unknown status %q", t.ID, status)
	}
	return t, nil
}

func scanMembership(row pgx.Row) (tenant.Membership, error) {
	var (
		m    tenant.Membership
		role string
	)
	if err := row.Scan(&m.TenantID, &m.UserID, &role, &m.Active, &m.CreatedAt); err != nil {
		return tenant.Membership{}, err
	}
	m.Role = tenant.Role(role)
	return m, nil
}

var _ tenant.Directory = (*DirectoryStore)(nil)
