package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// SessionTenantSetting is the transaction-local variable read by the tenant_isolation policies.
const SessionTenantSetting = "app.tenant_id"

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TenantDB wraps a pgx pool and runs each unit of work in a transaction whose
// session state (role, search_path, app.tenant_id) is transaction-local, so it
// is discarded on commit, rollback and panic before the connection returns to
// the pool.
type TenantDB struct {
	pool    txBeginner
	schema  string
	appRole string
}

type TenantDBConfig struct {
	Pool *pgxpool.Pool
	// Schema holds both the directory tables and the tenant-owned tables.
	Schema string
	// AppRole is assumed for tenant work. It must not own the tenant-owned
	// tables and must not have BYPASSRLS.
	AppRole string
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}

	schema, err := normalizeIdentifier("schema", cfg.Schema)
	if err != nil {
		panic("TenantDB: " + err.Error())
	}
	appRole, err := normalizeIdentifier("app role", cfg.AppRole)
	if err != nil {
		panic("TenantDB: " + err.Error())
	}
	return &TenantDB{pool: cfg.Pool, schema: schema, appRole: appRole}
}

// Schema returns the configured schema.
func (db *TenantDB) Schema() string { return db.schema }

// WithAdmin executes fn inside a transaction scoped to the schema only.
// No role switching is performed and app.tenant_id stays unset, so
// tenant-owned tables are only visible if the connecting role bypasses RLS.
func (db *TenantDB) WithAdmin(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithTenant executes fn inside a read-write transaction bound to tc.
func (db *TenantDB) WithTenant(ctx context.Context, tc tenant.Context, fn func(tx pgx.Tx) error) error {
	return db.withTenant(ctx, tc, pgx.TxOptions{}, fn)
}

// WithTenantReadOnly is WithTenant with a read-only transaction.
func (db *TenantDB) WithTenantReadOnly(ctx context.Context, tc tenant.Context, fn func(tx pgx.Tx) error) error {
	return db.withTenant(ctx, tc, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (db *TenantDB) withTenant(ctx context.Context, tc tenant.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tenantID, err := tc.Require()
	if err != nil {
		return err
	}

	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL ROLE %s", pgx.Identifier{db.appRole}.Sanitize())); err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	if _, err = tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if _, err = tx.Exec(ctx, `SELECT set_config($1, $2, true)`, SessionTenantSetting, tenantID.String()); err != nil {
		return fmt.Errorf("set tenant: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
