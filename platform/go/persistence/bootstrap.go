package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// BootstrapSchema creates the schema and the application role (if missing)
// and applies the embedded DDL in a single transaction, in this order:
//  1. platform/tenants.sql
//  2. platform/memberships.sql
//  3. platform/audit.sql
//  4. tenant_space/communities.sql
//  5. tenant_space/posts.sql
//
// The connecting role owns the tables. The application role only receives DML
// grants on the tenant-owned tables, so FORCE ROW LEVEL SECURITY applies to it.
// The helper is idempotent and intended for CLI bootstrap and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool, schema, appRole string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}
	schema, err := normalizeIdentifier("schema", schema)
	if err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	appRole, err = normalizeIdentifier("app role", appRole)
	if err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	var statements []string
	for _, src := range []string{
		sqlassets.TenantsSQL,
		sqlassets.MembershipsSQL,
		sqlassets.AuditSQL,
		sqlassets.CommunitiesSQL,
		sqlassets.PostsSQL,
	} {
		statements = append(statements, splitStatements(src)...)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	schemaIdent := pgx.Identifier{schema}.Sanitize()
	roleIdent := pgx.Identifier{appRole}.Sanitize()

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaIdent); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if err := ensureRole(ctx, tx, appRole); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	grants := []string{
		"GRANT USAGE ON SCHEMA " + schemaIdent + " TO " + roleIdent,
	}
	for _, table := range sqlassets.TenantOwnedTables {
		grants = append(grants, fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s",
			pgx.Identifier{schema, table}.Sanitize(), roleIdent))
	}
	for _, stmt := range grants {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("grant app role: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func ensureRole(ctx context.Context, tx pgx.Tx, role string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).Scan(&exists); err != nil {
		return fmt.Errorf("lookup role: %w", err)
	}

	ident := pgx.Identifier{role}.Sanitize()
	if !exists {
		if _, err := tx.Exec(ctx, "CREATE ROLE "+ident+" NOLOGIN NOBYPASSRLS"); err != nil {
			return fmt.Errorf("create role: %w", err)
		}
	}
	// SET ROLE requires membership for non-superusers.
	if _, err := tx.Exec(ctx, "GRANT "+ident+" TO CURRENT_USER"); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// splitStatements splits a DDL script on semicolons. The embedded scripts do
// not use dollar-quoted bodies, so a plain split is sufficient.
func splitStatements(src string) []string {
	parts := strings.Split(src, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" || isCommentOnly(stmt) {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
