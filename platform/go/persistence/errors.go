package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
)

// Directory store errors.
var (
	ErrConflict  = errors.New("persistence: conflict")
	ErrImmutable = errors.New("persistence: record is immutable")
)

const rowSecurityViolation = "new row violates row-level security policy"

// classify maps Postgres errors onto the scoped error set. Errors it does not
// recognise are returned wrapped with the server details so they are never
// confused with an ownership violation.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return scoped.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", scoped.ErrDuplicateKey, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", scoped.ErrParentNotFound, pgErr.ConstraintName)
	case pgerrcode.InsufficientPrivilege:
		// WITH CHECK rejects a row whose tenant_id disagrees with app.tenant_id.
		// The same code covers missing grants, which are configuration errors.
		if strings.HasPrefix(pgErr.Message, rowSecurityViolation) {
			return fmt.Errorf("%w: %s", scoped.ErrOwnershipViolation, pgErr.Message)
		}
		return fmt.Errorf("postgres privilege error: %s: %w", pgErr.Message, err)
	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.AdminShutdown,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database unavailable: %w", err)
	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
