package scoped

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no row matches the composite key within the scoped tenant.
	ErrNotFound = errors.New("scoped: not found")
	// ErrDuplicateKey is returned when (tenant_id, id) already exists.
	ErrDuplicateKey = errors.New("scoped: duplicate key")
	// ErrParentNotFound is returned when a composite foreign key has no parent in the same tenant.
	ErrParentNotFound = errors.New("scoped: parent not found in tenant")
	// ErrOwnershipViolation marks an entity whose tenant disagrees with the active context.
	ErrOwnershipViolation = errors.New("scoped: tenant ownership violation")
	// ErrInvalidCondition is returned for a Cond that cannot be matched by equality.
	ErrInvalidCondition = errors.New("scoped: invalid condition")
)

// OwnershipError describes a tenant ownership violation. It is never retryable.
type OwnershipError struct {
	Op           string
	ResourceType string
	ResourceID   string
	Attempted    uuid.UUID
	Actual       uuid.UUID
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s %s: entity tenant %s does not match context tenant %s",
		e.Op, e.ResourceType, e.ResourceID, e.Attempted, e.Actual)
}

func (e *OwnershipError) Unwrap() error { return ErrOwnershipViolation }
