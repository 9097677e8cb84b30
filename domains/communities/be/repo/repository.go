package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
)

// ResourceType labels community records in audit events and logs.
const ResourceType = "community"

// Community is a tenant-owned record keyed by (TenantID, ID).
type Community struct {
	TenantID    uuid.UUID
	ID          uuid.UUID
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Community) OwnerTenantID() uuid.UUID { return c.TenantID }
func (c Community) EntityID() uuid.UUID      { return c.ID }

func (c Community) WithOwner(tenantID uuid.UUID) Community {
	c.TenantID = tenantID
	return c
}

func (c Community) WithID(id uuid.UUID) Community {
	c.ID = id
	return c
}

// Repository is the tenant-scoped contract used by the communities service.
// *scoped.Repository[Community] implements it.
type Repository interface {
	GetAll(ctx context.Context) ([]Community, error)
	GetByID(ctx context.Context, id uuid.UUID) (Community, error)
	Add(ctx context.Context, c Community) (Community, error)
	Update(ctx context.Context, c Community) (Community, error)
	Delete(ctx context.Context, c Community) error
}

var table = persistence.Table[Community]{
	Name:    "communities",
	Columns: []string{"name", "description", "created_by", "created_at", "updated_at"},
	Scan: func(row pgx.Row) (Community, error) {
		var c Community
		err := row.Scan(&c.TenantID, &c.ID, &c.Name, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	},
	Values: func(c Community) []any {
		return []any{c.Name, c.Description, c.CreatedBy, c.CreatedAt, c.UpdatedAt}
	},
	OrderBy: "created_at ASC",
}

// NewPostgresRepository builds the repository over the communities table.
func NewPostgresRepository(db *persistence.TenantDB, sink audit.Sink, logger *zap.Logger) (*scoped.Repository[Community], error) {
	store, err := persistence.NewPGStore(db, table)
	if err != nil {
		return nil, fmt.Errorf("communities store: %w", err)
	}
	return scoped.New[Community](store, sink, ResourceType, logger), nil
}

// NewMemoryRepository builds the repository over an in-memory store.
func NewMemoryRepository(sink audit.Sink, logger *zap.Logger) *scoped.Repository[Community] {
	return scoped.New[Community](scoped.NewMemoryStore[Community](), sink, ResourceType, logger)
}

var _ Repository = (*scoped.Repository[Community])(nil)
