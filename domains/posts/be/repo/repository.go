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

// ResourceType labels post records in audit events and logs.
const ResourceType = "post"

// ColumnCommunityID is the filter column for posts of one community.
const ColumnCommunityID = "community_id"

// Post is a tenant-owned record. Its community belongs to the same tenant.
type Post struct {
	TenantID    uuid.UUID
	ID          uuid.UUID
	CommunityID uuid.UUID
	Title       string
	Body        string
	AuthorID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Post) OwnerTenantID() uuid.UUID { return p.TenantID }
func (p Post) EntityID() uuid.UUID      { return p.ID }

func (p Post) WithOwner(tenantID uuid.UUID) Post {
	p.TenantID = tenantID
	return p
}

func (p Post) WithID(id uuid.UUID) Post {
	p.ID = id
	return p
}

// Field exposes filterable columns to the in-memory store.
func (p Post) Field(column string) (any, bool) {
	if column == ColumnCommunityID {
		return p.CommunityID, true
	}
	return nil, false
}

// Repository is the tenant-scoped contract used by the posts service.
type Repository interface {
	Find(ctx context.Context, conds ...scoped.Cond) ([]Post, error)
	GetByID(ctx context.Context, id uuid.UUID) (Post, error)
	Add(ctx context.Context, p Post) (Post, error)
	Update(ctx context.Context, p Post) (Post, error)
	Delete(ctx context.Context, p Post) error
}

var table = persistence.Table[Post]{
	Name:    "posts",
	Columns: []string{ColumnCommunityID, "title", "body", "author_id", "created_at", "updated_at"},
	Scan: func(row pgx.Row) (Post, error) {
		var p Post
		err := row.Scan(&p.TenantID, &p.ID, &p.CommunityID, &p.Title, &p.Body, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt)
		return p, err
	},
	Values: func(p Post) []any {
		return []any{p.CommunityID, p.Title, p.Body, p.AuthorID, p.CreatedAt, p.UpdatedAt}
	},
	OrderBy: "created_at ASC",
}

// NewPostgresRepository builds the repository over the posts table.
func NewPostgresRepository(db *persistence.TenantDB, sink audit.Sink, logger *zap.Logger) (*scoped.Repository[Post], error) {
	store, err := persistence.NewPGStore(db, table)
	if err != nil {
		return nil, fmt.Errorf("posts store: %w", err)
	}
	return scoped.New[Post](store, sink, ResourceType, logger), nil
}

// NewMemoryRepository builds the repository over an in-memory store.
func NewMemoryRepository(sink audit.Sink, logger *zap.Logger) *scoped.Repository[Post] {
	return scoped.New[Post](scoped.NewMemoryStore[Post](), sink, ResourceType, logger)
}

var _ Repository = (*scoped.Repository[Post])(nil)
