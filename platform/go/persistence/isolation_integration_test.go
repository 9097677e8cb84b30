package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	testSchema  = "palmyra"
	testAppRole = "palmyra_app"
)

type testCommunity struct {
	TenantID  uuid.UUID
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

func (c testCommunity) OwnerTenantID() uuid.UUID { return c.TenantID }
func (c testCommunity) EntityID() uuid.UUID      { return c.ID }
func (c testCommunity) WithOwner(id uuid.UUID) testCommunity {
	c.TenantID = id
	return c
}
func (c testCommunity) WithID(id uuid.UUID) testCommunity {
	c.ID = id
	return c
}

var testCommunities = Table[testCommunity]{
	Name:    "communities",
	Columns: []string{"name", "description", "created_by", "created_at", "updated_at"},
	Scan: func(row pgx.Row) (testCommunity, error) {
		var (
			c                      testCommunity
			description, createdBy string
			updatedAt              time.Time
		)
		err := row.Scan(&c.TenantID, &c.ID, &c.Name, &description, &createdBy, &c.CreatedAt, &updatedAt)
		return c, err
	},
	Values: func(c testCommunity) []any {
		return []any{c.Name, "", "tester", c.CreatedAt, c.CreatedAt}
	},
	OrderBy: "created_at ASC",
}

type testPost struct {
	TenantID    uuid.UUID
	ID          uuid.UUID
	CommunityID uuid.UUID
	Title       string
}

func (p testPost) OwnerTenantID() uuid.UUID { return p.TenantID }
func (p testPost) EntityID() uuid.UUID      { return p.ID }
func (p testPost) WithOwner(id uuid.UUID) testPost {
	p.TenantID = id
	return p
}
func (p testPost) WithID(id uuid.UUID) testPost {
	p.ID = id
	return p
}
func (p testPost) Field(column string) (any, bool) {
	if column == "community_id" {
		return p.CommunityID, true
	}
	return nil, false
}

var testPosts = Table[testPost]{
	Name:    "posts",
	Columns: []string{"community_id", "title", "body", "author_id"},
	Scan: func(row pgx.Row) (testPost, error) {
		var (
			p              testPost
			body, authorID string
		)
		err := row.Scan(&p.TenantID, &p.ID, &p.CommunityID, &p.Title, &body, &authorID)
		return p, err
	},
	Values: func(p testPost) []any {
		return []any{p.CommunityID, p.Title, "", "tester"}
	},
}

type isolationEnv struct {
	pool        *pgxpool.Pool
	db          *TenantDB
	directory   *DirectoryStore
	communities *scoped.Repository[testCommunity]
	posts       *scoped.Repository[testPost]
	sink        *audit.MemorySink
}

func startIsolationEnv(t *testing.T) isolationEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("palmyra"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString, ApplicationName: "palmyra-tests"})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, BootstrapSchema(ctx, pool, testSchema, testAppRole))
	// Idempotent.
	require.NoError(t, BootstrapSchema(ctx, pool, testSchema, testAppRole))

	db := NewTenantDB(TenantDBConfig{Pool: pool, Schema: testSchema, AppRole: testAppRole})
	directory, err := NewDirectoryStore(db)
	require.NoError(t, err)

	communityStore, err := NewPGStore(db, testCommunities)
	require.NoError(t, err)
	postStore, err := NewPGStore(db, testPosts)
	require.NoError(t, err)

	sink := &audit.MemorySink{}
	return isolationEnv{
		pool:        pool,
		db:          db,
		directory:   directory,
		communities: scoped.New[testCommunity](communityStore, sink, "community", nil),
		posts:       scoped.New[testPost](postStore, sink, "post", nil),
		sink:        sink,
	}
}

func (e isolationEnv) provision(t *testing.T, name string) tenant.Context {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := e.directory.CreateTenant(ctx, tenant.Tenant{
		ID: uuid.New(), Name: name, Status: tenant.StatusActive, CreatedAt: now, UpdatedAt: now,
	}, &tenant.Membership{UserID: "user-" + name, Role: tenant.RoleOwner, CreatedAt: now})
	require.NoError(t, err)

	tc, err := tenant.NewContext(created.ID, created.Name, "user-"+name, tenant.RoleOwner)
	require.NoError(t, err)
	return tc
}

func TestPostgresIsolation(t *testing.T) {
	env := startIsolationEnv(t)
	ctx := context.Background()

	tcA := env.provision(t, "acme")
	tcB := env.provision(t, "beta")
	ctxA := tenant.WithContext(ctx, tcA)
	ctxB := tenant.WithContext(ctx, tcB)

	sharedID := uuid.New()
	a, err := env.communities.Add(ctxA, testCommunity{ID: sharedID, Name: "general", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.Equal(t, tcA.TenantID(), a.TenantID)

	t.Run("same id coexists across tenants", func(t *testing.T) {
		b, err := env.communities.Add(ctxB, testCommunity{ID: sharedID, Name: "general", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		require.Equal(t, tcB.TenantID(), b.TenantID)
	})

	t.Run("composite key collision", func(t *testing.T) {
		_, err := env.communities.Add(ctxA, testCommunity{ID: sharedID, Name: "other", CreatedAt: time.Now().UTC()})
		require.ErrorIs(t, err, scoped.ErrDuplicateKey)
	})

	t.Run("lists only own rows", func(t *testing.T) {
		items, err := env.communities.GetAll(ctxB)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, tcB.TenantID(), items[0].TenantID)
	})

	t.Run("get by id of another tenant is not found", func(t *testing.T) {
		onlyA, err := env.communities.Add(ctxA, testCommunity{Name: "private", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)

		_, err = env.communities.GetByID(ctxB, onlyA.ID)
		require.ErrorIs(t, err, scoped.ErrNotFound)
	})

	t.Run("composite foreign key rejects cross-tenant parent", func(t *testing.T) {
		onlyA, err := env.communities.Add(ctxA, testCommunity{Name: "a-only", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)

		_, err = env.posts.Add(ctxB, testPost{CommunityID: onlyA.ID, Title: "sneaky"})
		require.ErrorIs(t, err, scoped.ErrParentNotFound)

		post, err := env.posts.Add(ctxA, testPost{CommunityID: onlyA.ID, Title: "legit"})
		require.NoError(t, err)
		require.Equal(t, tcA.TenantID(), post.TenantID)
	})

	t.Run("find narrows inside the tenant only", func(t *testing.T) {
		first, err := env.communities.Add(ctxA, testCommunity{Name: "first", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		second, err := env.communities.Add(ctxA, testCommunity{Name: "second", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		_, err = env.posts.Add(ctxA, testPost{CommunityID: first.ID, Title: "one"})
		require.NoError(t, err)
		_, err = env.posts.Add(ctxA, testPost{CommunityID: second.ID, Title: "two"})
		require.NoError(t, err)

		byFirst := scoped.Cond{Column: "community_id", Value: first.ID}
		found, err := env.posts.Find(ctxA, byFirst)
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "one", found[0].Title)

		found, err = env.posts.Find(ctxB, byFirst)
		require.NoError(t, err)
		require.Empty(t, found)

		_, err = env.posts.Find(ctxA, scoped.Cond{Column: "tenant_id", Value: tcB.TenantID()})
		require.Error(t, err)
	})

	t.Run("row security fails closed without tenant setting", func(t *testing.T) {
		tx, err := env.pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx) // nolint:errcheck

		_, err = tx.Exec(ctx, `SET LOCAL ROLE `+testAppRole)
		require.NoError(t, err)

		var count int
		require.NoError(t, tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+testSchema+`.communities`).Scan(&count))
		require.Zero(t, count)
	})

	t.Run("row security filters raw queries by tenant setting", func(t *testing.T) {
		var count int
		err := env.db.WithTenant(ctx, tcB, func(tx pgx.Tx) error {
			return tx.QueryRow(ctx, `SELECT COUNT(*) FROM communities`).Scan(&count)
		})
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("row security rejects writes for another tenant", func(t *testing.T) {
		err := env.db.WithTenant(ctx, tcB, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`INSERT INTO communities (tenant_id, id, name, created_by) VALUES ($1, $2, 'smuggled', 'x')`,
				tcA.TenantID(), uuid.New())
			return err
		})
		require.ErrorIs(t, classify(err), scoped.ErrOwnershipViolation)
	})

	t.Run("tenant setting does not leak to the next transaction", func(t *testing.T) {
		require.NoError(t, env.db.WithTenant(ctx, tcA, func(tx pgx.Tx) error { return nil }))

		var setting *string
		err := env.pool.QueryRow(ctx, `SELECT NULLIF(current_setting('`+SessionTenantSetting+`', true), '')`).Scan(&setting)
		require.NoError(t, err)
		require.Nil(t, setting)
	})

	require.Empty(t, env.sink.Events())
}

func TestPostgresDirectoryAndAudit(t *testing.T) {
	env := startIsolationEnv(t)
	ctx := context.Background()

	tc := env.provision(t, "gamma")

	got, err := env.directory.Tenant(ctx, tc.TenantID())
	require.NoError(t, err)
	require.Equal(t, tenant.StatusActive, got.Status)

	_, err = env.directory.Tenant(ctx, uuid.New())
	require.ErrorIs(t, err, tenant.ErrTenantNotFound)

	m, err := env.directory.Membership(ctx, "user-gamma", tc.TenantID())
	require.NoError(t, err)
	require.Equal(t, tenant.RoleOwner, m.Role)

	_, err = env.directory.AddMembership(ctx, uuid.New(), tenant.Membership{
		TenantID: tc.TenantID(), UserID: "user-gamma", Role: tenant.RoleMember, CreatedAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, env.directory.RevokeMembership(ctx, tc.TenantID(), "user-gamma", time.Now().UTC()))
	_, err = env.directory.Membership(ctx, "user-gamma", tc.TenantID())
	require.ErrorIs(t, err, tenant.ErrNoMembership)
	require.ErrorIs(t, env.directory.RevokeMembership(ctx, tc.TenantID(), "user-gamma", time.Now().UTC()), tenant.ErrNoMembership)

	_, err = env.directory.SetTenantStatus(ctx, tc.TenantID(), tenant.StatusInactive, time.Now().UTC())
	require.NoError(t, err)
	_, err = env.directory.SetTenantStatus(ctx, tc.TenantID(), tenant.StatusActive, time.Now().UTC())
	require.ErrorIs(t, err, ErrImmutable)

	orphanID := uuid.New()
	now := time.Now().UTC()
	_, err = env.directory.CreateTenant(ctx, tenant.Tenant{
		ID: orphanID, Name: "orphan", Status: tenant.StatusActive, CreatedAt: now, UpdatedAt: now,
	}, &tenant.Membership{UserID: "user-orphan", Role: tenant.Role("superuser"), CreatedAt: now})
	require.Error(t, err)
	_, err = env.directory.Tenant(ctx, orphanID)
	require.ErrorIs(t, err, tenant.ErrTenantNotFound)

	tenants, total, err := env.directory.ListTenants(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, tenants, 1)

	store, err := NewAuditStore(env.db)
	require.NoError(t, err)

	event := audit.Event{
		PrincipalID:       "user-gamma",
		AttemptedTenantID: uuid.New(),
		ActualTenantID:    tc.TenantID(),
		ResourceType:      audit.ResourceTenant,
		ResourceID:        "x",
		Reason:            audit.ReasonTenantMismatch,
		RequestID:         "req-1",
		Timestamp:         time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Record(ctx, event))
	require.NoError(t, store.Record(ctx, audit.Event{
		PrincipalID:       "user-gamma",
		AttemptedTenantID: uuid.New(),
		ResourceType:      audit.ResourceMembership,
		ResourceID:        "y",
		Reason:            audit.ReasonMembershipNotFound,
		Timestamp:         time.Now().UTC(),
	}))

	_, err = env.pool.Exec(ctx, `DELETE FROM `+testSchema+`.cross_tenant_access_events`)
	require.NoError(t, err)
	_, err = env.pool.Exec(ctx, `UPDATE `+testSchema+`.cross_tenant_access_events SET reason = 'scrubbed'`)
	require.NoError(t, err)

	events, err := store.List(ctx, AuditQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, audit.ReasonMembershipNotFound, events[0].Reason)
	require.Equal(t, uuid.Nil, events[0].ActualTenantID)

	filtered, err := store.List(ctx, AuditQuery{AttemptedTenantID: &event.AttemptedTenantID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, event.RequestID, filtered[0].RequestID)
	require.True(t, event.Timestamp.Equal(filtered[0].Timestamp))
}
