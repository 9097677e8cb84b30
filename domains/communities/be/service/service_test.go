package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainrepo "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func tenantCtx(t *testing.T, tenantID uuid.UUID, principal string) context.Context {
	t.Helper()
	tc, err := tenant.NewContext(tenantID, "acme", principal, tenant.RoleMember)
	require.NoError(t, err)
	return tenant.WithContext(context.Background(), tc)
}

func newService(t *testing.T) (*service, *audit.MemorySink) {
	t.Helper()
	sink := &audit.MemorySink{}
	repo := domainrepo.NewMemoryRepository(sink, zaptest.NewLogger(t))
	svc := New(repo).(*service)
	svc.now = func() time.Time { return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) }
	return svc, sink
}

func TestServiceCreateStampsTenantAndAuthor(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	tenantID := uuid.New()
	ctx := tenantCtx(t, tenantID, "user-a")

	description := "  weekly meetups "
	created, err := svc.Create(ctx, CreateInput{Name: " Chess Club ", Description: &description})
	require.NoError(t, err)
	require.Equal(t, tenantID, created.TenantID)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Equal(t, "Chess Club", created.Name)
	require.Equal(t, "weekly meetups", created.Description)
	require.Equal(t, "user-a", created.CreatedBy)
	require.Equal(t, svc.now(), created.CreatedAt)
}

func TestServiceCreateWithoutTenant(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateInput{Name: "Chess"})
	require.ErrorIs(t, err, tenant.ErrUnresolved)
}

func TestServiceCreateValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := tenantCtx(t, uuid.New(), "user-a")

	_, err := svc.Create(ctx, CreateInput{Name: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
}

func TestServiceCreateRejectsDuplicateNameWithinTenant(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctxA := tenantCtx(t, uuid.New(), "user-a")
	ctxB := tenantCtx(t, uuid.New(), "user-b")

	_, err := svc.Create(ctxA, CreateInput{Name: "Chess"})
	require.NoError(t, err)

	_, err = svc.Create(ctxA, CreateInput{Name: "chess"})
	require.ErrorIs(t, err, ErrConflict)

	// Another tenant may reuse the name.
	_, err = svc.Create(ctxB, CreateInput{Name: "Chess"})
	require.NoError(t, err)
}

func TestServiceGetIsTenantScoped(t *testing.T) {
	t.Parallel()

	svc, sink := newService(t)
	ctxA := tenantCtx(t, uuid.New(), "user-a")
	ctxB := tenantCtx(t, uuid.New(), "user-b")

	created, err := svc.Create(ctxA, CreateInput{Name: "Chess"})
	require.NoError(t, err)

	_, err = svc.Get(ctxB, created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	listB, err := svc.List(ctxB)
	require.NoError(t, err)
	require.Empty(t, listB)

	listA, err := svc.List(ctxA)
	require.NoError(t, err)
	require.Len(t, listA, 1)

	require.Empty(t, sink.Events())
}

func TestServiceUpdate(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := tenantCtx(t, uuid.New(), "user-a")

	created, err := svc.Create(ctx, CreateInput{Name: "Chess"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2025, time.March, 4, 9, 0, 0, 0, time.UTC) }
	name := "Chess & Go"
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Chess & Go", updated.Name)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	_, err = svc.Update(ctx, created.ID, UpdateInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, uuid.New(), UpdateInput{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceDeleteFromOtherTenantIsNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctxA := tenantCtx(t, uuid.New(), "user-a")
	ctxB := tenantCtx(t, uuid.New(), "user-b")

	created, err := svc.Create(ctxA, CreateInput{Name: "Chess"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctxB, created.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctxA, created.ID))
	require.ErrorIs(t, svc.Delete(ctxA, created.ID), ErrNotFound)
}

func TestTranslateKeepsOwnershipViolation(t *testing.T) {
	t.Parallel()

	verr := &scoped.OwnershipError{Op: "update", ResourceType: domainrepo.ResourceType}
	require.ErrorIs(t, translate(verr), scoped.ErrOwnershipViolation)
	require.ErrorIs(t, translate(scoped.ErrNotFound), ErrNotFound)
	require.ErrorIs(t, translate(scoped.ErrDuplicateKey), ErrConflict)
}
