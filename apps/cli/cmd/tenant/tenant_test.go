package tenantcmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type harness struct {
	svc      *tenantsservice.Service
	released int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{svc: tenantsservice.New(tenantsrepo.NewMemoryRepository(), nil, zaptest.NewLogger(t))}
}

func (h *harness) open(context.Context) (Service, func(), error) {
	return h.svc, func() { h.released++ }, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := Command(h.open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) provision(t *testing.T, name string) tenant.Tenant {
	t.Helper()
	created, err := h.svc.Provision(context.Background(), tenantsservice.ProvisionInput{Name: name})
	require.NoError(t, err)
	return created
}

func TestCreateTenant(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "create", "--name", "Acme", "--owner", "user-1")
	require.NoError(t, err)
	require.Contains(t, out, "name:\tAcme")
	require.Contains(t, out, "status:\tactive")
	require.Contains(t, out, "owner:\tuser-1")
	require.Equal(t, 1, h.released)

	res, err := h.svc.List(context.Background(), tenantsservice.ListOptions{})
	require.NoError(t, err)
	require.Len(t, res.Tenants, 1)

	members, err := h.svc.Members(context.Background(), res.Tenants[0].ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, tenant.RoleOwner, members[0].Role)
}

func TestCreateTenantRequiresName(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "create")
	require.ErrorContains(t, err, `required flag(s) "name" not set`)
	require.Zero(t, h.released)
}

func TestStatusTransitions(t *testing.T) {
	h := newHarness(t)
	created := h.provision(t, "Acme")

	out, err := h.run(t, "suspend", created.ID.String())
	require.NoError(t, err)
	require.Contains(t, out, "status:\tsuspended")

	out, err = h.run(t, "activate", created.ID.String())
	require.NoError(t, err)
	require.Contains(t, out, "status:\tactive")

	out, err = h.run(t, "deactivate", created.ID.String())
	require.NoError(t, err)
	require.Contains(t, out, "status:\tinactive")

	_, err = h.run(t, "activate", created.ID.String())
	require.ErrorIs(t, err, tenantsservice.ErrTenantImmutable)
}

func TestStatusCommandRejectsMalformedID(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "suspend", "not-a-uuid")
	require.ErrorContains(t, err, "invalid tenant id")
	require.Zero(t, h.released)
}

func TestGetUnknownTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "get", uuid.NewString())
	require.ErrorIs(t, err, tenantsservice.ErrNotFound)
}

func TestListTenantsFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	active := h.provision(t, "Acme")
	suspended := h.provision(t, "Beta")
	_, err := h.svc.Suspend(context.Background(), suspended.ID)
	require.NoError(t, err)

	out, err := h.run(t, "list", "--status", "active")
	require.NoError(t, err)
	require.Contains(t, out, active.ID.String())
	require.NotContains(t, out, suspended.ID.String())
	require.Contains(t, out, "(1 tenants)")

	_, err = h.run(t, "list", "--status", "paused")
	require.ErrorContains(t, err, "invalid --status")
}

func TestMemberLifecycle(t *testing.T) {
	h := newHarness(t)
	created := h.provision(t, "Acme")
	id := created.ID.String()

	out, err := h.run(t, "member", "add", id, "--user-id", "user-2", "--role", "admin")
	require.NoError(t, err)
	require.Contains(t, out, "added user-2 to "+id+" as admin")

	_, err = h.run(t, "member", "add", id, "--user-id", "user-2")
	require.ErrorIs(t, err, tenantsservice.ErrMembershipExists)

	out, err = h.run(t, "member", "list", id)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "user-2")
	require.Contains(t, lines[1], "admin")

	_, err = h.run(t, "member", "revoke", id, "--user-id", "user-2")
	require.NoError(t, err)

	out, err = h.run(t, "member", "list", id)
	require.NoError(t, err)
	require.NotContains(t, out, "user-2")
}

func TestMemberAddRejectsUnknownRole(t *testing.T) {
	h := newHarness(t)
	created := h.provision(t, "Acme")

	_, err := h.run(t, "member", "add", created.ID.String(), "--user-id", "user-2", "--role", "superuser")
	require.ErrorContains(t, err, "invalid --role")
	require.Zero(t, h.released)
}
