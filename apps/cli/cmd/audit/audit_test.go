package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformaudit "github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

type fakeLister struct {
	events []platformaudit.Event
	err    error
	got    persistence.AuditQuery
}

func (f *fakeLister) List(_ context.Context, q persistence.AuditQuery) ([]platformaudit.Event, error) {
	f.got = q
	return f.events, f.err
}

func run(t *testing.T, lister *fakeLister, args ...string) (string, error) {
	t.Helper()
	cmd := Command(func(context.Context) (Lister, func(), error) { return lister, func() {}, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"list"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListPrintsEvents(t *testing.T) {
	attempted := uuid.New()
	actual := uuid.New()
	lister := &fakeLister{events: []platformaudit.Event{{
		PrincipalID:       "user-1",
		AttemptedTenantID: attempted,
		ActualTenantID:    actual,
		ResourceType:      "tenant",
		ResourceID:        attempted.String(),
		Reason:            platformaudit.ReasonTenantMismatch,
		RequestID:         "req-1",
		Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}

	out, err := run(t, lister, "--tenant-id", attempted.String(), "--limit", "5")
	require.NoError(t, err)
	require.Contains(t, out, "2026-01-02T03:04:05Z")
	require.Contains(t, out, "user-1")
	require.Contains(t, out, actual.String())
	require.Contains(t, out, string(platformaudit.ReasonTenantMismatch))
	require.Contains(t, out, "req-1")

	require.Equal(t, 5, lister.got.Limit)
	require.NotNil(t, lister.got.AttemptedTenantID)
	require.Equal(t, attempted, *lister.got.AttemptedTenantID)
}

func TestListRejectsMalformedTenant(t *testing.T) {
	_, err := run(t, &fakeLister{}, "--tenant-id", "acme")
	require.ErrorContains(t, err, "invalid --tenant-id")
}

func TestListPropagatesStoreErrors(t *testing.T) {
	_, err := run(t, &fakeLister{err: errors.New("boom")})
	require.ErrorContains(t, err, "list audit events: boom")
}
