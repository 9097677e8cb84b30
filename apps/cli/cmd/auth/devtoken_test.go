package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

func runDevToken(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"devtoken"}, args...))
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestDevTokenCarriesTenantClaim(t *testing.T) {
	tenantID := uuid.NewString()

	token, err := runDevToken(t,
		"--project-id", "palmyra-dev",
		"--tenant-id", tenantID,
		"--user-id", "user-1",
		"--email", "user-1@example.com",
	)
	require.NoError(t, err)

	claims, err := platformauth.UnsignedTokenVerifier()(context.Background(), token)
	require.NoError(t, err)
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "user-1", creds.Subject)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, tenantID, *creds.TenantID)
}

func TestDevTokenRejectsNonUUIDTenant(t *testing.T) {
	_, err := runDevToken(t,
		"--project-id", "palmyra-dev",
		"--tenant-id", "acme",
		"--user-id", "user-1",
		"--email", "user-1@example.com",
	)
	require.ErrorContains(t, err, "tenantID must be a UUID")
}
