package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
)

func TestExtractTenantID(t *testing.T) {
	tenantClaim := "0b6f2a36-0d7e-4a8b-9d7b-7f8d4a0b9c11"
	firebaseTenant := "7a0e9d6c-3f1b-4a5e-8c2d-1e9f0a7b6c54"

	testCases := []struct {
		name   string
		claims map[string]interface{}
		want   *string
	}{
		{
			name:   "top level tenantId",
			claims: map[string]interface{}{"tenantId": tenantClaim},
			want:   &tenantClaim,
		},
		{
			name: "top level wins over firebase tenant",
			claims: map[string]interface{}{
				"tenantId": tenantClaim,
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &tenantClaim,
		},
		{
			name: "firebase tenant claim",
			claims: map[string]interface{}{
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &firebaseTenant,
		},
		{
			name:   "empty tenantId",
			claims: map[string]interface{}{"tenantId": ""},
			want:   nil,
		},
		{
			name:   "non string tenantId",
			claims: map[string]interface{}{"tenantId": 42},
			want:   nil,
		},
		{
			name:   "missing tenant",
			claims: map[string]interface{}{},
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTenantID(tc.claims)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tc.want, *got)
		})
	}
}

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":            "user-123",
		"email":          "user@example.com",
		"tenantId":       "tenant-dev",
		"isAdmin":        true,
		"email_verified": true,
	})
	require.NoError(t, err)
	require.Equal(t, "user-123", creds.Subject)
	require.Equal(t, "user@example.com", creds.Email)
	require.True(t, creds.EmailVerified)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, "tenant-dev", *creds.TenantID)
}

func TestDefaultCredentialExtractorPrefersSub(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{"sub": "subject", "uid": "uid"})
	require.NoError(t, err)
	require.Equal(t, "subject", creds.Subject)
	require.Nil(t, creds.TenantID)
}

func TestDefaultCredentialExtractorMissingSubject(t *testing.T) {
	_, err := DefaultCredentialExtractor(map[string]interface{}{"tenantId": "tenant-dev"})
	require.ErrorIs(t, err, ErrMissingSubject)

	_, err = DefaultCredentialExtractor(nil)
	require.Error(t, err)
}

func TestJWTStoresCredentials(t *testing.T) {
	verify := func(_ context.Context, token string) (map[string]interface{}, error) {
		require.Equal(t, "good", token)
		return map[string]interface{}{"sub": "user-1", "tenantId": "tenant-1"}, nil
	}

	var got *UserCredentials
	h := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "tenant-1", *got.TenantID)
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	verify := func(context.Context, string) (map[string]interface{}, error) {
		return nil, errors.New("expired")
	}
	h := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, problemdetails.ContentType, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireUser(t *testing.T) {
	h := RequireUser()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Subject: "user-1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
