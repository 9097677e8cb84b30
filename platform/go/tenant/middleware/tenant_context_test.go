package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type fixture struct {
	dir     *tenant.MemoryDirectory
	sink    *audit.MemorySink
	reg     *prometheus.Registry
	handler http.Handler
	t1, t2  uuid.UUID
	seen    *tenant.Context
}

func newFixture(t *testing.T, resolver Resolver) *fixture {
	t.Helper()

	f := &fixture{
		dir:  tenant.NewMemoryDirectory(),
		sink: &audit.MemorySink{},
		reg:  prometheus.NewRegistry(),
		t1:   uuid.New(),
		t2:   uuid.New(),
	}
	f.dir.PutTenant(tenant.Tenant{ID: f.t1, Name: "Acme", Status: tenant.StatusActive})
	f.dir.PutTenant(tenant.Tenant{ID: f.t2, Name: "Beta", Status: tenant.StatusSuspended})
	f.dir.PutMembership(tenant.Membership{TenantID: f.t1, UserID: "user-1", Role: tenant.RoleAdmin, Active: true})
	f.dir.PutMembership(tenant.Membership{TenantID: f.t2, UserID: "user-1", Role: tenant.RoleAdmin, Active: true})

	if resolver == nil {
		resolver = tenant.NewResolver(f.dir, f.sink, zaptest.NewLogger(t))
	}

	mw, err := WithTenantContext(resolver, Config{Logger: zaptest.NewLogger(t), Registerer: f.reg})
	require.NoError(t, err)

	f.handler = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := tenant.Require(r.Context())
		require.NoError(t, err)
		f.seen = &tc
		w.WriteHeader(http.StatusNoContent)
	}))
	return f
}

func (f *fixture) serve(creds *platformauth.UserCredentials, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/communities", nil)
	if header != "" {
		req.Header.Set(tenant.HeaderTenantID, header)
	}
	if creds != nil {
		req = req.WithContext(platformauth.WithUser(req.Context(), creds))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func credsFor(subject string, tenantID *uuid.UUID) *platformauth.UserCredentials {
	creds := &platformauth.UserCredentials{Subject: subject}
	if tenantID != nil {
		raw := tenantID.String()
		creds.TenantID = &raw
	}
	return creds
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problemdetails.ProblemDetails {
	t.Helper()
	require.Equal(t, problemdetails.ContentType, rec.Header().Get("Content-Type"))
	var p problemdetails.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestResolvedContextReachesHandler(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.serve(credsFor("user-1", &f.t1), "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, f.seen)
	require.Equal(t, f.t1, f.seen.TenantID())
	require.Equal(t, tenant.RoleAdmin, f.seen.Role())
	require.Equal(t, 1.0, counterValue(t, f.reg, outcomeResolved))
}

func TestRejections(t *testing.T) {
	cases := []struct {
		name    string
		creds   func(f *fixture) *platformauth.UserCredentials
		header  func(f *fixture) string
		status  int
		code    string
		audited int
	}{
		{
			name:   "claim missing",
			creds:  func(f *fixture) *platformauth.UserCredentials { return credsFor("user-1", nil) },
			status: http.StatusBadRequest,
			code:   string(tenant.ReasonTenantClaimMissing),
		},
		{
			name:    "header mismatch",
			creds:   func(f *fixture) *platformauth.UserCredentials { return credsFor("user-1", &f.t1) },
			header:  func(f *fixture) string { return f.t2.String() },
			status:  http.StatusForbidden,
			code:    string(tenant.ReasonTenantMismatch),
			audited: 1,
		},
		{
			name:   "suspended tenant",
			creds:  func(f *fixture) *platformauth.UserCredentials { return credsFor("user-1", &f.t2) },
			status: http.StatusForbidden,
			code:   string(tenant.ReasonTenantInactive),
		},
		{
			name:    "no membership",
			creds:   func(f *fixture) *platformauth.UserCredentials { return credsFor("user-2", &f.t1) },
			status:  http.StatusForbidden,
			code:    string(tenant.ReasonMembershipNotFound),
			audited: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			header := ""
			if tc.header != nil {
				header = tc.header(f)
			}

			rec := f.serve(tc.creds(f), header)

			require.Equal(t, tc.status, rec.Code)
			require.Nil(t, f.seen)
			p := decodeProblem(t, rec)
			require.NotNil(t, p.Code)
			require.Equal(t, tc.code, *p.Code)
			require.Len(t, f.sink.Events(), tc.audited)
			require.Equal(t, 1.0, counterValue(t, f.reg, tc.code))
		})
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.serve(nil, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Nil(t, f.seen)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, tenant.Claims, string) (tenant.Context, error) {
	return tenant.Context{}, errors.New("connection refused")
}

func TestDirectoryFailureIsNotARejection(t *testing.T) {
	f := newFixture(t, failingResolver{})

	rec := f.serve(credsFor("user-1", &f.t1), "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Nil(t, f.seen)
	require.Empty(t, f.sink.Events())
}

func TestConcurrentRequestsKeepTheirOwnTenant(t *testing.T) {
	f := newFixture(t, nil)
	t3 := uuid.New()
	f.dir.PutTenant(tenant.Tenant{ID: t3, Name: "Gamma", Status: tenant.StatusActive})
	f.dir.PutMembership(tenant.Membership{TenantID: t3, UserID: "user-3", Role: tenant.RoleMember, Active: true})

	mw, err := WithTenantContext(tenant.NewResolver(f.dir, f.sink, zaptest.NewLogger(t)), Config{})
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := tenant.Require(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(tc.TenantID().String()))
	}))

	type result struct{ want, got string }
	results := make(chan result, 100)
	for i := 0; i < 100; i++ {
		creds, want := credsFor("user-1", &f.t1), f.t1
		if i%2 == 1 {
			creds, want = credsFor("user-3", &t3), t3
		}
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(platformauth.WithUser(req.Context(), creds))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			results <- result{want: want.String(), got: rec.Body.String()}
		}()
	}
	for i := 0; i < 100; i++ {
		r := <-results
		require.Equal(t, r.want, r.got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "palmyra_tenant_resolutions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
