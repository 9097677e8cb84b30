// Package middleware resolves the tenant Context of each API request.
package middleware

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Resolver is satisfied by *tenant.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, claims tenant.Claims, explicitTenant string) (tenant.Context, error)
}

// Config controls middleware behavior.
type Config struct {
	Logger *zap.Logger
	// Registerer receives palmyra_tenant_resolutions_total. Nil skips registration.
	Registerer prometheus.Registerer
}

const outcomeResolved = "resolved"

// WithTenantContext resolves the verified credentials into a tenant Context and
// stores it on the request context. Rejections end the request before any
// handler or repository runs. The Context is built fresh for every request.
func WithTenantContext(resolver Resolver, cfg Config) (func(http.Handler) http.Handler, error) {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "palmyra",
		Name:      "tenant_resolutions_total",
		Help:      "Tenant context resolutions by outcome.",
	}, []string{"outcome"})
	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(outcomes); err != nil {
			return nil, err
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			reqLogger := platformlogging.FromRequest(r, logger)

			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok {
				outcomes.WithLabelValues("unauthenticated").Inc()
				problemdetails.Write(w, problemdetails.New("Unauthorized", "bearer token required", problemdetails.TypeUnauthorized, http.StatusUnauthorized))
				return
			}

			claims, err := tenant.ParseClaims(creds.Subject, creds.TenantID)
			if err == nil {
				var tc tenant.Context
				tc, err = resolver.Resolve(r.Context(), claims, r.Header.Get(tenant.HeaderTenantID))
				if err == nil {
					outcomes.WithLabelValues(outcomeResolved).Inc()

					ctx := tenant.WithContext(r.Context(), tc)
					ctx = platformlogging.With(ctx,
						zap.String("tenant_id", tc.TenantID().String()),
						zap.String("tenant_role", string(tc.Role())),
					)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if rej, ok := tenant.AsRejection(err); ok {
				outcomes.WithLabelValues(string(rej.Reason)).Inc()
				reqLogger.Info("tenant context rejected", zap.String("rejection_reason", string(rej.Reason)))
				problemdetails.Write(w, RejectionProblem(rej))
				return
			}

			outcomes.WithLabelValues("error").Inc()
			reqLogger.Error("resolve tenant context", zap.Error(err))
			problemdetails.Write(w, problemdetails.New("Service unavailable", "tenant directory unavailable", problemdetails.TypeUnavailable, http.StatusServiceUnavailable))
		})
	}, nil
}

// RejectionProblem maps a resolver rejection onto its HTTP problem. A missing
// claim is a client error; every other reason is forbidden.
func RejectionProblem(rej *tenant.RejectionError) problemdetails.ProblemDetails {
	switch rej.Reason {
	case tenant.ReasonTenantClaimMissing:
		return problemdetails.New("Bad request", "request carries no usable tenant claim", problemdetails.TypeValidation, http.StatusBadRequest).
			WithCode(string(rej.Reason))
	case tenant.ReasonTenantMismatch:
		return problemdetails.New("Forbidden", "tenant header does not match the authenticated tenant", problemdetails.TypeForbidden, http.StatusForbidden).
			WithCode(string(rej.Reason))
	case tenant.ReasonTenantInactive:
		return problemdetails.New("Forbidden", "tenant is not active", problemdetails.TypeForbidden, http.StatusForbidden).
			WithCode(string(rej.Reason))
	default:
		return problemdetails.New("Forbidden", "no membership in tenant", problemdetails.TypeForbidden, http.StatusForbidden).
			WithCode(string(rej.Reason))
	}
}
