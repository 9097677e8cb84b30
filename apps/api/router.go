package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/middleware"
)

// routes is implemented by the domain handlers.
type routes interface {
	Routes(r chi.Router)
}

type routerDeps struct {
	logger         *zap.Logger
	requestTimeout time.Duration
	registry       *prometheus.Registry
	authenticate   func(http.Handler) http.Handler
	resolver       tenantmiddleware.Resolver
	spec           *openapi3.T
	communities    routes
	posts          routes
	ready          func(ctx context.Context) error
}

// newRouter assembles the HTTP pipeline. Everything under /api/v1 runs with a
// resolved tenant Context; nothing there is reachable without one.
func newRouter(deps routerDeps) (http.Handler, error) {
	if deps.requestTimeout <= 0 {
		deps.requestTimeout = 15 * time.Second
	}

	tenantContext, err := tenantmiddleware.WithTenantContext(deps.resolver, tenantmiddleware.Config{
		Logger:     deps.logger,
		Registerer: deps.registry,
	})
	if err != nil {
		return nil, err
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(deps.requestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(deps.logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyHandler(deps.ready, deps.logger))
	rootRouter.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	registerDocsRoutes(rootRouter, deps.spec, deps.logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(deps.authenticate)
	apiRouter.Use(platformauth.RequireUser())
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(tenantContext)
	apiRouter.Use(platformmiddleware.SpecValidator(deps.spec))

	apiRouter.Get("/tenant", currentTenant)
	deps.communities.Routes(apiRouter)
	deps.posts.Routes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)
	return rootRouter, nil
}

type tenantContextBody struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	PrincipalID string `json:"principalId"`
	Role        string `json:"role"`
}

// currentTenant echoes the resolved tenant Context of the caller.
func currentTenant(w http.ResponseWriter, r *http.Request) {
	tc, err := tenant.Require(r.Context())
	if err != nil {
		problemdetails.Write(w, problemdetails.New("Forbidden", "no tenant context for this request", problemdetails.TypeForbidden, http.StatusForbidden))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tenantContextBody{
		TenantID:    tc.TenantID().String(),
		TenantName:  tc.TenantName(),
		PrincipalID: tc.PrincipalID(),
		Role:        string(tc.Role()),
	})
}

func readyHandler(ready func(ctx context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			}
			problemdetails.Write(w, problemdetails.New("Service unavailable", "database not reachable", problemdetails.TypeUnavailable, http.StatusServiceUnavailable))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
