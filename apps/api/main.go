package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
	communitieshandler "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/handler"
	communitiesrepo "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/repo"
	communitiesservice "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/service"
	postshandler "github.com/zenGate-Global/palmyra-tenancy/domains/posts/be/handler"
	postsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/posts/be/repo"
	postsservice "github.com/zenGate-Global/palmyra-tenancy/domains/posts/be/service"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type config struct {
	Port               string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL        string        `env:"DATABASE_URL,required"`
	DBSchema           string        `env:"DB_SCHEMA" envDefault:"palmyra"`
	DBAppRole          string        `env:"DB_APP_ROLE" envDefault:"palmyra_app"`
	AuthProvider       string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseProjectID  string        `env:"FIREBASE_PROJECT_ID"`
	FirebaseConfig     string        `env:"FIREBASE_CONFIG"` // service account file; ADC when empty
	DirectoryCacheTTL  time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"30s"`
	DirectoryCacheSize int           `env:"DIRECTORY_CACHE_SIZE" envDefault:"1024"`
	AuditSink          string        `env:"AUDIT_SINK" envDefault:"both"` // log | db | both
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		ApplicationName: "palmyra-api",
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:    pool,
		Schema:  cfg.DBSchema,
		AppRole: cfg.DBAppRole,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		persistence.NewPoolCollector(pool),
	)

	sink, err := buildAuditSink(cfg, tenantDB, registry, logger)
	if err != nil {
		logger.Fatal("init audit sink", zap.Error(err))
	}

	directoryStore, err := tenantsrepo.NewPostgresRepository(tenantDB)
	if err != nil {
		logger.Fatal("init tenant directory", zap.Error(err))
	}
	directory := tenant.NewCachedDirectory(directoryStore, tenant.CacheConfig{
		Size: cfg.DirectoryCacheSize,
		TTL:  cfg.DirectoryCacheTTL,
	})
	resolver := tenant.NewResolver(directory, sink, logger)

	communityRepo, err := communitiesrepo.NewPostgresRepository(tenantDB, sink, logger)
	if err != nil {
		logger.Fatal("init communities repository", zap.Error(err))
	}
	postRepo, err := postsrepo.NewPostgresRepository(tenantDB, sink, logger)
	if err != nil {
		logger.Fatal("init posts repository", zap.Error(err))
	}

	spec, err := contracts.Load(ctx)
	if err != nil {
		logger.Fatal("load openapi contract", zap.Error(err))
	}

	router, err := newRouter(routerDeps{
		logger:         logger,
		requestTimeout: cfg.RequestTimeout,
		registry:       registry,
		authenticate:   buildAuthMiddleware(ctx, cfg, logger),
		resolver:       resolver,
		spec:           spec,
		communities:    communitieshandler.New(communitiesservice.New(communityRepo), logger),
		posts:          postshandler.New(postsservice.New(postRepo, communityRepo), logger),
		ready:          persistence.PoolReady(pool),
	})
	if err != nil {
		logger.Fatal("build router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildAuditSink assembles the cross-tenant access sink chain. Every chain is
// counted on the registry.
func buildAuditSink(cfg config, db *persistence.TenantDB, reg prometheus.Registerer, logger *zap.Logger) (audit.Sink, error) {
	var sinks []audit.Sink
	switch cfg.AuditSink {
	case "log":
		sinks = append(sinks, audit.NewLogSink(logger))
	case "db", "both":
		store, err := persistence.NewAuditStore(db)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
		if cfg.AuditSink == "both" {
			sinks = append(sinks, audit.NewLogSink(logger))
		}
	default:
		return nil, errors.New("AUDIT_SINK must be log, db or both")
	}
	return audit.NewInstrumentedSink(audit.Multi(sinks...), reg)
}
