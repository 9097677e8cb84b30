package root

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Options are the connection settings shared by every database command.
// Environment variables provide the defaults and flags override them.
type Options struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Schema      string `env:"DB_SCHEMA" envDefault:"palmyra"`
	AppRole     string `env:"DB_APP_ROLE" envDefault:"palmyra_app"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

var opts Options

// rootCmd is the base command for the Palmyra admin CLI.
var rootCmd = &cobra.Command{
	Use:           "palmyra",
	Short:         "Palmyra admin CLI",
	Long:          "Administrative utilities for Palmyra (schema bootstrap, tenant lifecycle, memberships, audit trail, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	if err := env.Parse(&opts); err != nil {
		// Defaults stay in place; flag parsing reports anything still missing.
		opts = Options{Schema: "palmyra", AppRole: "palmyra_app", LogLevel: "info"}
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.DatabaseURL, "database-url", opts.DatabaseURL, "Postgres connection string (env DATABASE_URL)")
	flags.StringVar(&opts.Schema, "schema", opts.Schema, "schema holding the directory and tenant-owned tables (env DB_SCHEMA)")
	flags.StringVar(&opts.AppRole, "app-role", opts.AppRole, "role assumed for tenant-scoped work (env DB_APP_ROLE)")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "structured log level written to stderr (env LOG_LEVEL)")
}

// Execute runs the CLI until it completes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

// connection is an open pool plus the tenant-aware wrapper over it.
type connection struct {
	pool *pgxpool.Pool
	db   *persistence.TenantDB
}

func (c connection) Close() {
	persistence.ClosePool(c.pool)
}

func connect(ctx context.Context) (connection, error) {
	if opts.DatabaseURL == "" {
		return connection{}, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	if err := persistence.ValidateIdentifier("schema", opts.Schema); err != nil {
		return connection{}, err
	}
	if err := persistence.ValidateIdentifier("app role", opts.AppRole); err != nil {
		return connection{}, err
	}
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      opts.DatabaseURL,
		ApplicationName: "palmyra-cli",
	})
	if err != nil {
		return connection{}, fmt.Errorf("init pool: %w", err)
	}
	db := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:    pool,
		Schema:  opts.Schema,
		AppRole: opts.AppRole,
	})
	return connection{pool: pool, db: db}, nil
}

func newLogger() (*zap.Logger, error) {
	return platformlogging.NewLogger(platformlogging.Config{
		Component: "palmyra-cli",
		Level:     opts.LogLevel,
		Output:    os.Stderr,
	})
}
