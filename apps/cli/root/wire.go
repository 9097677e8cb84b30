package root

import (
	"context"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/audit"
	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/tenant"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command(applySchema))
	Root().AddCommand(tenantcmd.Command(openTenants))
	Root().AddCommand(audit.Command(openAudit))
}

func applySchema(ctx context.Context) (bootstrap.Result, error) {
	conn, err := connect(ctx)
	if err != nil {
		return bootstrap.Result{}, err
	}
	defer conn.Close()

	if err := persistence.BootstrapSchema(ctx, conn.pool, opts.Schema, opts.AppRole); err != nil {
		return bootstrap.Result{}, err
	}
	return bootstrap.Result{Schema: opts.Schema, AppRole: opts.AppRole}, nil
}

// openTenants builds the registry service without a directory cache. Running
// API processes observe changes once their cached entries expire.
func openTenants(ctx context.Context) (tenantcmd.Service, func(), error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	conn, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	repo, err := tenantsrepo.NewPostgresRepository(conn.db)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	release := func() {
		_ = logger.Sync()
		conn.Close()
	}
	return tenantsservice.New(repo, nil, logger), release, nil
}

func openAudit(ctx context.Context) (audit.Lister, func(), error) {
	conn, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewAuditStore(conn.db)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return store, conn.Close, nil
}
