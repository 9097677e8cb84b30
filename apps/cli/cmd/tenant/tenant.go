package tenantcmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Service is the subset of the tenant registry the CLI drives.
type Service interface {
	Provision(ctx context.Context, input tenantsservice.ProvisionInput) (tenant.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	List(ctx context.Context, opts tenantsservice.ListOptions) (tenantsservice.ListResult, error)
	Suspend(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	Activate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	Deactivate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	AddMember(ctx context.Context, tenantID uuid.UUID, userID string, role tenant.Role) (tenant.Membership, error)
	RevokeMember(ctx context.Context, tenantID uuid.UUID, userID string) error
	Members(ctx context.Context, tenantID uuid.UUID) ([]tenant.Membership, error)
}

// Opener returns a Service and a release func.
type Opener func(ctx context.Context) (Service, func(), error)

// Command groups tenant lifecycle and membership helpers.
func Command(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle and membership administration",
	}

	cmd.AddCommand(
		createCommand(open),
		getCommand(open),
		listCommand(open),
		statusCommand(open, "suspend", "Suspend a tenant; its members are rejected until it is reactivated",
			func(s Service) func(context.Context, uuid.UUID) (tenant.Tenant, error) { return s.Suspend }),
		statusCommand(open, "activate", "Reactivate a suspended tenant",
			func(s Service) func(context.Context, uuid.UUID) (tenant.Tenant, error) { return s.Activate }),
		statusCommand(open, "deactivate", "Deactivate a tenant permanently",
			func(s Service) func(context.Context, uuid.UUID) (tenant.Tenant, error) { return s.Deactivate }),
		memberCommand(open),
	)
	return cmd
}

func createCommand(open Opener) *cobra.Command {
	var input tenantsservice.ProvisionInput

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a new active tenant, optionally with an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				t, err := svc.Provision(ctx, input)
				if err != nil {
					return fmt.Errorf("create tenant: %w", err)
				}
				printTenant(cmd.OutOrStdout(), t)
				if input.OwnerID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "owner:\t%s\n", input.OwnerID)
				}
				return nil
			})
		},
	}

	c.Flags().StringVar(&input.Name, "name", "", "tenant display name")
	c.Flags().StringVar(&input.OwnerID, "owner", "", "principal id granted the owner role")
	_ = c.MarkFlagRequired("name")
	return c
}

func getCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				t, err := svc.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("get tenant: %w", err)
				}
				printTenant(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
}

func listCommand(open Opener) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tenantsservice.ListOptions{Page: page, PageSize: pageSize}
			if status != "" {
				s := tenant.Status(status)
				if !s.Valid() {
					return fmt.Errorf("invalid --status %q (active, suspended, inactive)", status)
				}
				opts.Status = &s
			}

			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				res, err := svc.List(ctx, opts)
				if err != nil {
					return fmt.Errorf("list tenants: %w", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCREATED")
				for _, t := range res.Tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, t.CreatedAt.UTC().Format(time.RFC3339))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d (%d tenants)\n", res.Page, res.TotalPages, res.TotalItems)
				return nil
			})
		},
	}

	c.Flags().StringVar(&status, "status", "", "filter by status")
	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return c
}

func statusCommand(open Opener, use, short string, pick func(Service) func(context.Context, uuid.UUID) (tenant.Tenant, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				t, err := pick(svc)(ctx, id)
				if err != nil {
					return fmt.Errorf("%s tenant: %w", use, err)
				}
				printTenant(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
}

func memberCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage tenant memberships",
	}
	cmd.AddCommand(memberAddCommand(open), memberRevokeCommand(open), memberListCommand(open))
	return cmd
}

func memberAddCommand(open Opener) *cobra.Command {
	var (
		userID string
		role   string
	)

	c := &cobra.Command{
		Use:   "add <tenant-id>",
		Short: "Grant a principal access to a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			r := tenant.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid --role %q (owner, admin, member)", role)
			}
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				m, err := svc.AddMember(ctx, id, userID, r)
				if err != nil {
					return fmt.Errorf("add member: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s as %s\n", m.UserID, m.TenantID, m.Role)
				return nil
			})
		},
	}

	c.Flags().StringVar(&userID, "user-id", "", "principal id")
	c.Flags().StringVar(&role, "role", string(tenant.RoleMember), "owner, admin or member")
	_ = c.MarkFlagRequired("user-id")
	return c
}

func memberRevokeCommand(open Opener) *cobra.Command {
	var userID string

	c := &cobra.Command{
		Use:   "revoke <tenant-id>",
		Short: "Revoke a principal's access to a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				if err := svc.RevokeMember(ctx, id, userID); err != nil {
					return fmt.Errorf("revoke member: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %s\n", userID, id)
				return nil
			})
		},
	}

	c.Flags().StringVar(&userID, "user-id", "", "principal id")
	_ = c.MarkFlagRequired("user-id")
	return c
}

func memberListCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant-id>",
		Short: "List active memberships of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, open, func(ctx context.Context, svc Service) error {
				members, err := svc.Members(ctx, id)
				if err != nil {
					return fmt.Errorf("list members: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tROLE\tSINCE")
				for _, m := range members {
					fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, m.Role, m.CreatedAt.UTC().Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func withService(cmd *cobra.Command, open Opener, fn func(ctx context.Context, svc Service) error) error {
	ctx := cmd.Context()
	svc, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, svc)
}

func parseTenantID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", raw, err)
	}
	return id, nil
}

func printTenant(w io.Writer, t tenant.Tenant) {
	fmt.Fprintf(w, "id:\t%s\nname:\t%s\nstatus:\t%s\n", t.ID, t.Name, t.Status)
}
