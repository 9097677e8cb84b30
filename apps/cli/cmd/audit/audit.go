package audit

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	platformaudit "github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Lister reads the persisted cross-tenant access trail.
type Lister interface {
	List(ctx context.Context, q persistence.AuditQuery) ([]platformaudit.Event, error)
}

// Opener returns a Lister and a release func.
type Opener func(ctx context.Context) (Lister, func(), error)

// Command groups audit trail helpers.
func Command(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the cross-tenant access trail",
	}
	cmd.AddCommand(listCommand(open))
	return cmd
}

func listCommand(open Opener) *cobra.Command {
	var (
		tenantID string
		limit    int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List recent cross-tenant access events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := persistence.AuditQuery{Limit: limit}
			if tenantID != "" {
				id, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid --tenant-id: %w", err)
				}
				q.AttemptedTenantID = &id
			}

			lister, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			events, err := lister.List(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list audit events: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPRINCIPAL\tATTEMPTED\tACTUAL\tRESOURCE\tREASON\tREQUEST")
			for _, e := range events {
				actual := "-"
				if e.ActualTenantID != uuid.Nil {
					actual = e.ActualTenantID.String()
				}
				resource := e.ResourceType
				if e.ResourceID != "" {
					resource += "/" + e.ResourceID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.UTC().Format(time.RFC3339), e.PrincipalID, e.AttemptedTenantID, actual,
					resource, e.Reason, orDash(e.RequestID))
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&tenantID, "tenant-id", "", "only events that targeted this tenant")
	c.Flags().IntVar(&limit, "limit", 100, "maximum number of events (1-1000)")
	return c
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
