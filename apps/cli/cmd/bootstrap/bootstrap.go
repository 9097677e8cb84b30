package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Result describes what the bootstrap applied.
type Result struct {
	Schema  string
	AppRole string
}

// Applier creates the schema, the application role, the tables and the
// row-level security policies. It must be idempotent.
type Applier func(ctx context.Context) (Result, error)

// Command groups bootstrap helpers.
func Command(apply Applier) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources",
		Long:  "Bootstrap platform resources such as the shared schema, the application role and tenant isolation policies.",
	}

	cmd.AddCommand(schemaCommand(apply))
	return cmd
}

func schemaCommand(apply Applier) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or update the directory, audit and tenant-owned tables with RLS enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apply(cmd.Context())
			if err != nil {
				return fmt.Errorf("bootstrap schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %q ready; tenant work runs as role %q\n", res.Schema, res.AppRole)
			return nil
		},
	}
}
