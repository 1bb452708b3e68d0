package tenantcmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/infofluencer/infofluencer/apps/cli/cmd/clienv"
	tenantsservice "github.com/infofluencer/infofluencer/domains/tenants/be/service"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Command groups tenant administration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (list, delete)",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(deleteCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var (
		kindRaw  string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tenantsservice.ListOptions{Page: page, PageSize: pageSize}
			if kindRaw != "" {
				kind, ok := tenant.ParseKind(kindRaw)
				if !ok {
					return fmt.Errorf("invalid kind %q (use company or influencer)", kindRaw)
				}
				opts.Kind = &kind
			}

			cfg, err := clienv.FromCommand(cmd)
			if err != nil {
				return err
			}
			rt, err := clienv.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.TenantService()
			if err != nil {
				return err
			}
			res, err := svc.List(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}
			return printTenants(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&kindRaw, "kind", "", "Filter by kind (company, influencer)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", tenantsservice.DefaultPageSize, "Page size")

	return cmd
}

func deleteCommand() *cobra.Command {
	var (
		tenantRaw string
		confirm   bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a tenant with its owner, connections and reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantRaw)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			if !confirm {
				return errors.New("refusing to delete without --yes")
			}

			cfg, err := clienv.FromCommand(cmd)
			if err != nil {
				return err
			}
			rt, err := clienv.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.TenantService()
			if err != nil {
				return err
			}
			ctx := requesttrace.IntoContext(cmd.Context(), requesttrace.System("cli"))
			if err := svc.Delete(ctx, id); err != nil {
				if errors.Is(err, tenantsservice.ErrNotFound) {
					return fmt.Errorf("tenant %s not found", id)
				}
				return fmt.Errorf("delete tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deleted.\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantRaw, "tenant", "", "Tenant id")
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func printTenants(w io.Writer, res tenantsservice.ListResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tOWNER\tPREFIX\tCREATED")
	for _, t := range res.Tenants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Kind, t.OwnerEmail, t.BasePrefix, t.CreatedAt.Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d/%d (%d tenants)\n", res.Page, res.TotalPages, res.TotalItems)
	return err
}
