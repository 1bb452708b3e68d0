package reports

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/apps/cli/cmd/clienv"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Command groups report maintenance helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Report utilities (fetch)",
	}

	cmd.AddCommand(fetchCommand())
	return cmd
}

func fetchCommand() *cobra.Command {
	var (
		tenantRaw   string
		providerRaw string
		reportName  string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch reports from a provider for one tenant",
		Long:  "Fetch one report type, or every type the provider offers, using the tenant's stored credentials.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := requesttrace.IntoContext(cmd.Context(), requesttrace.System("cli"))

			tenantID, err := uuid.Parse(tenantRaw)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			provider, err := report.ParseProvider(providerRaw)
			if err != nil {
				return err
			}
			var single *report.Type
			if reportName != "" {
				t, err := report.Parse(provider, reportName)
				if err != nil {
					return err
				}
				single = &t
			}

			cfg, err := clienv.FromCommand(cmd)
			if err != nil {
				return err
			}
			rt, err := clienv.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			role, err := resolveRole(cmd, rt, tenantID)
			if err != nil {
				return err
			}

			svc, err := rt.ReportService(ctx)
			if err != nil {
				return err
			}

			if single != nil {
				res, err := svc.Fetch(ctx, role, *single)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", single.String(), err)
				}
				return writeSummary(cmd.OutOrStdout(), report.FetchSummary{
					Provider: provider,
					Results:  []report.FetchResult{{ReportType: res.Type.Name(), Rows: len(res.Rows)}},
				})
			}

			summary, err := svc.FetchAll(ctx, role, provider)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", provider, err)
			}
			if err := writeSummary(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if failed := summary.Failed(); failed > 0 {
				rt.Logger.Warn("bulk fetch finished with failures",
					zap.String("tenant_id", tenantID.String()),
					zap.String("provider", string(provider)),
					zap.Int("failed", failed))
				return fmt.Errorf("%d of %d reports failed", failed, len(summary.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantRaw, "tenant", "", "Tenant id")
	cmd.Flags().StringVar(&providerRaw, "provider", "", "Provider (ga4, youtube, instagram)")
	cmd.Flags().StringVar(&reportName, "report", "", "Single report type (defaults to every type for the provider)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func resolveRole(cmd *cobra.Command, rt *clienv.Runtime, tenantID uuid.UUID) (tenant.Role, error) {
	rec, err := rt.Accounts.GetTenant(cmd.Context(), tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	role, err := rt.Accounts.ResolveRole(cmd.Context(), rec.OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant role: %w", err)
	}
	return role, nil
}

func writeSummary(w io.Writer, summary report.FetchSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tREPORT\tROWS\tERROR")
	for _, r := range summary.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", summary.Provider, r.ReportType, r.Rows, r.Error)
	}
	return tw.Flush()
}
