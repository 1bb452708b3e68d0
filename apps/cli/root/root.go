package root

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the InfoFluencer operator CLI. Subcommands
// (migrate, bootstrap, auth, reports, tenant) are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "infofluencer",
	Short:         "InfoFluencer operator CLI",
	Long:          "Operator utilities for InfoFluencer (migrations, admin bootstrap, tokens, report refresh, tenant removal).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
