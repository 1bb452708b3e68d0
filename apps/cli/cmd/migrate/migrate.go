package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/apps/cli/cmd/clienv"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
)

// Command groups schema migration helpers over the embedded migrations.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}

	cmd.AddCommand(
		stepCommand("up", "Apply all pending migrations", (*persistence.Migrator).Up),
		stepCommand("down", "Roll back the most recent migration", (*persistence.Migrator).Down),
		versionCommand(),
	)
	return cmd
}

func stepCommand(use, short string, step func(*persistence.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			if err := step(m); err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return printVersion(cmd, m)
		},
	}
}

func openMigrator(cmd *cobra.Command) (*persistence.Migrator, error) {
	cfg, err := clienv.FromCommand(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli-migrate", Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	m, err := persistence.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("open migrator", zap.Error(err))
		return nil, err
	}
	return m, nil
}

func printVersion(cmd *cobra.Command, m *persistence.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
	return nil
}
