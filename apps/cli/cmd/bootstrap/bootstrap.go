package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/infofluencer/infofluencer/apps/cli/cmd/clienv"
	accountsservice "github.com/infofluencer/infofluencer/domains/accounts/be/service"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform accounts",
		Long:  "Bootstrap platform resources such as the first administrator. Apply migrations first.",
	}

	cmd.AddCommand(adminCommand())
	return cmd
}

func adminCommand() *cobra.Command {
	var (
		email    string
		password string
	)

	c := &cobra.Command{
		Use:   "admin",
		Short: "Create a platform administrator",
		Long:  "Create a platform administrator. The password is read from --password or ADMIN_PASSWORD.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			email = strings.TrimSpace(email)

			cfg, err := clienv.FromCommand(cmd)
			if err != nil {
				return err
			}
			rt, err := clienv.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.AccountService()
			if err != nil {
				return err
			}

			userID, err := svc.BootstrapAdmin(cmd.Context(), email, password)
			if err != nil {
				var vErr *accountsservice.ValidationError
				if errors.As(err, &vErr) {
					return fmt.Errorf("invalid admin input: %v", vErr.Fields)
				}
				if errors.Is(err, accountsservice.ErrConflict) {
					return fmt.Errorf("an account already exists for %s", email)
				}
				return fmt.Errorf("create admin: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin created: %s (%s)\n", email, userID)
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "Administrator email")
	c.Flags().StringVar(&password, "password", "", "Administrator password (prefer ADMIN_PASSWORD)")
	_ = c.MarkFlagRequired("email")

	return c
}
