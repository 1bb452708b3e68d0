package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/infofluencer/infofluencer/apps/cli/cmd/clienv"
	accountsservice "github.com/infofluencer/infofluencer/domains/accounts/be/service"
)

// Command groups token helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Token utilities",
	}

	cmd.AddCommand(tokenCommand())
	return cmd
}

type tokenOutput struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	UserType         string    `json:"user_type"`
	TenantID         *string   `json:"tenant_id,omitempty"`
}

func tokenCommand() *cobra.Command {
	var (
		email      string
		accessOnly bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token pair for an existing account",
		Long:  "Issue a signed token pair for an existing account without its password. Requires JWT_SECRET to match the API server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			session, err := svc.IssueFor(cmd.Context(), email)
			if err != nil {
				if errors.Is(err, accountsservice.ErrNotFound) {
					return fmt.Errorf("no account for %s", email)
				}
				return fmt.Errorf("issue token: %w", err)
			}

			if accessOnly {
				fmt.Fprintln(cmd.OutOrStdout(), session.Tokens.Access)
				return nil
			}

			out := tokenOutput{
				AccessToken:      session.Tokens.Access,
				RefreshToken:     session.Tokens.Refresh,
				AccessExpiresAt:  session.Tokens.AccessExpiresAt,
				RefreshExpiresAt: session.Tokens.RefreshExpiresAt,
				UserID:           session.UserID.String(),
				UserType:         session.UserType,
			}
			if session.TenantID != nil {
				tid := session.TenantID.String()
				out.TenantID = &tid
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&accessOnly, "access-only", false, "Print only the access token")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
