package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/client"
	"github.com/zfogg/daybook/internal/cli/logger"
)

const codeTwoFactorRequired = "TWO_FACTOR_REQUIRED"

func newLoginCmd(a *app) *cobra.Command {
	var email, password, otp string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(a.in, a.out)
			var err error
			if email == "" {
				if email, err = p.String("Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = p.Password("Password: "); err != nil {
					return err
				}
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			result, err := a.client.Login(cmd.Context(), email, password, otp)
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Code == codeTwoFactorRequired && otp == "" {
				if otp, err = p.String("Authentication code: "); err != nil {
					return err
				}
				result, err = a.client.Login(cmd.Context(), email, password, otp)
			}
			if err != nil {
				if client.IsStatus(err, http.StatusUnauthorized) {
					return fmt.Errorf("login failed: %w", err)
				}
				return err
			}

			logger.Info("Logged in", "user_id", result.User.ID)
			if a.printer.JSON() {
				return a.printer.Data(result.User)
			}
			a.printer.Success("Logged in as %s (%s)", result.User.Username, result.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&otp, "otp", "", "Two-factor code or backup code")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.client.Logout(cmd.Context())
			if errors.Is(err, client.ErrNotLoggedIn) {
				a.printer.Info("Not logged in")
				return nil
			}
			if creds == nil {
				return err
			}
			if err != nil {
				// the local tokens are gone either way
				logger.Warn("Server logout failed", "error", err)
			}
			if a.printer.JSON() {
				return a.printer.Data(map[string]interface{}{"logged_out": true, "email": creds.Email})
			}
			a.printer.Success("Logged out %s", creds.Email)
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(user)
			}
			a.printer.Heading("%s (%s)", user.DisplayName, user.Username)
			a.printer.Line("email:    %s", user.Email)
			a.printer.Line("timezone: %s", user.Timezone)
			a.printer.Line("2fa:      %t", user.TwoFactorEnabled)
			return nil
		},
	}
}
