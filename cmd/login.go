package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/browser"
)

func newLoginCmd() *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the portal and save the session cookies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if clean {
				if err := browser.RemoveCookies(a.Config.Browser.CookiesFile); err != nil {
					return err
				}
			}
			if err := a.Enroll.Login(cmd.Context()); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Session saved to %s\n", a.Config.Browser.CookiesFile)
			return nil
		},
	}
	cmd.Flags().Bool("headless", true, "run Chrome without a window")
	cmd.Flags().BoolVar(&clean, "clean", false, "discard saved cookies before logging in")
	return cmd
}
