package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/browser"
	"github.com/JakeFAU/coursebot/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cache summary and recent enrollment attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.Enroll.Status(cmd.Context())
			if err != nil {
				return err
			}
			ui.Status(cmd.OutOrStdout(), st)
			if days < 0 {
				return nil
			}
			records, err := a.Enroll.History(cmd.Context(), days)
			if err != nil {
				return err
			}
			if len(records) > 0 {
				ui.History(cmd.OutOrStdout(), records)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "history window in days (0 for all, negative to hide)")
	return cmd
}

func newCleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove saved cookies and debug dumps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := browser.RemoveCookies(a.Config.Browser.CookiesFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %s\n", a.Config.Browser.CookiesFile)
			if err := a.Dumps.Clean(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Emptied %s\n", a.Dumps.Dir())
			if all {
				if err := a.Store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Cleared the course cache and history")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also clear the course cache and enrollment history")
	return cmd
}
