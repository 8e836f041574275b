package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/ui"
)

func newScheduleCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage background monitoring and auto-enroll jobs",
		Long: `add, remove and list talk to a running "coursebot serve". run starts a
foreground scheduler of its own.`,
	}
	cmd.PersistentFlags().StringVar(&server, "server", "", "coursebot server URL (default http://localhost:<server.port>)")

	client := func(cmd *cobra.Command) (*apiClient, error) {
		a, err := resolveApp(cmd.Context())
		if err != nil {
			return nil, err
		}
		base := server
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)
		}
		return newAPIClient(base, a.Config.Auth.APIKey), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add COURSE_ID",
			Short: "Retry selecting a course until it succeeds",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				name, err := c.addAutoEnroll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added job %s\n", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove JOB_NAME",
			Short: "Remove a scheduled job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				if err := c.removeJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show scheduled jobs",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := client(cmd)
				if err != nil {
					return err
				}
				st, err := c.schedulerStatus(cmd.Context())
				if err != nil {
					return err
				}
				ui.Scheduler(cmd.OutOrStdout(), st)
				return nil
			},
		},
		newScheduleRunCmd(),
	)
	return cmd
}

func newScheduleRunCmd() *cobra.Command {
	var watch []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run monitoring and auto-enroll jobs in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a.Unattended()
			sched := a.Scheduler
			if err := sched.Setup(); err != nil {
				return err
			}
			for _, id := range watch {
				if _, err := sched.AddAutoEnroll(id); err != nil {
					return err
				}
			}
			sched.Start(ctx)
			ui.Scheduler(cmd.OutOrStdout(), sched.Status())
			fmt.Fprintln(cmd.OutOrStdout(), "Scheduler running. Press Ctrl+C to stop.")

			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return sched.Stop(stopCtx)
		},
	}
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "course ids to auto-enroll")
	return cmd
}
