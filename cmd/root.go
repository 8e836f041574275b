// Package cmd defines the coursebot command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/app"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey    appKeyType = "app"
	holderKey appKeyType = "app_holder"
)

// appHolder hands the App built by PersistentPreRunE back to executeRoot.
type appHolder struct {
	app *app.App
}

func (h *appHolder) close() {
	if h.app != nil {
		h.app.Close()
	}
}

// annotationDebugDumps marks commands that always write page dumps.
const annotationDebugDumps = "debug_dumps"

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.New(ctx, opts)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "coursebot",
		Short: "Course registration assistant for the YBU academic portal.",
		Long: `coursebot logs in to the YBU registration portal, caches the selectable
courses, watches seat counts and submits selections, solving the portal's
captcha along the way. It runs as a one-shot CLI or as a local HTTP service.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{ConfigPath: cfgFile}
			if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
				v, err := strconv.ParseBool(f.Value.String())
				if err != nil {
					return fmt.Errorf("invalid --headless: %w", err)
				}
				opts.Headless = &v
			}
			if cmd.Annotations[annotationDebugDumps] == "true" {
				opts.DebugDumps = true
			}
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if holder, ok := cmd.Context().Value(holderKey).(*appHolder); ok {
				holder.app = appInstance
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newLoginCmd(),
		newListCmd(),
		newGrabCmd(),
		newTestSelectCmd(),
		newAutoSelectCmd(),
		newPlanCmd(),
		newScheduleCmd(),
		newStatusCmd(),
		newCleanCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// executeRoot runs root and closes the App it built, including when the
// command fails.
func executeRoot(ctx context.Context, root *cobra.Command) error {
	holder := &appHolder{}
	defer holder.close()
	return root.ExecuteContext(context.WithValue(ctx, holderKey, holder))
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executeRoot(ctx, newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
