package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/enroll"
	"github.com/JakeFAU/coursebot/internal/ui"
)

func newAutoSelectCmd() *cobra.Command {
	var (
		opts enroll.AutoSelectOptions
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "auto-select-all",
		Short: "Try every matching cached course in priority order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			switch opts.CourseType {
			case "professional", "public", "all":
			default:
				return fmt.Errorf("--course-type must be professional, public or all")
			}
			if !opts.DryRun && !yes {
				prompt := promptui.Prompt{
					Label:     "Submit real course selections",
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			out := cmd.OutOrStdout()
			var bar *ui.Progress
			observe := func(done, total int, r enroll.CourseResult) {
				if bar == nil {
					bar = ui.NewProgress(out, "auto-select", total)
				}
				bar.Observe(done, total, r)
			}
			report, err := a.Enroll.AutoSelectAll(cmd.Context(), opts, observe)
			if bar != nil {
				bar.Wait()
			}
			if errors.Is(err, enroll.ErrNoCourses) {
				fmt.Fprintln(out, "No candidate courses. Refresh the cache or relax the filters.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("auto select: %w", err)
			}
			ui.Report(out, report)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.DryRun, "dry-run", false, "check seats without submitting selections")
	f.IntVar(&opts.MaxCourses, "max-courses", 5, "stop after this many successful selections (0 for no limit)")
	f.BoolVar(&opts.SkipRetakes, "skip-retakes", false, "skip retake courses")
	f.DurationVar(&opts.Delay, "delay", time.Second, "pause after each submitted selection")
	f.StringVar(&opts.CourseType, "course-type", "all", "professional, public or all")
	f.StringSliceVar(&opts.PriorityKeywords, "priority-keywords", nil, "try courses matching these keywords first")
	f.StringSliceVar(&opts.ExcludeKeywords, "exclude-keywords", nil, "skip courses matching these keywords")
	f.IntVar(&opts.MinSlots, "min-slots", 1, "fewest remaining seats worth trying for")
	f.BoolVar(&opts.Refresh, "refresh-data", false, "refresh the course list before selecting")
	f.BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
