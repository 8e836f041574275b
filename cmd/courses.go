package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/ui"
)

func newListCmd() *cobra.Command {
	var (
		refresh       bool
		courseType    string
		availableOnly bool
		keyword       string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached courses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			filter := portal.CourseFilter{Keyword: keyword, AvailableOnly: availableOnly}
			switch strings.ToLower(courseType) {
			case "", "all":
			case "regular":
				filter.Type = portal.CourseTypeRegular
			case "retake":
				filter.Type = portal.CourseTypeRetake
			default:
				return fmt.Errorf("--type must be all, regular or retake")
			}

			ctx := cmd.Context()
			if refresh {
				list, err := a.Enroll.RefreshCourses(ctx)
				if err != nil {
					return fmt.Errorf("refresh courses: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d regular and %d retake courses\n",
					len(list.Regular), len(list.Retake))
			}
			courses, err := a.Enroll.CachedCourses(ctx, filter)
			if err != nil {
				return err
			}
			if len(courses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached courses match. Run `coursebot list --refresh` to fetch them.")
				return nil
			}
			seats := make(map[string]portal.Availability, len(courses))
			for _, c := range courses {
				avail, err := a.Store.LatestAvailability(ctx, c.ID)
				if err == nil {
					seats[c.ID] = avail
				} else if !errors.Is(err, portal.ErrNoAvailability) {
					return err
				}
			}
			ui.Courses(cmd.OutOrStdout(), courses, seats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the course list from the portal first")
	cmd.Flags().StringVar(&courseType, "type", "all", "all, regular or retake")
	cmd.Flags().BoolVar(&availableOnly, "available-only", false, "only courses whose last check found seats")
	cmd.Flags().StringVar(&keyword, "keyword", "", "match course name or code")
	return cmd
}

func newGrabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grab COURSE_ID",
		Short: "Check a course and select it when seats remain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			result, err := a.Enroll.Grab(ctx, args[0], portal.ActionGrab)
			if errors.Is(err, portal.ErrNoSeats) {
				fmt.Fprintf(cmd.OutOrStdout(), "No seats remaining for %s\n", args[0])
				return err
			}
			if err != nil {
				return fmt.Errorf("grab %s: %w", args[0], err)
			}
			ui.Selection(cmd.OutOrStdout(), result)
			if !result.Succeeded() {
				return fmt.Errorf("selection not confirmed: %s", result.Outcome)
			}
			return nil
		},
	}
}

func newTestSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-select COURSE_ID",
		Short: "Run one selection attempt with page dumps, skipping the seat check",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			annotationDebugDumps: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Enroll.SelectNow(cmd.Context(), args[0], portal.ActionTestSelect)
			fmt.Fprintf(cmd.OutOrStdout(), "Page dumps written to %s\n", a.Dumps.Dir())
			if err != nil {
				return fmt.Errorf("test select %s: %w", args[0], err)
			}
			ui.Selection(cmd.OutOrStdout(), result)
			return nil
		},
	}
}
