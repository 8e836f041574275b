package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/ui"
)

func newPlanCmd() *cobra.Command {
	var checkConflicts bool
	cmd := &cobra.Command{
		Use:   "plan RULES_FILE",
		Short: "Rank cached courses against a YAML rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rules, err := planner.LoadRules(args[0])
			if err != nil {
				return err
			}
			courses, err := a.Enroll.CachedCourses(cmd.Context(), portal.CourseFilter{})
			if err != nil {
				return err
			}
			scored := planner.Plan(courses, rules)
			out := cmd.OutOrStdout()
			if len(scored) == 0 {
				fmt.Fprintln(out, "No cached course matches the rules.")
				return nil
			}
			ui.Plan(out, scored)

			if !checkConflicts {
				return nil
			}
			slots := make(map[string][]planner.Slot, len(scored))
			order := make([]string, 0, len(scored))
			for _, s := range scored {
				slots[s.Course.ID] = s.Slots
				order = append(order, s.Course.ID)
			}
			conflicts := planner.Conflicts(slots, order)
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "No schedule conflicts.")
				return nil
			}
			ui.Conflicts(out, conflicts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkConflicts, "check-conflicts", false, "report overlapping class times among planned courses")
	return cmd
}
