package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
	"github.com/randalmurphal/autodev/dashboard"
	"github.com/randalmurphal/autodev/settings"
)

func (a *App) statsCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show project counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			show := func(ctx context.Context) error {
				st, err := a.api.Stats.Get(ctx, a.projectID(ctx))
				if err != nil {
					return err
				}
				return a.render(st, func(t *table) {
					t.row("Sources", st.Sources)
					t.row("Issues", st.Issues)
					t.row("Requirements", st.Requirements)
					t.row("Completed", st.Completed)
					t.row("Developments", st.Developments)
				})
			}
			if !watch {
				return show(cmd.Context())
			}

			stop := a.serveMetrics(cmd.Context(), "stats")
			defer stop()
			intervals := make(chan time.Duration, 1)
			a.watchConfig(cmd.Context(), func(cfg settings.Config) {
				select {
				case <-intervals:
				default:
				}
				intervals <- cfg.DashboardInterval
			})
			err := a.everyReloadable(cmd.Context(), a.cfg.DashboardInterval, intervals, func(ctx context.Context) error {
				if a.flags.output == "" || a.flags.output == string(outputTable) {
					fmt.Fprintf(a.out, "-- %s\n", a.now().Format("15:04:05"))
				}
				if err := show(ctx); err != nil {
					a.toast.ErrorFrom("統計の取得に失敗しました", err)
					return err
				}
				return nil
			})
			return ignoreCanceled(err)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh until interrupted")
	return cmd
}

// dashboardReport is the structured form of the dashboard command.
type dashboardReport struct {
	Summary      dashboard.Summary `json:"summary"`
	Categories   []dashboard.Count `json:"categories"`
	PainLevels   []dashboard.Count `json:"pain_levels"`
	Statuses     []dashboard.Count `json:"statuses"`
	Sources      []dashboard.Count `json:"sources"`
	Requirements []dashboard.Count `json:"requirements"`
	Activity     []dashboard.Day   `json:"activity"`
}

func (a *App) dashboardCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarise issues and requirements of the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project := a.projectID(cmd.Context())
			issues, err := a.api.Issues.List(cmd.Context(), project, api.IssueFilter{})
			if err != nil {
				return err
			}
			reqs, err := a.api.Requirements.List(cmd.Context(), project)
			if err != nil {
				return err
			}
			now := a.now()
			report := dashboardReport{
				Summary:      dashboard.Summarize(issues, reqs, now),
				Categories:   dashboard.CategoryBreakdown(issues),
				PainLevels:   dashboard.PainLevelBreakdown(issues),
				Statuses:     dashboard.StatusBreakdown(issues),
				Sources:      dashboard.SourceBreakdown(issues, 5),
				Requirements: dashboard.RequirementStatusBreakdown(reqs),
				Activity:     dashboard.Activity(issues, reqs, now, days),
			}
			return a.render(report, func(t *table) {
				s := report.Summary
				t.row("総課題数", s.TotalIssues, fmt.Sprintf("本日 +%d", s.IssuesCreatedToday))
				t.row("高優先度", s.HighPain, fmt.Sprintf("%d%%", s.HighPainPercent))
				t.row("レビュー中", s.InReview, "")
				t.row("承認済み", s.Approved, fmt.Sprintf("%d%%", s.ApprovedPercent))
				section := func(title string, counts []dashboard.Count) {
					t.row("", "", "")
					t.row(title, "", "")
					for _, c := range counts {
						t.row("  "+c.Label, c.Value, bar(c.Value, counts))
					}
				}
				section("カテゴリ", report.Categories)
				section("重要度", report.PainLevels)
				section("ステータス", report.Statuses)
				section("ソース", report.Sources)
				section("要件定義", report.Requirements)
				t.row("", "", "")
				t.row("アクティビティ", "課題", "要件定義")
				for _, d := range report.Activity {
					t.row("  "+d.Date.Format("01/02"), d.Issues, d.Requirements)
				}
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Days of activity to show")
	return cmd
}

// bar scales v against the largest count to at most 20 cells.
func bar(v int, counts []dashboard.Count) string {
	top := 0
	for _, c := range counts {
		if c.Value > top {
			top = c.Value
		}
	}
	if top == 0 {
		return ""
	}
	return strings.Repeat("█", v*20/top)
}
