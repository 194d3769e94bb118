package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
)

var developmentStages = map[api.DevelopmentStatus]string{
	api.DevelopmentDesigning: "設計中",
	api.DevelopmentCoding:    "コーディング中",
	api.DevelopmentTesting:   "テスト中",
	api.DevelopmentReview:    "レビュー待ち",
	api.DevelopmentMerged:    "マージ済み",
	api.DevelopmentFailed:    "失敗",
}

func stageLabel(s api.DevelopmentStatus) string {
	if l, ok := developmentStages[s]; ok {
		return l
	}
	return string(s)
}

func (a *App) developmentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "developments",
		Aliases: []string{"development", "dev"},
		Short:   "Run and inspect AI development",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List developments of the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := a.api.Developments.List(cmd.Context(), a.projectID(cmd.Context()), api.DevelopmentStatus(status))
			if err != nil {
				return err
			}
			return a.render(devs, func(t *table) {
				t.row("ID", "REQUIREMENT", "STATUS", "FILES", "RETRIES", "PR", "UPDATED")
				for _, d := range devs {
					t.row(d.ID, d.RequirementID, d.Status, len(d.GeneratedFiles),
						fmt.Sprintf("%d/%d", d.RetryCount, d.MaxRetries), orDash(d.GitHubPRURL), formatTime(d.UpdatedAt))
				}
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.api.Developments.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(d, func(t *table) {
				t.row("ID", d.ID)
				t.row("Requirement", d.RequirementID)
				t.row("Status", fmt.Sprintf("%s (%s)", d.Status, stageLabel(d.Status)))
				t.row("Retries", fmt.Sprintf("%d/%d", d.RetryCount, d.MaxRetries))
				t.row("Errors", d.ErrorCount)
				t.row("Branch", orDash(d.GitHubBranch))
				t.row("Pull request", orDash(d.GitHubPRURL))
				for _, f := range d.GeneratedFiles {
					t.row("File", fmt.Sprintf("%s (%s)", f.Path, orDash(f.Language)))
				}
				t.row("Updated", formatTime(d.UpdatedAt))
			})
		},
	}

	logs := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print the agent activity log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.api.Developments.Logs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(entries, func(t *table) {
				t.row("TIME", "AGENT", "LEVEL", "MESSAGE")
				for _, e := range entries {
					t.row(formatTime(e.Timestamp), e.Agent, orDash(e.Level), e.Message)
				}
			})
		},
	}

	var wait bool
	start := &cobra.Command{
		Use:   "start <requirement-id>",
		Short: "Start AI development for an approved requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Developments.Start(cmd.Context(), args[0], a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			if !wait {
				a.toast.Success("開発を開始しました", resp.DevelopmentID)
				return a.render(resp, func(t *table) { t.row(resp.Status, resp.DevelopmentID) })
			}

			stop := a.serveMetrics(cmd.Context(), "developments start")
			defer stop()
			a.overlay.Start("開発を開始しています")
			var last api.DevelopmentStatus
			d, err := a.api.Developments.WaitSettled(cmd.Context(), resp.DevelopmentID, a.pollConfig(a.cfg.RefreshInterval),
				func(d api.Development) {
					if d.Status != last {
						last = d.Status
						a.overlay.Update(stageLabel(d.Status))
					}
				})
			a.overlay.Stop()
			if err != nil {
				return err
			}
			if d.Status == api.DevelopmentFailed {
				a.toast.Error("開発に失敗しました", d.ID)
			} else {
				a.toast.Success("開発が完了しました", stageLabel(d.Status))
			}
			return a.render(d, func(t *table) { t.row(d.ID, d.Status, len(d.GeneratedFiles)) })
		},
	}
	start.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the agents stop")

	pr := &cobra.Command{
		Use:   "pr <id>",
		Short: "Push the generated files and open a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.overlay.Start("プルリクエストを作成中")
			resp, err := a.api.Developments.CreatePR(cmd.Context(), args[0])
			a.overlay.Stop()
			if err != nil {
				return err
			}
			a.toast.Success("プルリクエストを作成しました", resp.PRURL)
			return a.render(resp, func(t *table) {
				t.row("Branch", resp.Branch)
				t.row("Pull request", resp.PRURL)
				t.row("Files", resp.FilesPushed)
			})
		},
	}

	var outPath string
	download := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the generated files as a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				outPath = "development_" + strings.ReplaceAll(args[0], "/", "_") + ".zip"
			}
			if outPath == "-" {
				_, err := a.api.Developments.Download(cmd.Context(), args[0], a.out)
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			n, err := a.api.Developments.Download(cmd.Context(), args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(outPath)
				return err
			}
			a.toast.Success("ダウンロードしました", fmt.Sprintf("%s (%d bytes)", outPath, n))
			return nil
		},
	}
	download.Flags().StringVar(&outPath, "out", "", "Output file (- writes to stdout)")

	githubStatus := &cobra.Command{
		Use:   "github-status",
		Short: "Report whether the backend can push to GitHub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.api.Developments.GitHubStatus(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(st, func(t *table) {
				repo := "-"
				if st.Repo != nil {
					repo = *st.Repo
				}
				t.row("Configured", st.Configured)
				t.row("Repository", repo)
			})
		},
	}

	cmd.AddCommand(list, get, logs, start, pr, download, githubStatus)
	return cmd
}
