package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
)

func (a *App) requirementsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requirements",
		Aliases: []string{"requirement", "req"},
		Short:   "Generate and review requirement documents",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List requirements of the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := a.api.Requirements.List(cmd.Context(), a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			return a.render(reqs, func(t *table) {
				t.row("ID", "TITLE", "STATUS", "ISSUE", "GITHUB", "CREATED")
				for _, r := range reqs {
					t.row(r.ID, shorten(r.Title, 40), r.Status, orDash(r.IssueID), orDash(r.GitHubIssueURL), formatTime(r.CreatedAt))
				}
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a requirement document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.api.Requirements.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(r, func(t *table) {
				fmt.Fprintln(t.tw, r.MarkdownContent)
			})
		},
	}

	var wait bool
	generate := &cobra.Command{
		Use:   "generate <issue-id>...",
		Short: "Generate a requirement document from issues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Requirements.Generate(cmd.Context(), args, a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			if !wait {
				a.toast.Success("要件定義の生成を開始しました", resp.RequirementID)
				return a.render(resp, func(t *table) { t.row(resp.Status, resp.RequirementID) })
			}

			stop := a.serveMetrics(cmd.Context(), "requirements generate")
			defer stop()
			a.overlay.Start("要件定義を生成中")
			r, err := a.api.Requirements.WaitGenerated(cmd.Context(), resp.RequirementID, a.pollConfig(a.cfg.PollInterval))
			elapsed := a.overlay.Stop()
			if err != nil {
				return err
			}
			a.toast.Success("要件定義を生成しました", fmt.Sprintf("%s (%s)", r.Title, elapsed.Round(time.Second)))
			return a.render(r, func(t *table) { t.row(r.ID, r.Title, r.Status) })
		},
	}
	generate.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the document exists")

	var (
		file   string
		status string
	)
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace the markdown or change the status of a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u api.RequirementUpdate
			if file != "" {
				text, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				u.MarkdownContent = &text
			}
			if status != "" {
				s := api.RequirementStatus(status)
				u.Status = &s
			}
			if u.MarkdownContent == nil && u.Status == nil {
				return fmt.Errorf("nothing to update: pass --file or --status")
			}
			r, err := a.api.Requirements.Update(cmd.Context(), args[0], u)
			if err != nil {
				return err
			}
			a.toast.Success("要件定義を更新しました", r.Title)
			return a.render(r, func(t *table) { t.row(r.ID, r.Status) })
		},
	}
	edit.Flags().StringVarP(&file, "file", "f", "", "Markdown file with the new content (- reads stdin)")
	edit.Flags().StringVar(&status, "status", "", "New status (draft, review, approved, rejected)")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.api.Requirements.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.toast.Success("要件定義を承認しました", r.Title)
			return a.render(r, func(t *table) { t.row(r.ID, r.Status) })
		},
	}

	githubIssue := &cobra.Command{
		Use:   "github-issue <id>",
		Short: "Open a GitHub issue for a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Requirements.CreateGitHubIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.toast.Success("GitHub Issueを作成しました", resp.GitHubIssueURL)
			return a.render(resp, func(t *table) { t.row(resp.GitHubIssueURL) })
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.api.Requirements.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.toast.Success("要件定義を削除しました", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, generate, edit, approve, githubIssue, del)
	return cmd
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n") + "\n", nil
}
