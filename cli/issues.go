package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
	"github.com/randalmurphal/autodev/dashboard"
)

type issueListFlags struct {
	source   string
	status   string
	pain     string
	category string
	query    string
	sort     string
	desc     bool
}

func (f *issueListFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", "", "Only issues from this source")
	fs.StringVar(&f.status, "status", "", "Filter by status (new, selected, in_progress, done, archived)")
	fs.StringVar(&f.pain, "pain", "", "Filter by pain level (high, medium, low)")
	fs.StringVar(&f.category, "category", "", "Filter by category")
	fs.StringVar(&f.query, "query", "", "Match title or description")
	fs.StringVar(&f.sort, "sort", string(dashboard.SortCreatedAt), "Sort by title, category, pain_level, status or created_at")
	fs.BoolVar(&f.desc, "desc", false, "Sort descending")
}

// fetchIssues lists issues with server-side filters, then applies the filters
// and ordering the backend does not support.
func (a *App) fetchIssues(cmd *cobra.Command, f issueListFlags) ([]api.Issue, error) {
	status := api.IssueStatus(f.status)
	if status != "" && status != dashboard.All && !status.Valid() {
		return nil, fmt.Errorf("unknown issue status %q", f.status)
	}
	filter := api.IssueFilter{SourceID: f.source}
	if status != dashboard.All {
		filter.Status = status
	}
	if f.pain != dashboard.All {
		filter.PainLevel = api.PainLevel(f.pain)
	}
	issues, err := a.api.Issues.List(cmd.Context(), a.projectID(cmd.Context()), filter)
	if err != nil {
		return nil, err
	}
	issues = dashboard.FilterIssues(issues, dashboard.Filter{Query: f.query, Category: f.category})
	order := dashboard.Asc
	if f.desc {
		order = dashboard.Desc
	}
	return dashboard.SortIssues(issues, dashboard.SortKey(f.sort), order), nil
}

func (a *App) issuesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "issues",
		Aliases: []string{"issue"},
		Short:   "Browse and triage extracted issues",
	}

	var listFlags issueListFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List issues of the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := a.fetchIssues(cmd, listFlags)
			if err != nil {
				return err
			}
			return a.render(issues, func(t *table) {
				t.row("ID", "TITLE", "CATEGORY", "PAIN", "STATUS", "SOURCE", "CREATED")
				for _, is := range issues {
					t.row(is.ID, shorten(is.Title, 40), orDash(is.Category), is.PainLevel, is.Status,
						orDash(is.SourceLabel), formatTime(is.CreatedAt))
				}
			})
		},
	}
	listFlags.bind(list)

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			is, err := a.api.Issues.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(is, func(t *table) {
				t.row("ID", is.ID)
				t.row("Title", is.Title)
				t.row("Category", orDash(is.Category))
				t.row("Pain", is.PainLevel)
				t.row("Status", is.Status)
				t.row("Source", orDash(is.SourceLabel))
				t.row("Description", shorten(is.Description, 200))
				t.row("Approach", orDash(shorten(is.TechApproach, 200)))
				t.row("Expected", orDash(shorten(is.ExpectedOutcome, 200)))
				t.row("Requirement", orDash(is.RequirementID))
				t.row("Created", formatTime(is.CreatedAt))
			})
		},
	}

	var content string
	extract := &cobra.Command{
		Use:   "extract <source-id>",
		Short: "Start AI issue extraction for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if content == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(data)
			}
			resp, err := a.api.Issues.Extract(cmd.Context(), args[0], content, a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			a.toast.Success("課題の抽出を開始しました", resp.Message)
			return a.render(resp, func(t *table) { t.row(resp.Status, resp.BatchID) })
		},
	}
	extract.Flags().StringVar(&content, "content", "", "Text to extract from instead of the stored messages (- reads stdin)")

	status := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the status of an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := api.IssueStatus(args[1])
			if !s.Valid() {
				return fmt.Errorf("unknown issue status %q", args[1])
			}
			is, err := a.api.Issues.UpdateStatus(cmd.Context(), args[0], s)
			if err != nil {
				return err
			}
			a.toast.Success("ステータスを更新しました", string(is.Status))
			return a.render(is, func(t *table) { t.row(is.ID, is.Status) })
		},
	}

	sel := &cobra.Command{
		Use:   "select <id>",
		Short: "Mark an issue as selected for requirement generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			is, err := a.api.Issues.Select(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.toast.Success("課題を選択しました", is.Title)
			return a.render(is, func(t *table) { t.row(is.ID, is.Status) })
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.api.Issues.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.toast.Success("課題を削除しました", args[0])
			return nil
		},
	}

	var (
		exportFlags issueListFlags
		outPath     string
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Export issues as CSV",
		Long: `export writes the filtered issues as a UTF-8 CSV with a byte order mark.
The file is named issues_YYYY-MM-DD.csv unless --out is given; --out - writes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := a.fetchIssues(cmd, exportFlags)
			if err != nil {
				return err
			}
			if outPath == "-" {
				return dashboard.ExportCSV(a.out, issues, nil)
			}
			if outPath == "" {
				outPath = dashboard.ExportFilename(a.now())
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := dashboard.ExportCSV(f, issues, nil); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.toast.Success("CSVを出力しました", fmt.Sprintf("%s (%d件)", outPath, len(issues)))
			return nil
		},
	}
	exportFlags.bind(export)
	export.Flags().StringVar(&outPath, "out", "", "Output file")

	cmd.AddCommand(list, get, extract, status, sel, del, export)
	return cmd
}
