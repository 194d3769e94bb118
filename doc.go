// Package autodev is a Go client toolkit for the Auto-Dev Department
// backend, which turns business conversation logs into issues, requirement
// documents and AI-generated code.
//
// Each subpackage can be used independently:
//
//   - apiclient: resilient HTTP executor with timeouts, retries and typed errors
//   - api: typed services for projects, sources, issues, requirements,
//     developments, sync and dashboard stats
//   - poll: poll-until-predicate and auto-refresh loops
//   - workspace: project list and persisted current project selection
//   - settings: YAML/TOML/environment configuration with hot reload
//   - dashboard: issue filtering, sorting, breakdowns and CSV export
//   - ingest: drop-folder watcher that uploads new conversation logs
//   - notify: command line toasts and spinner overlay
//   - cli: the autodev command tree (cmd/autodev)
//
// # Quick Start
//
//	client, err := apiclient.New("http://localhost:8000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a := api.New(client)
//
//	issues, err := a.Issues.List(ctx, "", api.IssueFilter{PainLevel: api.PainHigh})
//	if err != nil {
//	    fmt.Println(apiclient.Message(err))
//	}
//
// Waiting for an asynchronous job:
//
//	resp, _ := a.Requirements.Generate(ctx, []string{issueID}, projectID)
//	req, err := a.Requirements.WaitGenerated(ctx, resp.RequirementID, poll.Config{Interval: 2 * time.Second})
package autodev
