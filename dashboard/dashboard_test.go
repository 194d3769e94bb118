package dashboard

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/autodev/api"
)

func at(s string) api.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return api.Time{Time: t}
}

func sampleIssues() []api.Issue {
	return []api.Issue{
		{ID: "1", Title: "Slow login", Description: "takes 30s", Category: "performance", PainLevel: api.PainHigh,
			Status: api.IssueNew, SourceLabel: "support", CreatedAt: at("2025-01-08T09:00:00Z")},
		{ID: "2", Title: "Manual invoices", Category: "workflow", PainLevel: api.PainMedium,
			Status: api.IssueSelected, SourceLabel: "sales", CreatedAt: at("2025-01-10T09:00:00Z")},
		{ID: "3", Title: "Broken export", Description: "CSV \"quotes\"", Category: "performance", PainLevel: api.PainLow,
			Status: api.IssueNew, CreatedAt: at("2025-01-09T09:00:00Z")},
	}
}

func ids(issues []api.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}

func TestFilterIssues(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, []string{"1", "2", "3"}},
		{"all", Filter{Category: All, PainLevel: All, Status: All}, []string{"1", "2", "3"}},
		{"category", Filter{Category: "performance"}, []string{"1", "3"}},
		{"pain", Filter{PainLevel: api.PainMedium}, []string{"2"}},
		{"status", Filter{Status: api.IssueNew}, []string{"1", "3"}},
		{"query title", Filter{Query: "LOGIN"}, []string{"1"}},
		{"query description", Filter{Query: "quotes"}, []string{"3"}},
		{"combined", Filter{Category: "performance", PainLevel: api.PainHigh}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterIssues(sampleIssues(), tt.filter)))
		})
	}
}

func TestSortIssues(t *testing.T) {
	issues := sampleIssues()

	assert.Equal(t, []string{"1", "2", "3"}, ids(SortIssues(issues, SortPainLevel, Asc)))
	assert.Equal(t, []string{"3", "2", "1"}, ids(SortIssues(issues, SortPainLevel, Desc)))
	assert.Equal(t, []string{"2", "3", "1"}, ids(SortIssues(issues, SortCreatedAt, Desc)))
	assert.Equal(t, []string{"3", "2", "1"}, ids(SortIssues(issues, SortTitle, Asc)))
	assert.Equal(t, []string{"1", "3", "2"}, ids(SortIssues(issues, SortCategory, Asc)))

	// Input is not modified.
	assert.Equal(t, []string{"1", "2", "3"}, ids(issues))
}

func TestBreakdowns(t *testing.T) {
	issues := sampleIssues()

	assert.Equal(t, []Count{
		{Key: "performance", Label: "performance", Value: 2},
		{Key: "workflow", Label: "workflow", Value: 1},
	}, CategoryBreakdown(issues))

	assert.Equal(t, []Count{
		{Key: "high", Label: "高優先", Value: 1},
		{Key: "medium", Label: "中優先", Value: 1},
		{Key: "low", Label: "低優先", Value: 1},
	}, PainLevelBreakdown(issues))

	assert.Equal(t, []Count{
		{Key: "new", Label: "新規", Value: 2},
		{Key: "selected", Label: "選択済", Value: 1},
	}, StatusBreakdown(issues))

	src := SourceBreakdown(issues, 2)
	require.Len(t, src, 2)
	assert.Equal(t, "Unknown", src[0].Key)

	reqs := []api.Requirement{{Status: api.RequirementApproved}, {Status: "custom"}}
	assert.Equal(t, []Count{
		{Key: "approved", Label: "承認済み", Value: 1},
		{Key: "custom", Label: "custom", Value: 1},
	}, RequirementStatusBreakdown(reqs))

	assert.Equal(t, []string{"performance", "workflow"}, Categories(issues))
}

func TestPainLevelBreakdown_OmitsEmpty(t *testing.T) {
	got := PainLevelBreakdown([]api.Issue{{PainLevel: api.PainLow}})
	assert.Equal(t, []Count{{Key: "low", Label: "低優先", Value: 1}}, got)
}

func TestActivity(t *testing.T) {
	now := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)
	reqs := []api.Requirement{{CreatedAt: at("2025-01-10T01:00:00Z")}, {CreatedAt: at("2024-12-01T01:00:00Z")}}

	days := Activity(sampleIssues(), reqs, now, 7)
	require.Len(t, days, 7)
	assert.Equal(t, time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC), days[0].Date)

	last := days[6]
	assert.Equal(t, 1, last.Issues)
	assert.Equal(t, 1, last.Requirements)
	assert.Equal(t, 1, days[4].Issues) // 01-08
	assert.Equal(t, 1, days[5].Issues) // 01-09
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)
	reqs := []api.Requirement{
		{Status: api.RequirementApproved},
		{Status: api.RequirementDraft},
		{Status: api.RequirementReview},
	}

	s := Summarize(sampleIssues(), reqs, now)
	assert.Equal(t, Summary{
		TotalIssues:        3,
		HighPain:           1,
		HighPainPercent:    33,
		InReview:           2,
		Approved:           1,
		ApprovedPercent:    33,
		IssuesCreatedToday: 1,
	}, s)

	assert.Zero(t, Summarize(nil, nil, now).ApprovedPercent)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, sampleIssues(), time.UTC))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))
	lines := strings.Split(strings.TrimPrefix(out, "\ufeff"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "タイトル,カテゴリ,重要度,ステータス,ソース,作成日", lines[0])
	assert.Equal(t, `"Slow login","performance","high","new","support","2025/1/8"`, lines[1])

	// Output must stay parseable.
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestExportCSV_EscapesQuotes(t *testing.T) {
	var buf bytes.Buffer
	issues := []api.Issue{{Title: `say "hi", twice`}}
	require.NoError(t, ExportCSV(&buf, issues, time.UTC))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, `say "hi", twice`, records[1][0])
	assert.Equal(t, "", records[1][5])
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2025, 3, 7, 23, 30, 0, 0, time.FixedZone("JST", 9*3600))
	assert.Equal(t, "issues_2025-03-07.csv", ExportFilename(now))
}
