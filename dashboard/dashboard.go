// Package dashboard derives the analytics shown on the project dashboard
// from issue and requirement lists: breakdowns, filtering, sorting, a
// seven-day activity series and CSV export.
package dashboard

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/autodev/api"
)

// All matches every value in a Filter field.
const All = "all"

// Filter selects issues. Empty fields and All match everything.
type Filter struct {
	// Query matches title or description, case-insensitively.
	Query     string
	Category  string
	PainLevel api.PainLevel
	Status    api.IssueStatus
}

func matches(field, want string) bool {
	return want == "" || want == All || field == want
}

// FilterIssues returns the issues matching f, preserving order.
func FilterIssues(issues []api.Issue, f Filter) []api.Issue {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]api.Issue, 0, len(issues))
	for _, is := range issues {
		if !matches(is.Category, f.Category) ||
			!matches(string(is.PainLevel), string(f.PainLevel)) ||
			!matches(string(is.Status), string(f.Status)) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(is.Title), q) &&
			!strings.Contains(strings.ToLower(is.Description), q) {
			continue
		}
		out = append(out, is)
	}
	return out
}

// SortKey is a sortable issue column.
type SortKey string

const (
	SortTitle     SortKey = "title"
	SortCategory  SortKey = "category"
	SortPainLevel SortKey = "pain_level"
	SortStatus    SortKey = "status"
	SortCreatedAt SortKey = "created_at"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

var painRank = map[api.PainLevel]int{api.PainHigh: 0, api.PainMedium: 1, api.PainLow: 2}

// SortIssues returns a sorted copy. Pain level sorts high before low in
// ascending order. Unknown keys sort by creation time.
func SortIssues(issues []api.Issue, key SortKey, order Order) []api.Issue {
	out := slices.Clone(issues)
	compare := func(a, b api.Issue) int {
		switch key {
		case SortTitle:
			return strings.Compare(a.Title, b.Title)
		case SortCategory:
			return strings.Compare(a.Category, b.Category)
		case SortPainLevel:
			return cmp.Compare(rank(a.PainLevel), rank(b.PainLevel))
		case SortStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.CreatedAt.Compare(b.CreatedAt.Time)
		}
	}
	slices.SortStableFunc(out, func(a, b api.Issue) int {
		if order == Desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return out
}

func rank(p api.PainLevel) int {
	if r, ok := painRank[p]; ok {
		return r
	}
	return len(painRank)
}

// Count is one bar or slice of a chart.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// CategoryBreakdown counts issues per category, largest first.
func CategoryBreakdown(issues []api.Issue) []Count {
	counts := map[string]int{}
	for _, is := range issues {
		counts[is.Category]++
	}
	return byValue(counts, nil)
}

// SourceBreakdown counts issues per source label, largest first, keeping
// the top n (n <= 0 keeps all). Unlabelled issues count as "Unknown".
func SourceBreakdown(issues []api.Issue, n int) []Count {
	counts := map[string]int{}
	for _, is := range issues {
		label := is.SourceLabel
		if label == "" {
			label = "Unknown"
		}
		counts[label]++
	}
	out := byValue(counts, nil)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

var painLabels = map[string]string{"high": "高優先", "medium": "中優先", "low": "低優先"}

// PainLevelBreakdown counts issues per pain level in high, medium, low
// order, omitting empty levels.
func PainLevelBreakdown(issues []api.Issue) []Count {
	counts := map[api.PainLevel]int{}
	for _, is := range issues {
		counts[is.PainLevel]++
	}
	var out []Count
	for _, p := range []api.PainLevel{api.PainHigh, api.PainMedium, api.PainLow} {
		if counts[p] > 0 {
			out = append(out, Count{Key: string(p), Label: painLabels[string(p)], Value: counts[p]})
		}
	}
	return out
}

var issueStatusLabels = map[string]string{
	"new":         "新規",
	"selected":    "選択済",
	"in_progress": "進行中",
	"done":        "完了",
	"archived":    "アーカイブ",
}

// StatusBreakdown counts issues per status, largest first.
func StatusBreakdown(issues []api.Issue) []Count {
	counts := map[string]int{}
	for _, is := range issues {
		counts[string(is.Status)]++
	}
	return byValue(counts, issueStatusLabels)
}

var requirementStatusLabels = map[string]string{
	"draft":    "ドラフト",
	"review":   "レビュー中",
	"approved": "承認済み",
	"rejected": "却下",
}

// RequirementStatusBreakdown counts requirements per status, largest first.
func RequirementStatusBreakdown(reqs []api.Requirement) []Count {
	counts := map[string]int{}
	for _, r := range reqs {
		counts[string(r.Status)]++
	}
	return byValue(counts, requirementStatusLabels)
}

// Categories lists distinct categories in first-seen order.
func Categories(issues []api.Issue) []string {
	seen := map[string]bool{}
	var out []string
	for _, is := range issues {
		if !seen[is.Category] {
			seen[is.Category] = true
			out = append(out, is.Category)
		}
	}
	return out
}

func byValue(counts map[string]int, labels map[string]string) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		label := k
		if l, ok := labels[k]; ok {
			label = l
		}
		out = append(out, Count{Key: k, Label: label, Value: v})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// Day is one point of the activity series.
type Day struct {
	Date         time.Time `json:"date"`
	Issues       int       `json:"issues"`
	Requirements int       `json:"requirements"`
}

// Activity returns per-day creation counts for the days days ending on
// now's date, oldest first, bucketed in now's location.
func Activity(issues []api.Issue, reqs []api.Requirement, now time.Time, days int) []Day {
	if days <= 0 {
		return nil
	}
	loc := now.Location()
	y, m, d := now.Date()
	first := time.Date(y, m, d-days+1, 0, 0, 0, 0, loc)

	out := make([]Day, days)
	for i := range out {
		out[i].Date = first.AddDate(0, 0, i)
	}
	index := func(t time.Time) int {
		if t.IsZero() {
			return -1
		}
		ty, tm, td := t.In(loc).Date()
		day := time.Date(ty, tm, td, 0, 0, 0, 0, loc)
		for i := range out {
			if out[i].Date.Equal(day) {
				return i
			}
		}
		return -1
	}
	for _, is := range issues {
		if i := index(is.CreatedAt.Time); i >= 0 {
			out[i].Issues++
		}
	}
	for _, r := range reqs {
		if i := index(r.CreatedAt.Time); i >= 0 {
			out[i].Requirements++
		}
	}
	return out
}

// Summary holds the headline cards.
type Summary struct {
	TotalIssues        int `json:"total_issues"`
	HighPain           int `json:"high_pain"`
	HighPainPercent    int `json:"high_pain_percent"`
	InReview           int `json:"in_review"`
	Approved           int `json:"approved"`
	ApprovedPercent    int `json:"approved_percent"`
	IssuesCreatedToday int `json:"issues_created_today"`
}

// Summarize computes the headline cards. Percentages are rounded.
func Summarize(issues []api.Issue, reqs []api.Requirement, now time.Time) Summary {
	s := Summary{TotalIssues: len(issues)}
	y, m, d := now.Date()
	for _, is := range issues {
		if is.PainLevel == api.PainHigh {
			s.HighPain++
		}
		if !is.CreatedAt.IsZero() {
			iy, im, id := is.CreatedAt.In(now.Location()).Date()
			if iy == y && im == m && id == d {
				s.IssuesCreatedToday++
			}
		}
	}
	for _, r := range reqs {
		switch r.Status {
		case api.RequirementDraft, api.RequirementReview:
			s.InReview++
		case api.RequirementApproved:
			s.Approved++
		}
	}
	s.HighPainPercent = percent(s.HighPain, len(issues))
	s.ApprovedPercent = percent(s.Approved, len(reqs))
	return s
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(n)*100/float64(total) + 0.5)
}
