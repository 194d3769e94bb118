package dashboard

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/randalmurphal/autodev/api"
)

// csvHeaders are the export column titles.
var csvHeaders = []string{"タイトル", "カテゴリ", "重要度", "ステータス", "ソース", "作成日"}

const utf8BOM = "\ufeff"

// ExportCSV writes issues as CSV for spreadsheet tools: a UTF-8 BOM, a bare
// header row, then one row per issue with every cell quoted. Dates use the
// Japanese short form (2006/1/2) in loc; nil loc means time.Local.
func ExportCSV(w io.Writer, issues []api.Issue, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(utf8BOM + strings.Join(csvHeaders, ",")); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, is := range issues {
		created := ""
		if !is.CreatedAt.IsZero() {
			created = is.CreatedAt.In(loc).Format("2006/1/2")
		}
		row := []string{
			is.Title,
			is.Category,
			string(is.PainLevel),
			string(is.Status),
			is.SourceLabel,
			created,
		}
		bw.WriteByte('\n')
		for i, cell := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quote(cell))
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExportFilename returns issues_YYYY-MM-DD.csv for now's UTC date.
func ExportFilename(now time.Time) string {
	return "issues_" + now.UTC().Format(time.DateOnly) + ".csv"
}
