package agent

import (
	"regexp"
	"strings"

	"github.com/opsassist/opsassist/internal/query"
)

var (
	fencePattern  = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)\\s*```")
	selectPattern = regexp.MustCompile(`(?i)\bselect\b`)
)

// ExtractSQL pulls one SELECT statement out of model output. A fenced block
// wins over the surrounding prose; anything before the first "select" word
// and after the first semicolon is dropped.
func ExtractSQL(text string) (string, error) {
	t := strings.TrimSpace(text)
	if strings.Contains(t, "```") {
		if match := fencePattern.FindStringSubmatch(t); match != nil {
			t = strings.TrimSpace(match[1])
		}
	}
	loc := selectPattern.FindStringIndex(t)
	if loc == nil {
		return "", ErrNoSelectFound
	}
	t = strings.TrimSpace(t[loc[0]:])
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t, nil
}

// IsZeroDataRows reports a result with no data: no rows at all, or a single
// row that is only the header. The header is recognized by the backend's
// structural flag or, failing that, by a first cell equal to sentinel.
func IsZeroDataRows(rs query.RowSet, sentinel string) bool {
	switch len(rs.Rows) {
	case 0:
		return true
	case 1:
		if rs.HeaderIncluded {
			return true
		}
		return sentinel != "" && query.FirstCell(rs.Rows[0]) == sentinel
	default:
		return false
	}
}

// FormatRows renders data rows one per line for the summary prompt.
func FormatRows(rs query.RowSet) string {
	rows := rs.DataRows()
	if len(rows) == 0 {
		return NoRowsPlaceholder
	}
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = row.String()
	}
	return strings.Join(lines, "\n")
}
