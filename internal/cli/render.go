package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/query"
)

func printAnswer(w io.Writer, answer agent.Answer, showSQL, showRows bool) {
	_, _ = fmt.Fprintln(w, answer.Summary)
	if showSQL && answer.SQL != "" {
		_, _ = fmt.Fprintf(w, "\nSQL (%d attempt(s)):\n%s\n", answer.Attempts, answer.SQL)
	}
	if showRows && answer.Rows != nil {
		_, _ = fmt.Fprintln(w)
		renderRowSet(w, *answer.Rows)
	}
}

func renderRowSet(w io.Writer, rs query.RowSet) {
	rows := make([][]string, 0, len(rs.Rows))
	for _, row := range rs.DataRows() {
		rows = append(rows, row.Strings())
	}
	renderStrings(w, rs.Columns, rows)
}

func renderStrings(w io.Writer, columns []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	t.AppendHeader(header)
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, value := range row {
			out[i] = value
		}
		t.AppendRow(out)
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
}
