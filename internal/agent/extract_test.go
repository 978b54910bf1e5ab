package agent

import (
	"errors"
	"testing"

	"github.com/opsassist/opsassist/internal/query"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1;\n```", "SELECT 1"},
		{"SELECT 1; garbage", "SELECT 1"},
		{"Here is the query:\n```SQL\nselect count(*) from tickets\n```\nHope it helps", "select count(*) from tickets"},
		{"```\nSELECT priority FROM tickets\n```", "SELECT priority FROM tickets"},
		{"Sure! SELECT COUNT(*) FROM tickets WHERE priority = 'high'", "SELECT COUNT(*) FROM tickets WHERE priority = 'high'"},
		{"  WITH x AS (SELECT 1) SELECT * FROM x  ", "SELECT 1) SELECT * FROM x"},
	}
	for _, tt := range tests {
		got, err := ExtractSQL(tt.in)
		if err != nil {
			t.Fatalf("ExtractSQL(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ExtractSQL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractSQLIsIdempotent(t *testing.T) {
	once, err := ExtractSQL("```sql\nSELECT category FROM tickets;\n```")
	if err != nil {
		t.Fatalf("ExtractSQL() error = %v", err)
	}
	twice, err := ExtractSQL(once)
	if err != nil || twice != once {
		t.Fatalf("ExtractSQL(ExtractSQL(x)) = %q, %v; want %q", twice, err, once)
	}
}

func TestExtractSQLNoSelect(t *testing.T) {
	for _, in := range []string{"I cannot answer that.", "", "selection bias is not SQL", "```sql\n\n```"} {
		if _, err := ExtractSQL(in); !errors.Is(err, ErrNoSelectFound) {
			t.Fatalf("ExtractSQL(%q) error = %v, want ErrNoSelectFound", in, err)
		}
	}
}

func TestIsZeroDataRows(t *testing.T) {
	tests := []struct {
		name string
		rs   query.RowSet
		want bool
	}{
		{"empty", query.RowSet{}, true},
		{"structural header only", query.RowSet{Rows: []query.Row{query.NewRow("category")}, HeaderIncluded: true}, true},
		{"sentinel header only", query.RowSet{Rows: []query.Row{query.NewRow("ticket_id")}}, true},
		{"single data row", query.RowSet{Rows: []query.Row{query.NewRow("12")}}, false},
		{"other primary key is data", query.RowSet{Rows: []query.Row{query.NewRow("id")}}, false},
		{"header plus data", query.RowSet{Rows: []query.Row{query.NewRow("n"), query.NewRow("12")}, HeaderIncluded: true}, false},
		{"null cell", query.RowSet{Rows: []query.Row{{nil}}}, false},
	}
	for _, tt := range tests {
		if got := IsZeroDataRows(tt.rs, "ticket_id"); got != tt.want {
			t.Fatalf("%s: IsZeroDataRows() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormatRows(t *testing.T) {
	rs := query.RowSet{
		Rows:           []query.Row{query.NewRow("category", "n"), query.NewRow("IT", "3"), {query.Text("HR"), nil}},
		HeaderIncluded: true,
	}
	if got := FormatRows(rs); got != "[IT 3]\n[HR NULL]" {
		t.Fatalf("FormatRows() = %q", got)
	}
	if got := FormatRows(query.RowSet{}); got != NoRowsPlaceholder {
		t.Fatalf("FormatRows(empty) = %q", got)
	}
}
