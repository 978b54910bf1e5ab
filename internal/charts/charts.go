// Package charts runs the predefined dashboard queries.
package charts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opsassist/opsassist/internal/query"
)

var ErrUnknownChart = errors.New("unknown chart")

const TotalTicketsKey = "total_tickets"

type Chart struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	// Dashboard is false for the headline total, which is not a bar chart.
	Dashboard bool `json:"dashboard"`
	sql       string
}

// %[1]s is replaced by the qualified table name.
var catalog = []Chart{
	{Key: TotalTicketsKey, Title: "Total tickets", sql: `SELECT COUNT(*) AS total_tickets FROM %[1]s`},
	{Key: "tickets_by_priority", Title: "Tickets by priority", Dashboard: true, sql: `SELECT priority, COUNT(*) AS ticket_count
FROM %[1]s
GROUP BY priority
ORDER BY ticket_count DESC`},
	{Key: "tickets_by_category", Title: "Tickets by category", Dashboard: true, sql: `SELECT category, COUNT(*) AS ticket_count
FROM %[1]s
GROUP BY category
ORDER BY ticket_count DESC`},
	{Key: "high_priority_by_category", Title: "High priority by category", Dashboard: true, sql: `SELECT category, COUNT(*) AS high_priority_tickets
FROM %[1]s
WHERE priority = 'high'
GROUP BY category
ORDER BY high_priority_tickets DESC`},
	{Key: "tickets_by_owner", Title: "Tickets by owner", Dashboard: true, sql: `SELECT assigned_to, COUNT(*) AS ticket_count
FROM %[1]s
GROUP BY assigned_to
ORDER BY ticket_count DESC`},
}

type Table struct {
	Key     string     `json:"key"`
	Title   string     `json:"title"`
	SQL     string     `json:"sql"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type Service struct {
	engine query.Engine
	table  string
}

// NewService runs charts against table, usually "database.table".
func NewService(engine query.Engine, table string) *Service {
	return &Service{engine: engine, table: table}
}

func (s *Service) Charts() []Chart {
	return append([]Chart(nil), catalog...)
}

func (s *Service) SQL(key string) (string, error) {
	chart, ok := lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChart, key)
	}
	return fmt.Sprintf(chart.sql, s.table), nil
}

func (s *Service) Run(ctx context.Context, key string) (Table, error) {
	chart, ok := lookup(key)
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownChart, key)
	}
	sql := fmt.Sprintf(chart.sql, s.table)
	rs, err := s.engine.Execute(ctx, sql)
	if err != nil {
		return Table{}, fmt.Errorf("run chart %q: %w", key, err)
	}

	table := Table{Key: chart.Key, Title: chart.Title, SQL: sql, Columns: rs.Columns, Rows: [][]string{}}
	for _, row := range rs.DataRows() {
		table.Rows = append(table.Rows, row.Strings())
	}
	return table, nil
}

func (s *Service) TotalTickets(ctx context.Context) (int64, error) {
	table, err := s.Run(ctx, TotalTicketsKey)
	if err != nil {
		return 0, err
	}
	if len(table.Rows) == 0 || len(table.Rows[0]) == 0 {
		return 0, fmt.Errorf("total tickets query returned no rows")
	}
	total, err := strconv.ParseInt(strings.TrimSpace(table.Rows[0][0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse total tickets %q: %w", table.Rows[0][0], err)
	}
	return total, nil
}

func lookup(key string) (Chart, bool) {
	for _, chart := range catalog {
		if chart.Key == key {
			return chart, true
		}
	}
	return Chart{}, false
}
