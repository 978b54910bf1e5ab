package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const (
	answersRoot  = "answers"
	datasetsRoot = "datasets"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAnswerPath places an archived answer under a daily partition:
// answers/date=YYYY-MM-DD/answer-<unixnano>.parquet.
func BuildAnswerPath(answeredAt time.Time) string {
	ts := answeredAt.UTC()
	return path.Join(
		answersRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("answer-%d.parquet", ts.UnixNano()),
	)
}

// DatasetPrefix is where seed parquet files for database.table live.
func DatasetPrefix(database, table string) (string, error) {
	if err := validatePathComponent(table, "table name"); err != nil {
		return "", err
	}
	if database == "" {
		return path.Join(datasetsRoot, table) + "/", nil
	}
	if err := validatePathComponent(database, "database name"); err != nil {
		return "", err
	}
	return path.Join(datasetsRoot, database, table) + "/", nil
}

func BuildDatasetFilePath(database, table string, sequence int) (string, error) {
	prefix, err := DatasetPrefix(database, table)
	if err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(prefix, fmt.Sprintf("part-%05d.parquet", sequence)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
