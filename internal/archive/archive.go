// Package archive stores every accepted answer as a one-row parquet file in
// the object store, partitioned by day.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/opsassist/opsassist/internal/storage"
)

type Record struct {
	Question   string
	SQL        string
	Summary    string
	Attempts   int
	AnsweredAt time.Time
	Columns    []string
	Rows       [][]*string
}

type parquetAnswer struct {
	Question         string `parquet:"question"`
	SQL              string `parquet:"sql"`
	Summary          string `parquet:"summary"`
	Attempts         int32  `parquet:"attempts"`
	AnsweredAtUnixMs int64  `parquet:"answered_at_unix_ms"`
	ColumnsJSON      string `parquet:"columns_json"`
	RowsJSON         string `parquet:"rows_json"`
	RowCount         int64  `parquet:"row_count"`
}

type Archiver struct {
	store storage.ObjectStore
	now   func() time.Time
}

func New(store storage.ObjectStore) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// Archive writes record and returns its object key.
func (a *Archiver) Archive(ctx context.Context, record Record) (string, error) {
	if a.store == nil {
		return "", fmt.Errorf("object store is required")
	}
	if record.AnsweredAt.IsZero() {
		record.AnsweredAt = a.now()
	}
	payload, err := Encode(record)
	if err != nil {
		return "", err
	}
	key := storage.BuildAnswerPath(record.AnsweredAt)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
		return "", fmt.Errorf("archive answer: %w", err)
	}
	return key, nil
}

func Encode(record Record) ([]byte, error) {
	columnsJSON, err := json.Marshal(record.Columns)
	if err != nil {
		return nil, fmt.Errorf("marshal columns: %w", err)
	}
	rows := record.Rows
	if rows == nil {
		rows = [][]*string{}
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetAnswer](buf)
	if _, err := writer.Write([]parquetAnswer{{
		Question:         record.Question,
		SQL:              record.SQL,
		Summary:          record.Summary,
		Attempts:         int32(record.Attempts),
		AnsweredAtUnixMs: record.AnsweredAt.UTC().UnixMilli(),
		ColumnsJSON:      string(columnsJSON),
		RowsJSON:         string(rowsJSON),
		RowCount:         int64(len(record.Rows)),
	}}); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads an archived answer back.
func (a *Archiver) Load(ctx context.Context, key string) (Record, error) {
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("get archived answer %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return Record{}, fmt.Errorf("read archived answer %q: %w", key, err)
	}
	return Decode(payload)
}

func Decode(payload []byte) (Record, error) {
	reader := parquet.NewGenericReader[parquetAnswer](bytes.NewReader(payload))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetAnswer, 1)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return Record{}, fmt.Errorf("read parquet rows: %w", err)
	}
	if count != 1 {
		return Record{}, fmt.Errorf("archived answer has %d rows, want 1", count)
	}
	row := rows[0]

	record := Record{
		Question:   row.Question,
		SQL:        row.SQL,
		Summary:    row.Summary,
		Attempts:   int(row.Attempts),
		AnsweredAt: time.UnixMilli(row.AnsweredAtUnixMs).UTC(),
	}
	if err := json.Unmarshal([]byte(row.ColumnsJSON), &record.Columns); err != nil {
		return Record{}, fmt.Errorf("decode columns: %w", err)
	}
	if err := json.Unmarshal([]byte(row.RowsJSON), &record.Rows); err != nil {
		return Record{}, fmt.Errorf("decode rows: %w", err)
	}
	return record, nil
}
