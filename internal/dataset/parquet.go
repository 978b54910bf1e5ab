package dataset

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/opsassist/opsassist/internal/storage"
)

func EncodeParquet(tickets []Ticket) ([]byte, error) {
	if len(tickets) == 0 {
		return nil, fmt.Errorf("tickets are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Ticket](buf)
	if _, err := writer.Write(tickets); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func WriteFile(path string, tickets []Ticket) error {
	payload, err := EncodeParquet(tickets)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// Upload splits tickets into parquet parts of at most perFile rows and puts
// them under the dataset prefix for database.table. It returns the keys.
func Upload(ctx context.Context, store storage.ObjectStore, database, table string, tickets []Ticket, perFile int) ([]string, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if perFile <= 0 {
		perFile = len(tickets)
	}
	var keys []string
	for part, start := 0, 0; start < len(tickets); part, start = part+1, start+perFile {
		end := start + perFile
		if end > len(tickets) {
			end = len(tickets)
		}
		payload, err := EncodeParquet(tickets[start:end])
		if err != nil {
			return nil, err
		}
		key, err := storage.BuildDatasetFilePath(database, table, part)
		if err != nil {
			return nil, err
		}
		if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
			return nil, fmt.Errorf("upload %q: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
