package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/opsassist/opsassist/internal/storage"
)

type ticket struct {
	TicketID string `parquet:"ticket_id"`
	Priority string `parquet:"priority"`
	Category string `parquet:"category"`
}

func TestOpenServesBothViewNamesFromObjectStore(t *testing.T) {
	first, err := buildParquet([]ticket{{"T-1", "high", "IT"}, {"T-2", "low", "HR"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	second, err := buildParquet([]ticket{{"T-3", "high", "IT Security"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	store := &memoryStore{objects: map[string][]byte{
		"datasets/ops_data/tickets/part-00000.parquet": first,
		"datasets/ops_data/tickets/part-00001.parquet": second,
		"datasets/ops_data/other/part-00000.parquet":   first,
	}}

	engine, err := Open(context.Background(), Config{
		Database:   "ops_data",
		Table:      "tickets",
		ObjectKeys: []string{"datasets/ops_data/tickets/"},
		Store:      store,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = engine.Close() }()

	for _, sql := range []string{
		"SELECT COUNT(*) AS c FROM tickets",
		"SELECT COUNT(*) AS c FROM ops_data.tickets;",
	} {
		rs, err := engine.Execute(context.Background(), sql)
		if err != nil {
			t.Fatalf("Execute(%q) error = %v", sql, err)
		}
		if len(rs.Rows) != 1 || rs.Rows[0].String() != "[3]" {
			t.Fatalf("Execute(%q) rows = %v", sql, rs.Rows)
		}
	}

	rs, err := engine.Execute(context.Background(), "SELECT category FROM tickets WHERE category LIKE 'IT%' ORDER BY category")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rs.Rows) != 2 || rs.Rows[1].String() != "[IT Security]" {
		t.Fatalf("rows = %v", rs.Rows)
	}
}

func TestOpenReadsLocalFiles(t *testing.T) {
	payload, err := buildParquet([]ticket{{"T-1", "high", "IT"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "tickets.parquet")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	engine, err := Open(context.Background(), Config{Table: "tickets", Files: []string{path}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = engine.Close() }()

	rs, err := engine.Execute(context.Background(), "SELECT ticket_id FROM tickets WHERE priority = 'low'")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rs.Rows) != 0 || rs.HeaderIncluded {
		t.Fatalf("RowSet = %#v", rs)
	}
}

func TestOpenRequiresFiles(t *testing.T) {
	if _, err := Open(context.Background(), Config{Table: "tickets"}); err == nil {
		t.Fatal("expected error without files")
	}
	if _, err := Open(context.Background(), Config{Table: "tickets", ObjectKeys: []string{"a.parquet"}}); err == nil {
		t.Fatal("expected error without object store")
	}
}

func TestDownloadObject(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{objects: map[string][]byte{"datasets/a.parquet": []byte("PAR1")}}

	path := filepath.Join(dir, "a_0.parquet")
	if err := downloadObject(context.Background(), store, "datasets/a.parquet", path); err != nil {
		t.Fatalf("downloadObject() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "PAR1" {
		t.Fatalf("local copy = %q, %v", got, err)
	}

	missing := filepath.Join(dir, "missing_1.parquet")
	err = downloadObject(context.Background(), store, "datasets/missing.parquet", missing)
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("downloadObject(missing) error = %v", err)
	}
	if _, statErr := os.Stat(missing); !os.IsNotExist(statErr) {
		t.Fatalf("missing object left a local file: %v", statErr)
	}
}

func TestDownloadObjectRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b_0.parquet")
	err := downloadObject(context.Background(), brokenStore{&memoryStore{}}, "datasets/b.parquet", path)
	if err == nil || !strings.Contains(err.Error(), `download object "datasets/b.parquet"`) {
		t.Fatalf("downloadObject() error = %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("partial file not removed: %v", statErr)
	}
}

func buildParquet(rows []ticket) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[ticket](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Delete(context.Context, string) error {
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, payload := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(payload))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type brokenStore struct {
	*memoryStore
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func (brokenStore) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("PAR"), brokenReader{})), nil
}
