package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/opsassist/opsassist/internal/storage"
)

type memoryStore struct {
	objects map[string][]byte
	putErr  error
	lastPut storage.PutOptions
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = payload
	m.lastPut = opts
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
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

func (m *memoryStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func TestArchiveWritesParquetUnderDailyPartition(t *testing.T) {
	store := &memoryStore{}
	archiver := New(store)
	answeredAt := time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC)
	twelve := "12"

	key, err := archiver.Archive(context.Background(), Record{
		Question:   "how many tickets are high priority",
		SQL:        "SELECT COUNT(*) AS high_count FROM tickets WHERE priority = 'high'",
		Summary:    "There are 12 high priority tickets.",
		Attempts:   2,
		AnsweredAt: answeredAt,
		Columns:    []string{"high_count"},
		Rows:       [][]*string{{&twelve}, {nil}},
	})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if !strings.HasPrefix(key, "answers/date=2026-03-04/answer-") {
		t.Fatalf("key = %q", key)
	}
	if store.lastPut.ContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", store.lastPut.ContentType)
	}

	record, err := archiver.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if record.Attempts != 2 || record.SQL != "SELECT COUNT(*) AS high_count FROM tickets WHERE priority = 'high'" {
		t.Fatalf("record = %#v", record)
	}
	if !record.AnsweredAt.Equal(answeredAt) {
		t.Fatalf("AnsweredAt = %s", record.AnsweredAt)
	}
	if len(record.Rows) != 2 || *record.Rows[0][0] != "12" || record.Rows[1][0] != nil {
		t.Fatalf("Rows = %#v", record.Rows)
	}
}

func TestArchiveDefaultsAnsweredAt(t *testing.T) {
	store := &memoryStore{}
	archiver := New(store)
	archiver.now = func() time.Time { return time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC) }

	key, err := archiver.Archive(context.Background(), Record{Question: "q"})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if !strings.HasPrefix(key, "answers/date=2026-01-02/") {
		t.Fatalf("key = %q", key)
	}
}

func TestArchiveWrapsStoreError(t *testing.T) {
	store := &memoryStore{putErr: errors.New("bucket gone")}
	if _, err := New(store).Archive(context.Background(), Record{Question: "q"}); err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Fatalf("Archive() error = %v", err)
	}
}
