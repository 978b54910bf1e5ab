package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/opsassist/opsassist/internal/storage"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	a := NewGenerator(42).Generate(20)
	b := NewGenerator(42).Generate(20)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different tickets")
	}
	if a[0].TicketID != "TCK-000001" || a[19].TicketID != "TCK-000020" {
		t.Fatalf("ticket ids = %q..%q", a[0].TicketID, a[19].TicketID)
	}
}

func TestGeneratorRoutesAreConsistent(t *testing.T) {
	owners := map[string]map[string]bool{}
	for _, r := range routes {
		owners[r.category] = map[string]bool{}
		for _, owner := range r.assignedTo {
			owners[r.category][owner] = true
		}
	}
	for _, ticket := range NewGenerator(7).Generate(200) {
		if !owners[ticket.Category][ticket.AssignedTo] {
			t.Fatalf("ticket %s: %q is not an owner of %q", ticket.TicketID, ticket.AssignedTo, ticket.Category)
		}
		switch ticket.Priority {
		case "high", "medium", "low":
		default:
			t.Fatalf("priority = %q", ticket.Priority)
		}
	}
}

func TestEncodeParquetRoundTripsRows(t *testing.T) {
	tickets := NewGenerator(1).Generate(3)
	payload, err := EncodeParquet(tickets)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	reader := parquet.NewGenericReader[Ticket](bytes.NewReader(payload))
	defer func() { _ = reader.Close() }()
	rows := make([]Ticket, 3)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 3 || rows[2] != tickets[2] {
		t.Fatalf("read %d rows, last = %#v", count, rows[2])
	}
	if _, err := EncodeParquet(nil); err == nil {
		t.Fatal("expected error for no tickets")
	}
}

type recordingStore struct {
	keys []string
}

func (r *recordingStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	_, _ = io.Copy(io.Discard, body)
	r.keys = append(r.keys, key)
	return storage.ObjectInfo{Key: key}, nil
}

func (r *recordingStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (r *recordingStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (r *recordingStore) Delete(context.Context, string) error {
	return nil
}

func (r *recordingStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func TestUploadSplitsIntoParts(t *testing.T) {
	store := &recordingStore{}
	keys, err := Upload(context.Background(), store, "ops_data", "tickets", NewGenerator(3).Generate(25), 10)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	want := []string{
		"datasets/ops_data/tickets/part-00000.parquet",
		"datasets/ops_data/tickets/part-00001.parquet",
		"datasets/ops_data/tickets/part-00002.parquet",
	}
	if !reflect.DeepEqual(keys, want) || !reflect.DeepEqual(store.keys, want) {
		t.Fatalf("keys = %#v", keys)
	}
}
