package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct {
	MemoryStore
	fail bool
}

func (s *failingStore) Append(ctx context.Context, rec Record) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Append(ctx, rec)
}

func TestSinkSyncWriteForDenied(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store)
	defer sink.Close()
	ctx := context.Background()

	if err := sink.Record(ctx, Record{
		EventType: "access_denied",
		Subject:   "user-1",
		Resource:  "/api/payroll/run",
		Action:    "post",
		Outcome:   OutcomeDenied,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Synchronous path: the record is queryable immediately.
	got, err := store.Query(ctx, Filter{Outcome: OutcomeDenied})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 denied record, got %d", len(got))
	}
	if got[0].ID == "" || got[0].OccurredAt.IsZero() {
		t.Fatalf("record not enriched: %+v", got[0])
	}
}

func TestSinkSyncWriteSurfacesStoreError(t *testing.T) {
	store := &failingStore{fail: true}
	sink := NewSink(store)
	defer sink.Close()

	err := sink.Record(context.Background(), Record{Outcome: OutcomeDenied})
	if err == nil {
		t.Fatal("denied events must not proceed unaudited when the store fails")
	}
}

func TestSinkAsyncDrains(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := sink.Record(ctx, Record{
			EventType: "access_granted",
			Resource:  "/api/employees",
			Outcome:   OutcomeGranted,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	sink.Close()

	got, err := store.Query(ctx, Filter{Outcome: OutcomeGranted})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 granted records after Close, got %d", len(got))
	}
}

func TestSinkOverflowCallsDropHandler(t *testing.T) {
	block := make(chan struct{})
	store := NewMemoryStore()
	dropped := 0
	sink := NewSink(&blockingStore{store: store, gate: block},
		WithBuffer(1),
		WithDropHandler(func(Record) { dropped++ }))

	ctx := context.Background()
	// First record occupies the writer, second fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		_ = sink.Record(ctx, Record{Outcome: OutcomeGranted})
	}
	if dropped == 0 {
		t.Fatal("expected overflow to reach the drop handler")
	}
	close(block)
	sink.Close()
}

type blockingStore struct {
	store *MemoryStore
	gate  chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, rec Record) error {
	<-s.gate
	return s.store.Append(ctx, rec)
}

func (s *blockingStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	return s.store.Query(ctx, f)
}

func (s *blockingStore) Prune(ctx context.Context, before time.Time) (int, error) {
	return s.store.Prune(ctx, before)
}

func TestSinkRecordAfterClose(t *testing.T) {
	sink := NewSink(NewMemoryStore())
	sink.Close()
	if err := sink.Record(context.Background(), Record{Outcome: OutcomeGranted}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, rec := range []Record{
		{Subject: "user-1", Resource: "/api/employees", Outcome: OutcomeGranted},
		{Subject: "user-2", Resource: "/api/payroll", Outcome: OutcomeDenied},
		{Subject: "user-1", Resource: "/api/payroll", Outcome: OutcomeGranted},
	} {
		rec.ID = string(rune('a' + i))
		rec.OccurredAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Query(ctx, Filter{Subject: "user-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for user-1, got %d", len(got))
	}
	// Most recent first.
	if !got[0].OccurredAt.After(got[1].OccurredAt) {
		t.Fatal("query results are not most-recent-first")
	}

	got, err = store.Query(ctx, Filter{Outcome: OutcomeDenied})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "user-2" {
		t.Fatalf("unexpected denied records: %+v", got)
	}

	got, err = store.Query(ctx, Filter{From: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("time filter failed: %+v", got)
	}
}

func TestMemoryStorePrune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := store.Append(ctx, Record{ID: string(rune('a' + i)), OccurredAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	removed, err := store.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	left, err := store.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(left))
	}
}
