package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. The compliance retention contract
// still applies: nothing is removed except through Prune.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(rec))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.records[i]
		if f.Subject != "" && rec.Subject != f.Subject {
			continue
		}
		if f.Resource != "" && rec.Resource != f.Resource {
			continue
		}
		if f.Outcome != "" && rec.Outcome != f.Outcome {
			continue
		}
		if !f.From.IsZero() && rec.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.OccurredAt.After(f.To) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if rec.OccurredAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

func cloneRecord(rec Record) Record {
	if rec.Details == nil {
		return rec
	}
	details := make(map[string]any, len(rec.Details))
	for k, v := range rec.Details {
		details[k] = v
	}
	rec.Details = details
	return rec
}
