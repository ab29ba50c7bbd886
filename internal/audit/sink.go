package audit

import (
	"context"
	"sync"
	"time"

	"worktracker.org/internal/ids"
	"worktracker.org/internal/obs"
)

const defaultBuffer = 1024

// Sink accepts audit events and forwards them to the store. Denials and
// errors are written synchronously so a guarded request can never proceed
// unaudited; granted/read events go through a bounded buffer so audit-store
// latency stays off the response path. The split is configurable per outcome.
type Sink struct {
	store  Store
	now    func() time.Time
	sync   map[Outcome]bool
	onDrop func(Record)

	mu     sync.Mutex
	ch     chan Record
	closed bool
	wg     sync.WaitGroup
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithBuffer sets the async queue capacity.
func WithBuffer(n int) SinkOption {
	return func(s *Sink) {
		if n > 0 {
			s.ch = make(chan Record, n)
		}
	}
}

// WithSyncOutcomes selects which outcomes are written synchronously.
func WithSyncOutcomes(outcomes ...Outcome) SinkOption {
	return func(s *Sink) {
		s.sync = make(map[Outcome]bool, len(outcomes))
		for _, o := range outcomes {
			s.sync[o] = true
		}
	}
}

// WithDropHandler observes events lost to backpressure.
func WithDropHandler(fn func(Record)) SinkOption {
	return func(s *Sink) {
		if fn != nil {
			s.onDrop = fn
		}
	}
}

// WithSinkClock overrides the time source (useful for tests).
func WithSinkClock(fn func() time.Time) SinkOption {
	return func(s *Sink) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSink starts the drain goroutine and returns a ready sink.
func NewSink(store Store, opts ...SinkOption) *Sink {
	s := &Sink{
		store: store,
		now:   time.Now,
		sync:  map[Outcome]bool{OutcomeDenied: true, OutcomeError: true},
		onDrop: func(Record) {
			obs.AuditEventDropped()
		},
		ch: make(chan Record, defaultBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Record appends an event. The ID and timestamp are filled in if missing.
// For synchronous outcomes the store error is returned to the caller;
// buffered events report overflow through the drop handler instead.
func (s *Sink) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = s.now().UTC()
	}

	if s.sync[rec.Outcome] {
		return s.store.Append(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- rec:
	default:
		s.onDrop(rec)
	}
	return nil
}

// Query passes through to the store.
func (s *Sink) Query(ctx context.Context, f Filter) ([]Record, error) {
	return s.store.Query(ctx, f)
}

// Prune removes records older than the retention window. Explicit
// administrative operation, never run implicitly.
func (s *Sink) Prune(ctx context.Context, retention time.Duration) (int, error) {
	return s.store.Prune(ctx, s.now().Add(-retention))
}

// Close drains buffered events and stops the writer.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for rec := range s.ch {
		if err := s.store.Append(context.Background(), rec); err != nil {
			obs.LogError("audit append failed", map[string]any{
				"event_type": rec.EventType,
				"outcome":    string(rec.Outcome),
				"err":        err.Error(),
			})
		}
	}
}
