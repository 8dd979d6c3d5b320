package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/complyon/abac"
)

// BufferedAuditSink decorates another sink with a bounded queue and a
// background writer. It trades the engine's synchronous durability guarantee
// for latency: a decision may be returned before its audit row is durable.
// Entries are delivered at least once; a full queue fails Record rather than
// dropping the entry, preserving fail-closed behavior.
type BufferedAuditSink struct {
	next abac.AuditSink
	ch   chan *abac.PermissionAudit

	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	writeErr error
}

// NewBufferedAuditSink starts the background writer. size bounds the queue;
// values below 1 default to 256.
func NewBufferedAuditSink(next abac.AuditSink, size int) *BufferedAuditSink {
	if size < 1 {
		size = 256
	}
	s := &BufferedAuditSink{
		next: next,
		ch:   make(chan *abac.PermissionAudit, size),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *BufferedAuditSink) drain() {
	defer s.wg.Done()
	ctx := context.Background()
	for entry := range s.ch {
		if err := s.next.Record(ctx, entry); err != nil {
			s.mu.Lock()
			s.writeErr = err
			s.mu.Unlock()
		}
	}
}

// Record enqueues the entry. It fails when the queue is full or the sink has
// seen a downstream write error since the last Record, so persistent sink
// outages surface to callers instead of silently losing records.
func (s *BufferedAuditSink) Record(ctx context.Context, entry *abac.PermissionAudit) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audit sink closed")
	}
	if err := s.writeErr; err != nil {
		s.writeErr = nil
		s.mu.Unlock()
		return fmt.Errorf("buffered audit writer: %w", err)
	}
	s.mu.Unlock()

	select {
	case s.ch <- entry:
		return nil
	default:
		return fmt.Errorf("audit queue full")
	}
}

// Close stops accepting entries and blocks until the queue is flushed.
func (s *BufferedAuditSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ch)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
