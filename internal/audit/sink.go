// Package audit provides the append-only decision ledger. Every gate
// decision produces exactly one entry; writing the entry must never delay or
// abort the request that triggered it, so the store-backed sink is
// asynchronous with a bounded buffer and a short per-write timeout.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trustgate/trustgate/internal/metrics"
	"github.com/trustgate/trustgate/internal/model"
)

// Store is the slice of the persistence layer the audit package needs.
type Store interface {
	InsertAudit(ctx context.Context, e *model.AuditEntry) error
	PurgeAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sink receives audit entries. Implementations must not block the caller
// beyond a trivial enqueue and must swallow persistence failures.
type Sink interface {
	Record(ctx context.Context, e model.AuditEntry)
}

// DefaultBuffer is the sink queue size when none is configured.
const DefaultBuffer = 1024

// DefaultWriteTimeout bounds a single audit write.
const DefaultWriteTimeout = 2 * time.Second

// AsyncSink persists entries through a buffered channel and one writer
// goroutine. A full buffer drops the entry with a diagnostic log rather than
// applying backpressure to the admission path.
type AsyncSink struct {
	store        Store
	logger       *slog.Logger
	ch           chan model.AuditEntry
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncSink starts the writer goroutine and returns the sink. Call Close
// to drain and stop it.
func NewAsyncSink(store Store, logger *slog.Logger, buffer int, writeTimeout time.Duration) *AsyncSink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	s := &AsyncSink{
		store:        store,
		logger:       logger,
		ch:           make(chan model.AuditEntry, buffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues the entry. The request context is not used for the write
// itself because the entry must outlive the request; only enqueue happens here.
func (s *AsyncSink) Record(_ context.Context, e model.AuditEntry) {
	select {
	case s.ch <- e:
		metrics.AuditQueueDepth.Set(float64(len(s.ch)))
	default:
		metrics.AuditDropped.Inc()
		s.logger.Warn("audit buffer full, entry dropped",
			"action", e.Action, "status", e.Status, "actor", e.ActorName)
	}
}

// Close stops accepting entries, drains the buffer, and returns once the
// writer goroutine has exited.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		<-s.done
	})
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.ch {
		metrics.AuditQueueDepth.Set(float64(len(s.ch)))
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.store.InsertAudit(ctx, &e)
		cancel()
		if err != nil {
			// Availability of the protected action outranks its audit trail:
			// the failure is logged and the entry is gone.
			metrics.AuditDropped.Inc()
			s.logger.Error("audit write failed",
				"action", e.Action, "status", e.Status, "error", err)
			continue
		}
		metrics.AuditWritten.Inc()
	}
}

// SyncSink writes entries inline. Used by tests and by CLI commands where
// there is no request hot path to protect.
type SyncSink struct {
	Store  Store
	Logger *slog.Logger
}

// Record persists the entry immediately, logging any failure.
func (s *SyncSink) Record(ctx context.Context, e model.AuditEntry) {
	if err := s.Store.InsertAudit(ctx, &e); err != nil {
		metrics.AuditDropped.Inc()
		if s.Logger != nil {
			s.Logger.Error("audit write failed", "action", e.Action, "error", err)
		}
		return
	}
	metrics.AuditWritten.Inc()
}
