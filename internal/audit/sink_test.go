package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/trustgate/trustgate/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store for exercising the sinks without a database.
type memStore struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	failing bool
	block   chan struct{} // when non-nil, InsertAudit waits on it
}

func (m *memStore) InsertAudit(ctx context.Context, e *model.AuditEntry) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk on fire")
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) PurgeAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.AuditEntry
	var purged int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestAsyncSinkWrites(t *testing.T) {
	store := &memStore{}
	sink := NewAsyncSink(store, testLogger(), 16, time.Second)

	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), model.AuditEntry{
			Action: model.ActionLogin, Status: model.StatusSuccess,
		})
	}
	sink.Close()

	if got := store.count(); got != 5 {
		t.Errorf("persisted %d entries, want 5", got)
	}
}

func TestAsyncSinkCloseDrains(t *testing.T) {
	store := &memStore{}
	sink := NewAsyncSink(store, testLogger(), 64, time.Second)

	for i := 0; i < 50; i++ {
		sink.Record(context.Background(), model.AuditEntry{Action: model.ActionCreate, Status: model.StatusSuccess})
	}
	sink.Close()

	if got := store.count(); got != 50 {
		t.Errorf("Close lost entries: persisted %d, want 50", got)
	}

	// Close is idempotent.
	sink.Close()
}

func TestAsyncSinkSwallowsWriteFailure(t *testing.T) {
	store := &memStore{failing: true}
	sink := NewAsyncSink(store, testLogger(), 16, time.Second)

	// Record must not panic or block when every write fails.
	sink.Record(context.Background(), model.AuditEntry{Action: model.ActionLogin, Status: model.StatusSuccess})
	sink.Close()

	if got := store.count(); got != 0 {
		t.Errorf("failing store persisted %d entries", got)
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	store := &memStore{block: block}
	sink := NewAsyncSink(store, testLogger(), 2, time.Minute)

	// First entry occupies the writer; two more fill the buffer; the rest
	// must be dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			sink.Record(context.Background(), model.AuditEntry{Action: model.ActionLogin, Status: model.StatusSuccess})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(block)
	sink.Close()

	if got := store.count(); got > 3 {
		t.Errorf("persisted %d entries, want at most 3 (1 in flight + 2 buffered)", got)
	}
}

func TestSyncSink(t *testing.T) {
	store := &memStore{}
	sink := &SyncSink{Store: store, Logger: testLogger()}

	sink.Record(context.Background(), model.AuditEntry{Action: model.ActionDelete, Status: model.StatusSuccess})
	if got := store.count(); got != 1 {
		t.Errorf("persisted %d entries, want 1", got)
	}

	store.failing = true
	sink.Record(context.Background(), model.AuditEntry{Action: model.ActionDelete, Status: model.StatusSuccess})
	if got := store.count(); got != 1 {
		t.Errorf("failure path persisted an entry")
	}
}

func TestRunRetentionPurgesOnStart(t *testing.T) {
	store := &memStore{}
	old := model.AuditEntry{Action: model.ActionLogin, Status: model.StatusSuccess,
		CreatedAt: time.Now().Add(-400 * 24 * time.Hour)}
	recent := model.AuditEntry{Action: model.ActionLogin, Status: model.StatusSuccess,
		CreatedAt: time.Now()}
	store.entries = []model.AuditEntry{old, recent}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunRetention(ctx, store, DefaultRetention, testLogger())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("initial purge did not run: %d entries left", store.count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not stop on cancel")
	}
}
