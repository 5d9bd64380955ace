package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/store"
)

type fakeBackend struct {
	store.NoopRecorder

	mu      sync.Mutex
	fail    bool
	written []string
	cleaned atomic.Int32
}

func (f *fakeBackend) RecordSnapshot(_ context.Context, source string, _ map[string]float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.written = append(f.written, source)
	return nil
}

func (f *fakeBackend) CleanupOldSnapshots(context.Context, time.Duration) (int64, error) {
	f.cleaned.Add(1)
	return 3, nil
}

func (f *fakeBackend) sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlushWritesBufferedSnapshots(t *testing.T) {
	b := &fakeBackend{}
	c := New(b, quietLogger())
	ctx := context.Background()

	_ = c.RecordSnapshot(ctx, "defillama", map[string]float64{"defi_tvl": 1}, time.Now())
	_ = c.RecordSnapshot(ctx, "growthepie", map[string]float64{"daa": 2}, time.Now())
	if got := c.Pending(); got != 2 {
		t.Fatalf("Pending = %d, want 2", got)
	}
	if len(b.sources()) != 0 {
		t.Fatal("RecordSnapshot wrote through before a flush")
	}

	c.Flush(ctx)
	if got := b.sources(); len(got) != 2 || got[0] != "defillama" || got[1] != "growthepie" {
		t.Errorf("written = %v", got)
	}
	if c.Pending() != 0 {
		t.Error("buffer not drained")
	}
}

func TestFlushFailureKeepsSnapshots(t *testing.T) {
	b := &fakeBackend{fail: true}
	c := New(b, quietLogger())
	ctx := context.Background()

	_ = c.RecordSnapshot(ctx, "defillama", nil, time.Now())
	c.Flush(ctx)
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d after failed flush, want 1", c.Pending())
	}

	b.mu.Lock()
	b.fail = false
	b.mu.Unlock()
	c.Flush(ctx)
	if c.Pending() != 0 || len(b.sources()) != 1 {
		t.Errorf("retry flush: pending %d, written %v", c.Pending(), b.sources())
	}
}

func TestRecordSnapshotCopiesMetrics(t *testing.T) {
	c := New(&fakeBackend{}, quietLogger())
	m := map[string]float64{"daa": 1}
	_ = c.RecordSnapshot(context.Background(), "growthepie", m, time.Now())
	m["daa"] = 99
	if c.buffer[0].metrics["daa"] != 1 {
		t.Error("buffered metrics alias the caller's map")
	}
}

func TestBufferDropsOldest(t *testing.T) {
	c := New(&fakeBackend{}, quietLogger())
	ctx := context.Background()
	for i := 0; i < maxBuffered+5; i++ {
		_ = c.RecordSnapshot(ctx, "s", nil, time.Unix(int64(i), 0))
	}
	if c.Pending() != maxBuffered {
		t.Fatalf("Pending = %d, want %d", c.Pending(), maxBuffered)
	}
	if got := c.buffer[0].at.Unix(); got != 5 {
		t.Errorf("oldest kept = %d, want 5", got)
	}
}

func TestRunFlushesAndCleansUp(t *testing.T) {
	b := &fakeBackend{}
	c := New(b, quietLogger())
	c.FlushInterval = 10 * time.Millisecond
	c.CleanupEvery = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	_ = c.RecordSnapshot(ctx, "defillama", nil, time.Now())
	deadline := time.After(2 * time.Second)
	for len(b.sources()) == 0 || b.cleaned.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("written %v, cleanups %d", b.sources(), b.cleaned.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = c.RecordSnapshot(context.Background(), "growthepie", nil, time.Now())
	cancel()
	<-done
	if got := b.sources(); got[len(got)-1] != "growthepie" {
		t.Errorf("final flush missing, written = %v", got)
	}
}
