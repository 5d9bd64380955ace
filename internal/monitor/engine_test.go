package monitor

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

// mockSource implements Source for testing.
type mockSource struct {
	name  string
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (m *mockSource) Name() string { return m.name }
func (m *mockSource) URL() string  { return "https://example.com" }

func (m *mockSource) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	n := m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &Snapshot{
		Source:    m.name,
		Metrics:   map[string]float64{"test_metric": float64(n)},
		FetchedAt: time.Now(),
	}, nil
}

type fakeRecorder struct {
	store.NoopRecorder
	mu      sync.Mutex
	sources []string
}

func (f *fakeRecorder) RecordSnapshot(_ context.Context, source string, _ map[string]float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type delivery struct {
	seq  uint64
	snap *Snapshot
}

func collect() (SnapshotFunc, chan delivery) {
	ch := make(chan delivery, 16)
	return func(_ context.Context, seq uint64, snap *Snapshot) {
		ch <- delivery{seq, snap}
	}, ch
}

func TestEngineRegisterAndSourceNames(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, nil)

	e.Register(&mockSource{name: "src2"}, Schedule{})
	e.Register(&mockSource{name: "src1"}, Schedule{})

	names := e.SourceNames()
	if len(names) != 2 {
		t.Fatalf("len(SourceNames) = %d, want 2", len(names))
	}
	if names[0] != "src1" || names[1] != "src2" {
		t.Errorf("SourceNames = %v, want [src1, src2]", names)
	}

	info := e.Schedules()
	if len(info) != 2 || info[0].Schedule.Group != "src1" || info[0].Schedule.Burst != 1 {
		t.Errorf("Schedules = %+v, want defaulted group and burst", info)
	}
}

func TestEngineGetSnapshotEmpty(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, nil)

	if snap := e.GetSnapshot("nonexistent"); snap != nil {
		t.Errorf("GetSnapshot(nonexistent) = %v, want nil", snap)
	}
}

func TestFetchWithTimeout(t *testing.T) {
	ctx := context.Background()

	fast := &mockSource{name: "fast"}
	snap, err := fetchWithTimeout(ctx, fast.FetchSnapshot, fetchTimeout)
	if err != nil {
		t.Fatalf("fetchWithTimeout(fast) error: %v", err)
	}
	if snap.Source != "fast" {
		t.Errorf("Source = %q, want %q", snap.Source, "fast")
	}

	slow := &mockSource{name: "slow", delay: time.Second}
	if _, err := fetchWithTimeout(ctx, slow.FetchSnapshot, 20*time.Millisecond); err == nil {
		t.Error("fetchWithTimeout(slow) should time out")
	}

	panicky := func(context.Context) (*Snapshot, error) { panic("boom") }
	if _, err := fetchWithTimeout(ctx, panicky, time.Second); err == nil {
		t.Error("panic should surface as an error")
	}

	empty := func(context.Context) (*Snapshot, error) { return nil, nil }
	if _, err := fetchWithTimeout(ctx, empty, time.Second); err == nil {
		t.Error("nil snapshot should be an error")
	}
}

func TestTriggerUnknownSource(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, nil)
	if _, err := e.Trigger("missing"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Trigger(missing) error = %v, want ErrUnknownSource", err)
	}
}

func TestTriggerSequenceAndQueueFull(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, &Options{QueueSize: 2})
	e.Register(&mockSource{name: "a"}, Schedule{})

	s1, err := e.Trigger("a")
	if err != nil {
		t.Fatalf("Trigger 1: %v", err)
	}
	s2, err := e.Trigger("a")
	if err != nil {
		t.Fatalf("Trigger 2: %v", err)
	}
	if s2 <= s1 {
		t.Errorf("sequence not increasing: %d then %d", s1, s2)
	}
	if _, err := e.Trigger("a"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Trigger error = %v, want ErrQueueFull", err)
	}
}

func TestPollDeliversAndRecords(t *testing.T) {
	onSnap, ch := collect()
	rec := &fakeRecorder{}
	e := NewEngine(rec, quietLogger(), onSnap, nil)
	e.Register(&mockSource{name: "a"}, Schedule{})

	e.poll(context.Background(), job{source: "a", seq: 7})

	select {
	case d := <-ch:
		if d.seq != 7 || d.snap.Source != "a" {
			t.Errorf("delivery = %+v", d)
		}
	default:
		t.Fatal("no snapshot delivered")
	}
	if got := e.GetSnapshot("a"); got == nil || got.Metrics["test_metric"] != 1 {
		t.Errorf("GetSnapshot = %+v", got)
	}
	if len(rec.sources) != 1 || rec.sources[0] != "a" {
		t.Errorf("recorded = %v", rec.sources)
	}
}

func TestPollKeepsNewestSnapshot(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, nil)
	e.Register(&mockSource{name: "a"}, Schedule{})
	ctx := context.Background()

	e.poll(ctx, job{source: "a", seq: 5})
	e.poll(ctx, job{source: "a", seq: 3})

	if got := e.GetSnapshot("a").Metrics["test_metric"]; got != 1 {
		t.Errorf("older issuance replaced the cache: test_metric = %v, want 1", got)
	}
	if e.Schedules()[0].LastSeq != 5 {
		t.Errorf("LastSeq = %d, want 5", e.Schedules()[0].LastSeq)
	}
}

func TestPollErrorSkipsUpdate(t *testing.T) {
	onSnap, ch := collect()
	e := NewEngine(nil, quietLogger(), onSnap, nil)
	e.Register(&mockSource{name: "bad", err: errors.New("upstream 500")}, Schedule{})

	e.poll(context.Background(), job{source: "bad", seq: 1})

	if len(ch) != 0 {
		t.Error("failed fetch must not deliver a snapshot")
	}
	if e.GetSnapshot("bad") != nil {
		t.Error("failed fetch must not populate the cache")
	}
	if e.Schedules()[0].LastError == "" {
		t.Error("LastError should be set")
	}
}

func TestPollRespectsGroupLimiter(t *testing.T) {
	e := NewEngine(nil, quietLogger(), nil, nil)
	a := &mockSource{name: "a"}
	b := &mockSource{name: "b"}
	e.Register(a, Schedule{Group: "coingecko", Rate: 0.001, Burst: 1})
	e.Register(b, Schedule{Group: "coingecko"})

	e.poll(context.Background(), job{source: "a", seq: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e.poll(ctx, job{source: "b", seq: 2})

	if a.calls.Load() != 1 || b.calls.Load() != 0 {
		t.Errorf("calls a=%d b=%d, want 1 and 0", a.calls.Load(), b.calls.Load())
	}
}

func TestRunSchedulesPolls(t *testing.T) {
	onSnap, ch := collect()
	e := NewEngine(nil, quietLogger(), onSnap, nil)
	src := &mockSource{name: "ticking"}
	off := &mockSource{name: "off"}
	e.Register(src, Schedule{StartDelay: 5 * time.Millisecond, Interval: 20 * time.Millisecond})
	e.Register(off, Schedule{Disabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case d := <-ch:
			if d.seq <= last {
				t.Errorf("seq %d not after %d", d.seq, last)
			}
			last = d.seq
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for poll %d", i+1)
		}
	}
	cancel()
	<-done

	if off.calls.Load() != 0 {
		t.Errorf("disabled source polled %d times", off.calls.Load())
	}
}
