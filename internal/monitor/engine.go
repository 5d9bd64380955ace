package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/web3-frozen/eth-terminal/internal/metrics"
	"github.com/web3-frozen/eth-terminal/internal/store"
)

const (
	fetchTimeout     = 30 * time.Second
	defaultWorkers   = 4
	defaultQueueSize = 32
)

var (
	// ErrUnknownSource is returned by Trigger for a name that was never registered.
	ErrUnknownSource = errors.New("unknown source")
	// ErrQueueFull is returned when an issuance is dropped.
	ErrQueueFull = errors.New("poll queue full")
)

// Options tunes the worker pool. Zero values pick defaults.
type Options struct {
	Workers      int
	QueueSize    int
	FetchTimeout time.Duration
}

type job struct {
	source string
	seq    uint64
}

// SourceInfo describes a registered source for the stats endpoints.
type SourceInfo struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Schedule    Schedule  `json:"schedule"`
	LastSeq     uint64    `json:"last_seq"`
	LastFetched time.Time `json:"last_fetched,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Engine polls registered data sources on their schedules. Issuances go
// through a bounded queue drained by a fixed pool of workers; each job waits
// for its group's token bucket before fetching.
type Engine struct {
	recorder store.Recorder
	logger   *slog.Logger
	onSnap   SnapshotFunc
	opts     Options

	sources   map[string]Source
	schedules map[string]Schedule
	limiters  map[string]*rate.Limiter

	queue chan job
	seq   atomic.Uint64

	mu       sync.RWMutex
	lastSnap map[string]*Snapshot
	lastSeq  map[string]uint64
	lastErr  map[string]string
}

func NewEngine(rec store.Recorder, logger *slog.Logger, onSnap SnapshotFunc, opts *Options) *Engine {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = fetchTimeout
	}
	if rec == nil {
		rec = store.NoopRecorder{}
	}
	return &Engine{
		recorder:  rec,
		logger:    logger,
		onSnap:    onSnap,
		opts:      o,
		sources:   make(map[string]Source),
		schedules: make(map[string]Schedule),
		limiters:  make(map[string]*rate.Limiter),
		queue:     make(chan job, o.QueueSize),
		lastSnap:  make(map[string]*Snapshot),
		lastSeq:   make(map[string]uint64),
		lastErr:   make(map[string]string),
	}
}

// Register adds a data source to the engine. Sources in the same Group share
// the limiter created by the first of them to register. Register must not be
// called after Run.
func (e *Engine) Register(src Source, sched Schedule) {
	name := src.Name()
	if sched.Group == "" {
		sched.Group = name
	}
	if sched.Burst < 1 {
		sched.Burst = 1
	}
	if _, ok := e.limiters[sched.Group]; !ok {
		limit := rate.Inf
		if sched.Rate > 0 {
			limit = rate.Limit(sched.Rate)
		}
		e.limiters[sched.Group] = rate.NewLimiter(limit, sched.Burst)
	}
	e.sources[name] = src
	e.schedules[name] = sched
	e.logger.Info("registered source", "source", name, "interval", sched.Interval, "group", sched.Group)
}

// SourceNames returns names of all registered sources, sorted.
func (e *Engine) SourceNames() []string {
	names := make([]string, 0, len(e.sources))
	for n := range e.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schedules reports every registered source with its schedule and last poll state.
func (e *Engine) Schedules() []SourceInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SourceInfo, 0, len(e.sources))
	for _, name := range e.SourceNames() {
		info := SourceInfo{
			Name:      name,
			URL:       e.sources[name].URL(),
			Schedule:  e.schedules[name],
			LastSeq:   e.lastSeq[name],
			LastError: e.lastErr[name],
		}
		if snap := e.lastSnap[name]; snap != nil {
			info.LastFetched = snap.FetchedAt
		}
		out = append(out, info)
	}
	return out
}

// GetSnapshot returns the latest cached snapshot for a source.
func (e *Engine) GetSnapshot(source string) *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnap[source]
}

// Snapshots returns the latest snapshot of every source that has one.
func (e *Engine) Snapshots() map[string]*Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*Snapshot, len(e.lastSnap))
	for k, v := range e.lastSnap {
		out[k] = v
	}
	return out
}

// Trigger issues an immediate poll of one source and returns its sequence number.
func (e *Engine) Trigger(name string) (uint64, error) {
	if _, ok := e.sources[name]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return e.enqueue(name)
}

// Run starts the workers and one timer per enabled source, and blocks until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}
	for _, name := range e.SourceNames() {
		sched := e.schedules[name]
		if sched.Disabled {
			e.logger.Info("source disabled, manual refresh only", "source", name)
			continue
		}
		wg.Add(1)
		go func(name string, sched Schedule) {
			defer wg.Done()
			e.tick(ctx, name, sched)
		}(name, sched)
	}
	wg.Wait()
}

// tick issues the first poll at StartDelay, then every Interval starting at
// StartDelay+Offset+Interval.
func (e *Engine) tick(ctx context.Context, name string, sched Schedule) {
	if !sleep(ctx, sched.StartDelay) {
		return
	}
	e.issue(name)
	if sched.Interval <= 0 {
		return
	}
	if !sleep(ctx, sched.Offset) {
		return
	}
	t := time.NewTicker(sched.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.issue(name)
		}
	}
}

func (e *Engine) issue(name string) {
	if _, err := e.enqueue(name); err != nil {
		e.logger.Warn("poll dropped", "source", name, "error", err)
	}
}

func (e *Engine) enqueue(name string) (uint64, error) {
	seq := e.seq.Add(1)
	select {
	case e.queue <- job{source: name, seq: seq}:
		metrics.QueueDepth.Set(float64(len(e.queue)))
		return seq, nil
	default:
		metrics.PollDropped.WithLabelValues(name).Inc()
		return seq, ErrQueueFull
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.queue:
			metrics.QueueDepth.Set(float64(len(e.queue)))
			e.poll(ctx, j)
		}
	}
}

func (e *Engine) poll(ctx context.Context, j job) {
	src := e.sources[j.source]
	group := e.schedules[j.source].Group
	lim := e.limiters[group]

	waitStart := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return
	}
	metrics.RateLimitWait.WithLabelValues(group).Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	snap, err := fetchWithTimeout(ctx, src.FetchSnapshot, e.opts.FetchTimeout)
	metrics.PollDuration.WithLabelValues(j.source).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues(j.source, "error").Inc()
		e.logger.Error("fetch snapshot failed", "source", j.source, "seq", j.seq, "error", err)
		e.mu.Lock()
		e.lastErr[j.source] = err.Error()
		e.mu.Unlock()
		return
	}
	if snap.Source == "" {
		snap.Source = j.source
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	metrics.PollTotal.WithLabelValues(j.source, "success").Inc()
	metrics.PollLastSuccess.WithLabelValues(j.source).SetToCurrentTime()

	e.mu.Lock()
	if j.seq > e.lastSeq[j.source] {
		e.lastSnap[j.source] = snap
		e.lastSeq[j.source] = j.seq
	}
	delete(e.lastErr, j.source)
	e.mu.Unlock()

	for name, v := range snap.Metrics {
		metrics.MetricValue.WithLabelValues(j.source, name).Set(v)
	}
	e.logger.Info("snapshot", "source", j.source, "seq", j.seq, "metrics", len(snap.Metrics))

	if err := e.recorder.RecordSnapshot(ctx, j.source, snap.Metrics, snap.FetchedAt); err != nil {
		e.logger.Error("record snapshot failed", "source", j.source, "error", err)
	}
	if e.onSnap != nil {
		e.onSnap(ctx, j.seq, snap)
	}
}

// fetchWithTimeout runs fn under a deadline and turns a panic inside fn into
// an error.
func fetchWithTimeout(ctx context.Context, fn func(context.Context) (*Snapshot, error), timeout time.Duration) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		snap *Snapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("fetch panicked: %v", r)}
			}
		}()
		snap, err := fn(ctx)
		if err == nil && snap == nil {
			err = errors.New("fetch returned no snapshot")
		}
		ch <- result{snap, err}
	}()

	select {
	case r := <-ch:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch timed out after %s: %w", timeout, ctx.Err())
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
