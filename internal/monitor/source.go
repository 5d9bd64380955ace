package monitor

import (
	"context"
	"math"
	"time"
)

// Source defines the interface that all data sources must implement.
// To add a new data source, create a struct that implements this
// interface and register it with the Engine.
type Source interface {
	// Name returns a unique identifier for this source (e.g., "defillama").
	Name() string

	// URL links to the upstream the data comes from.
	URL() string

	// FetchSnapshot fetches the current state from the data source. Any
	// transport, decode, schema or empty-result failure is an error.
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// Point is one sample of a time series.
type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// Snapshot represents a point-in-time reading from a data source. Metrics
// only contains fields the upstream actually returned.
type Snapshot struct {
	Source      string             `json:"source"`
	Metrics     map[string]float64 `json:"metrics"`
	DataSources map[string]string  `json:"data_sources,omitempty"`
	Series      map[string][]Point `json:"series,omitempty"`
	FetchedAt   time.Time          `json:"fetched_at"`

	// Payload carries source-specific data for the SnapshotFunc, such as a
	// scraped table. It is applied only after the sequence check.
	Payload any `json:"-"`
}

// Get returns a metric and whether it is present and finite.
func (s *Snapshot) Get(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Metrics[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Require returns the named metrics in order, or ok=false if any is missing
// or not finite.
func (s *Snapshot) Require(names ...string) ([]float64, bool) {
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := s.Get(n)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Schedule controls when and how fast a source is polled.
type Schedule struct {
	// StartDelay is the offset of the first poll after Run starts.
	StartDelay time.Duration `yaml:"start_delay" json:"start_delay"`
	// Interval is the recurring poll period.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// Offset shifts the recurring timer so sources sharing an interval do
	// not fire together.
	Offset time.Duration `yaml:"offset" json:"offset"`
	// Rate is the sustained requests per second allowed for the group; 0 means unlimited.
	Rate float64 `yaml:"rate" json:"rate"`
	// Burst is the token bucket size.
	Burst int `yaml:"burst" json:"burst"`
	// Group names the rate limiter; sources hitting the same upstream share one.
	Group string `yaml:"group" json:"group"`
	// Disabled keeps the source registered but never polled on a timer.
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// SnapshotFunc receives every successful snapshot with the sequence number
// assigned when its poll was issued.
type SnapshotFunc func(ctx context.Context, seq uint64, snap *Snapshot)
