package sources

import (
	"fmt"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/aggregate"
	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const week = 7 * 24 * time.Hour

// rawPoint is a decoded sample whose value may be null or absent upstream.
type rawPoint struct {
	Time  time.Time
	Value *float64
}

// cleanSeries drops samples without a value. The latest sample must carry
// one; otherwise the series is treated as malformed.
func cleanSeries(raw []rawPoint) ([]monitor.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	latest := raw[0]
	for _, p := range raw[1:] {
		if p.Time.After(latest.Time) {
			latest = p
		}
	}
	if latest.Value == nil {
		return nil, fmt.Errorf("latest sample at %s has no value", latest.Time.Format(time.RFC3339))
	}
	out := make([]monitor.Point, 0, len(raw))
	for _, p := range raw {
		if p.Value != nil {
			out = append(out, monitor.Point{Time: p.Time, Value: *p.Value})
		}
	}
	return out, nil
}

// nearestPoint returns the point whose time is closest to target.
func nearestPoint(points []monitor.Point, target time.Time) (monitor.Point, bool) {
	if len(points) == 0 {
		return monitor.Point{}, false
	}
	best := points[0]
	bestDiff := absDuration(best.Time.Sub(target))
	for _, p := range points[1:] {
		if d := absDuration(p.Time.Sub(target)); d < bestDiff {
			best, bestDiff = p, d
		}
	}
	return best, true
}

// latestPoint returns the most recent point.
func latestPoint(points []monitor.Point) (monitor.Point, bool) {
	if len(points) == 0 {
		return monitor.Point{}, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Time.After(latest.Time) {
			latest = p
		}
	}
	return latest, true
}

// pctChange is aggregate.PercentChange with a zero-denominator guard.
func pctChange(current, previous float64) (float64, bool) {
	if previous == 0 {
		return 0, false
	}
	return aggregate.PercentChange(current, previous), true
}

// changeOver returns the latest value and its percent change against the
// point nearest to latest-window. A series whose nearest point is the latest
// one has no history and yields ok=false.
func changeOver(points []monitor.Point, window time.Duration) (latest float64, change float64, ok bool) {
	last, found := latestPoint(points)
	if !found {
		return 0, 0, false
	}
	past, _ := nearestPoint(points, last.Time.Add(-window))
	if past.Time.Equal(last.Time) {
		return last.Value, 0, false
	}
	change, ok = pctChange(last.Value, past.Value)
	return last.Value, change, ok
}

// putSeries records the latest value under name and, when computable, the
// change over window under name+suffix.
func putSeries(m map[string]float64, points []monitor.Point, name, suffix string, window time.Duration) bool {
	if len(points) == 0 {
		return false
	}
	latest, change, ok := changeOver(points, window)
	m[name] = latest
	if ok {
		m[name+suffix] = change
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
