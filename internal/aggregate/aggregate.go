// Package aggregate derives running totals, window sums and ratios from
// daily ETF flow tables.
package aggregate

import (
	"sort"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/dataset"
)

// CumulativeSum sums each ticker's flows across all records. Only tickers
// present in the initial mapping are counted; any other key in a record is
// dropped (see UnknownTickers).
func CumulativeSum(records []dataset.FlowRecord, tickers []string) map[string]float64 {
	cum := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		cum[t] = 0
	}
	for _, r := range records {
		for t := range cum {
			cum[t] += r.Flows[t]
		}
	}
	return cum
}

// DailyTotal sums every ticker in one record.
func DailyTotal(r dataset.FlowRecord) float64 {
	return Total(r.Flows)
}

// WindowSum sums the daily totals of the first n records. Callers pass the
// table newest-first.
func WindowSum(records []dataset.FlowRecord, n int) float64 {
	if n > len(records) {
		n = len(records)
	}
	var sum float64
	for _, r := range records[:max(n, 0)] {
		sum += DailyTotal(r)
	}
	return sum
}

// Total sums the values of m in key order so results are reproducible.
func Total(m map[string]float64) float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += m[k]
	}
	return sum
}

// PercentChange returns (current-previous)/previous*100. A zero previous
// value yields ±Inf or NaN; callers that display the result must check.
func PercentChange(current, previous float64) float64 {
	return (current - previous) / previous * 100
}

// MarketShare returns part as a percentage of total. A zero total yields
// ±Inf or NaN.
func MarketShare(part, total float64) float64 {
	return part / total * 100
}

// UnknownTickers lists keys that appear in records but not in tickers.
func UnknownTickers(records []dataset.FlowRecord, tickers []string) []string {
	known := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		known[t] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		for t := range r.Flows {
			if !known[t] && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Summary is the headline view of a flow table.
type Summary struct {
	TotalNet    float64            `json:"total_net"`
	Week        float64            `json:"week"`
	Month       float64            `json:"month"`
	DailyTotals []float64          `json:"daily_totals"`
	Cumulative  map[string]float64 `json:"cumulative"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Summarize computes the totals shown on the ETF flow page.
func Summarize(records []dataset.FlowRecord, tickers []string) Summary {
	cum := CumulativeSum(records, tickers)
	s := Summary{
		TotalNet:    Total(cum),
		Week:        WindowSum(records, 7),
		Month:       WindowSum(records, 30),
		Cumulative:  cum,
		DailyTotals: make([]float64, len(records)),
	}
	for i, r := range records {
		s.DailyTotals[i] = DailyTotal(r)
	}
	if len(records) > 0 {
		s.LastUpdated = records[0].Date
	}
	return s
}

// Group names a chart line and the tickers it sums. A group with no
// tickers collects every ticker not claimed by another group.
type Group struct {
	Label   string
	Tickers []string
}

// DefaultGroups are the lines of the cumulative flow chart.
var DefaultGroups = []Group{
	{Label: "BlackRock ETHA", Tickers: []string{"ETHA"}},
	{Label: "Fidelity FETH", Tickers: []string{"FETH"}},
	{Label: "Grayscale ETHE", Tickers: []string{"ETHE"}},
	{Label: "Others"},
}

// Series is a set of cumulative lines over a common x axis.
type Series struct {
	Dates []time.Time
	Lines map[string][]float64
}

// CumulativeSeries builds oldest-first running totals per group from a
// newest-first table.
func CumulativeSeries(records []dataset.FlowRecord, groups []Group) Series {
	claimed := map[string]bool{}
	for _, g := range groups {
		for _, t := range g.Tickers {
			claimed[t] = true
		}
	}

	s := Series{
		Dates: make([]time.Time, 0, len(records)),
		Lines: make(map[string][]float64, len(groups)),
	}
	running := make(map[string]float64, len(groups))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		s.Dates = append(s.Dates, r.Date)
		for _, g := range groups {
			if len(g.Tickers) == 0 {
				rest := make(map[string]float64)
				for t, v := range r.Flows {
					if !claimed[t] {
						rest[t] = v
					}
				}
				running[g.Label] += Total(rest)
			} else {
				for _, t := range g.Tickers {
					running[g.Label] += r.Flows[t]
				}
			}
			s.Lines[g.Label] = append(s.Lines[g.Label], running[g.Label])
		}
	}
	return s
}
