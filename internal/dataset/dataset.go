package dataset

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed flows.yaml
var flowsYAML []byte

//go:embed funds.yaml
var fundsYAML []byte

// ErrEmptyTable is returned when a flow table with no records is offered.
var ErrEmptyTable = errors.New("empty flow table")

// FlowRecord holds one trading day of ETF net flows in millions USD, keyed by ticker.
type FlowRecord struct {
	Date  time.Time          `json:"date"`
	Flows map[string]float64 `json:"flows"`
}

type flowsDoc struct {
	Tickers []string `yaml:"tickers"`
	Records []struct {
		Date  string             `yaml:"date"`
		Flows map[string]float64 `yaml:"flows"`
	} `yaml:"records"`
}

var (
	loadOnce sync.Once
	tickers  []string
	records  []FlowRecord
	funds    fundsDoc
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		var fd flowsDoc
		if err := yaml.Unmarshal(flowsYAML, &fd); err != nil {
			loadErr = fmt.Errorf("decode flows.yaml: %w", err)
			return
		}
		tickers = fd.Tickers
		records = make([]FlowRecord, 0, len(fd.Records))
		for _, r := range fd.Records {
			d, err := time.Parse("2006-01-02", r.Date)
			if err != nil {
				loadErr = fmt.Errorf("parse flow date %q: %w", r.Date, err)
				return
			}
			records = append(records, FlowRecord{Date: d, Flows: r.Flows})
		}
		if err := yaml.Unmarshal(fundsYAML, &funds); err != nil {
			loadErr = fmt.Errorf("decode funds.yaml: %w", err)
		}
	})
	if loadErr != nil {
		// The embedded documents are part of the binary; a decode failure is a build defect.
		panic(loadErr)
	}
}

// Tickers returns the fund tickers of the embedded flow table in column order.
func Tickers() []string {
	load()
	out := make([]string, len(tickers))
	copy(out, tickers)
	return out
}

// Flows returns a copy of the embedded flow table, newest first.
func Flows() []FlowRecord {
	load()
	return CopyRecords(records)
}

// CopyRecords deep-copies a flow table.
func CopyRecords(in []FlowRecord) []FlowRecord {
	out := make([]FlowRecord, len(in))
	for i, r := range in {
		flows := make(map[string]float64, len(r.Flows))
		for k, v := range r.Flows {
			flows[k] = v
		}
		out[i] = FlowRecord{Date: r.Date, Flows: flows}
	}
	return out
}

// SortNewestFirst orders records by date descending.
func SortNewestFirst(rs []FlowRecord) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Date.After(rs[j].Date) })
}

// Book holds the flow table currently shown by the terminal.
type Book struct {
	mu        sync.RWMutex
	tickers   []string
	records   []FlowRecord
	updatedAt time.Time
	seq       uint64
}

// NewBook returns a Book seeded with the embedded table.
func NewBook() *Book {
	return &Book{tickers: Tickers(), records: Flows()}
}

// Records returns a copy of the current table, newest first.
func (b *Book) Records() []FlowRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return CopyRecords(b.records)
}

// Tickers returns the tickers the cumulative totals are tracked for.
func (b *Book) Tickers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.tickers))
	copy(out, b.tickers)
	return out
}

// UpdatedAt returns when the table was last replaced; zero for the embedded table.
func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// Replace swaps in a table scraped by issuance seq. A table from an issuance
// older than the one currently held is discarded and Replace reports false.
// Tickers not already tracked are appended so their flows are counted.
func (b *Book) Replace(seq uint64, rs []FlowRecord, at time.Time) (bool, error) {
	if len(rs) == 0 {
		return false, ErrEmptyTable
	}
	rs = CopyRecords(rs)
	SortNewestFirst(rs)

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq < b.seq {
		return false, nil
	}
	known := make(map[string]bool, len(b.tickers))
	for _, t := range b.tickers {
		known[t] = true
	}
	for _, r := range rs {
		keys := make([]string, 0, len(r.Flows))
		for k := range r.Flows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !known[k] {
				known[k] = true
				b.tickers = append(b.tickers, k)
			}
		}
	}
	b.records = rs
	b.updatedAt = at
	b.seq = seq
	return true, nil
}
