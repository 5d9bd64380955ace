package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/web3-frozen/eth-terminal/internal/dataset"
)

var flowTableRows = [][]string{
	{"", "Blackrock", "Fidelity", "Grayscale", ""},
	{"Fee", "0.25%", "0.25%", "2.50%", ""},
	{"", "ETHA", "FETH", "ETHE", "Total"},
	{"21 Jan 2026", "10.5", "(2.0)", "-", "8.5"},
	{"22 Jan 2026", "1,200.0", "0.0", "(30.1)", "1,169.9"},
	{"Total", "1,210.5", "(2.0)", "(30.1)", "1,178.4"},
	{"Average", "605.3", "(1.0)", "(15.1)", "589.2"},
}

func TestParseFlowTable(t *testing.T) {
	records, err := parseFlowTable(flowTableRows)
	if err != nil {
		t.Fatalf("parseFlowTable error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	newest := records[0]
	if newest.Date.Format("2006-01-02") != "2026-01-22" {
		t.Errorf("records not newest-first: %v", newest.Date)
	}
	if newest.Flows["ETHA"] != 1200 || newest.Flows["ETHE"] != -30.1 {
		t.Errorf("newest flows = %v", newest.Flows)
	}
	older := records[1]
	if older.Flows["FETH"] != -2 || older.Flows["ETHE"] != 0 {
		t.Errorf("older flows = %v", older.Flows)
	}
	if _, ok := older.Flows["Total"]; ok {
		t.Error("Total column must not become a ticker")
	}
}

func TestParseFlowValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"(12.5)", -12.5},
		{"-", 0},
		{"", 0},
		{" 1,024.0 ", 1024},
	}
	for _, tt := range tests {
		got, err := parseFlowValue(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseFlowValue(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseFlowValue("n/a"); err == nil {
		t.Error("expected error for n/a")
	}
}

func TestParseFlowTableFailures(t *testing.T) {
	if _, err := parseFlowTable([][]string{{"22 Jan 2026", "1"}}); err == nil {
		t.Error("table without header should fail")
	}
	headerOnly := [][]string{{"", "ETHA", "Total"}, {"Total", "0", "0"}}
	if _, err := parseFlowTable(headerOnly); !errors.Is(err, dataset.ErrEmptyTable) {
		t.Errorf("error = %v, want ErrEmptyTable", err)
	}
}

func TestFarsideFetchSnapshotCarriesRecords(t *testing.T) {
	book := dataset.NewBook()
	before := book.Records()
	f := &Farside{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		book:   book,
		url:    "https://example.com/flows",
		scrape: func(context.Context, string) ([][]string, error) { return flowTableRows, nil },
	}

	snap, err := f.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot error: %v", err)
	}
	records, ok := snap.Payload.([]dataset.FlowRecord)
	if !ok || len(records) != 2 {
		t.Fatalf("Payload = %#v, want 2 flow records", snap.Payload)
	}
	if got := book.Records(); len(got) != len(before) || !book.UpdatedAt().IsZero() {
		t.Error("fetch must leave the book to the snapshot consumer")
	}
	if !approx(snap.Metrics["etf_total_net"], 1178.4) {
		t.Errorf("etf_total_net = %v, want 1178.4", snap.Metrics["etf_total_net"])
	}
	if !approx(snap.Metrics["etf_latest_daily"], 1169.9) {
		t.Errorf("etf_latest_daily = %v, want 1169.9", snap.Metrics["etf_latest_daily"])
	}
}

func TestFarsideScrapeErrorKeepsBook(t *testing.T) {
	book := dataset.NewBook()
	before := len(book.Records())
	f := &Farside{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		book:   book,
		scrape: func(context.Context, string) ([][]string, error) { return nil, errors.New("chrome not found") },
	}
	if _, err := f.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(book.Records()) != before {
		t.Error("failed scrape modified the book")
	}
}
