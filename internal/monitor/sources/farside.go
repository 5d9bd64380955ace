package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/web3-frozen/eth-terminal/internal/aggregate"
	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const farsideURL = "https://farside.co.uk/ethereum-etf-flow-all-data/"

// farsideDateLayouts are the row date formats seen on the flow table.
var farsideDateLayouts = []string{"02 Jan 2006", "2 Jan 2006"}

// Farside scrapes the daily ETH ETF flow table via headless Chrome. The
// parsed records travel as the snapshot Payload; the book is only read for
// its tracked tickers.
type Farside struct {
	logger *slog.Logger
	book   *dataset.Book
	url    string
	scrape func(ctx context.Context, url string) ([][]string, error)
}

func NewFarside(logger *slog.Logger, book *dataset.Book) *Farside {
	return &Farside{
		logger: logger,
		book:   book,
		url:    farsideURL,
		scrape: scrapeTable,
	}
}

func (f *Farside) Name() string { return "etf-flows" }
func (f *Farside) URL() string  { return f.url }

func (f *Farside) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	rows, err := f.scrape(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("scrape flow table: %w", err)
	}
	records, err := parseFlowTable(rows)
	if err != nil {
		return nil, err
	}

	tickers := f.book.Tickers()
	if unknown := aggregate.UnknownTickers(records, tickers); len(unknown) > 0 {
		f.logger.Warn("flow table has new tickers", "tickers", unknown)
		tickers = append(tickers, unknown...)
	}

	s := aggregate.Summarize(records, tickers)
	m := map[string]float64{
		"etf_total_net":  s.TotalNet,
		"etf_week_flow":  s.Week,
		"etf_month_flow": s.Month,
		"etf_days":       float64(len(s.DailyTotals)),
	}
	if len(s.DailyTotals) > 0 {
		m["etf_latest_daily"] = s.DailyTotals[0]
	}
	return &monitor.Snapshot{
		Source:      f.Name(),
		Metrics:     m,
		DataSources: map[string]string{"etf_total_net": "Farside"},
		Payload:     records,
		FetchedAt:   time.Now(),
	}, nil
}

// parseFlowTable turns raw table rows into flow records. The ticker header is
// the first row whose last cell is "Total"; data rows start with a date.
// Parenthesised values are negative and "-" means no flow.
func parseFlowTable(rows [][]string) ([]dataset.FlowRecord, error) {
	var tickers []string
	var records []dataset.FlowRecord
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		if tickers == nil {
			if strings.EqualFold(strings.TrimSpace(row[len(row)-1]), "Total") {
				for _, c := range row[1 : len(row)-1] {
					tickers = append(tickers, strings.TrimSpace(c))
				}
			}
			continue
		}

		date, ok := parseFlowDate(row[0])
		if !ok {
			continue
		}
		r := dataset.FlowRecord{Date: date, Flows: make(map[string]float64, len(tickers))}
		for i, tk := range tickers {
			if tk == "" || i+1 >= len(row) {
				continue
			}
			v, err := parseFlowValue(row[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", row[0], tk, err)
			}
			r.Flows[tk] = v
		}
		records = append(records, r)
	}
	if tickers == nil {
		return nil, errors.New("flow table has no ticker header")
	}
	if len(records) == 0 {
		return nil, dataset.ErrEmptyTable
	}
	dataset.SortNewestFirst(records)
	return records, nil
}

func parseFlowDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range farsideDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseFlowValue(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if neg {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse flow value %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// scrapeTable loads url in headless Chrome and returns the text of every
// table cell, row by row.
func scrapeTable(ctx context.Context, url string) ([][]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
		chromedp.UserDataDir("/tmp/chromedp-profile"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	cctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var resultJSON string
	if err := chromedp.Run(cctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`table tbody tr`, chromedp.ByQuery),
		chromedp.Evaluate(extractTableJS, &resultJSON),
	); err != nil {
		return nil, fmt.Errorf("chromedp: %w", err)
	}

	var rows [][]string
	if err := json.Unmarshal([]byte(resultJSON), &rows); err != nil {
		return nil, fmt.Errorf("parse table json: %w", err)
	}
	return rows, nil
}

// extractTableJS is evaluated in the browser to pull the flow table cells.
const extractTableJS = `
(() => {
	const table = document.querySelector('table.etf') || document.querySelector('table');
	if (!table) return '[]';
	const rows = [];
	table.querySelectorAll('tr').forEach(tr => {
		const cells = [];
		tr.querySelectorAll('th, td').forEach(c => cells.push((c.textContent || '').trim()));
		rows.push(cells);
	});
	return JSON.stringify(rows);
})()
`
