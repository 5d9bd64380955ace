package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const (
	coinGeckoAPI = "https://api.coingecko.com/api/v3"
	// DefaultCategory is the CoinGecko category tracked for tokenized real-world assets.
	DefaultCategory = "real-world-assets-rwa"
)

type coinGecko struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func (c *coinGecko) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var h http.Header
	if c.apiKey != "" {
		h = http.Header{"X-Cg-Demo-Api-Key": {c.apiKey}}
	}
	return getJSON(ctx, c.client, u, h, out)
}

// --- Market chart ---

// marketChartResp holds [ms, value] pairs; either element may be null.
type marketChartResp struct {
	Prices       [][2]*float64 `json:"prices"`
	MarketCaps   [][2]*float64 `json:"market_caps"`
	TotalVolumes [][2]*float64 `json:"total_volumes"`
}

// CoinGeckoMarket reads ETH price, market cap and volume over the last 8 days.
type CoinGeckoMarket struct {
	coinGecko
}

func NewCoinGeckoMarket(apiKey string) *CoinGeckoMarket {
	return &CoinGeckoMarket{coinGecko{client: newClient(), baseURL: coinGeckoAPI, apiKey: apiKey}}
}

func (c *CoinGeckoMarket) Name() string { return "coingecko-market" }
func (c *CoinGeckoMarket) URL() string  { return "https://www.coingecko.com/en/coins/ethereum" }

func (c *CoinGeckoMarket) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	q := url.Values{"vs_currency": {"usd"}, "days": {"8"}}
	var resp marketChartResp
	if err := c.get(ctx, "/coins/ethereum/market_chart", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch market chart: %w", err)
	}
	prices, err := toPoints(resp.Prices)
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, errors.New("market chart has no prices")
	}
	caps, err := toPoints(resp.MarketCaps)
	if err != nil {
		return nil, fmt.Errorf("market caps: %w", err)
	}
	volumes, err := toPoints(resp.TotalVolumes)
	if err != nil {
		return nil, fmt.Errorf("volumes: %w", err)
	}

	m := make(map[string]float64)
	ds := map[string]string{"eth_price": "CoinGecko"}
	putSeries(m, prices, "eth_price", "_change_7d", week)
	if putSeries(m, caps, "eth_market_cap", "_change_7d", week) {
		ds["eth_market_cap"] = "CoinGecko"
	}
	if vol, ok := latestPoint(volumes); ok {
		m["eth_volume_24h"] = vol.Value
		ds["eth_volume_24h"] = "CoinGecko"
	}

	return &monitor.Snapshot{
		Source:      c.Name(),
		Metrics:     m,
		DataSources: ds,
		Series:      map[string][]monitor.Point{"eth_price": prices},
		FetchedAt:   time.Now(),
	}, nil
}

// toPoints converts [ms, value] pairs. Pairs without a timestamp or value
// are dropped, except that the latest sample must carry a value.
func toPoints(pairs [][2]*float64) ([]monitor.Point, error) {
	raw := make([]rawPoint, 0, len(pairs))
	for _, p := range pairs {
		if p[0] == nil {
			continue
		}
		raw = append(raw, rawPoint{Time: time.UnixMilli(int64(*p[0])).UTC(), Value: p[1]})
	}
	return cleanSeries(raw)
}

// --- Categories ---

type categoryResp struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	MarketCap          *float64 `json:"market_cap"`
	MarketCapChange24h *float64 `json:"market_cap_change_24h"`
	Volume24h          *float64 `json:"volume_24h"`
}

// CoinGeckoCategories reads the market cap of one CoinGecko category.
type CoinGeckoCategories struct {
	coinGecko
	category string
}

func NewCoinGeckoCategories(apiKey, category string) *CoinGeckoCategories {
	if category == "" {
		category = DefaultCategory
	}
	return &CoinGeckoCategories{
		coinGecko: coinGecko{client: newClient(), baseURL: coinGeckoAPI, apiKey: apiKey},
		category:  category,
	}
}

func (c *CoinGeckoCategories) Name() string { return "coingecko-categories" }
func (c *CoinGeckoCategories) URL() string {
	return "https://www.coingecko.com/en/categories/" + c.category
}

func (c *CoinGeckoCategories) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var cats []categoryResp
	if err := c.get(ctx, "/coins/categories", nil, &cats); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	if len(cats) == 0 {
		return nil, errors.New("category list is empty")
	}

	var found *categoryResp
	for i := range cats {
		if cats[i].ID == c.category {
			found = &cats[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("category %q not found", c.category)
	}
	if found.MarketCap == nil {
		return nil, fmt.Errorf("category %q has no market cap", c.category)
	}

	m := map[string]float64{"category_market_cap": *found.MarketCap}
	if found.MarketCapChange24h != nil {
		m["category_market_cap_change_24h"] = *found.MarketCapChange24h
	}
	if found.Volume24h != nil {
		m["category_volume_24h"] = *found.Volume24h
	}
	return &monitor.Snapshot{
		Source:      c.Name(),
		Metrics:     m,
		DataSources: map[string]string{"category_market_cap": "CoinGecko " + found.Name},
		FetchedAt:   time.Now(),
	}, nil
}
