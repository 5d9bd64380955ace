package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const (
	stakingRewardsAPI = "https://api.stakingrewards.com/public/query"
	stakingRewardsURL = "https://www.stakingrewards.com/asset/ethereum"
	// ethSupplyEstimate approximates circulating ETH for the staking ratio
	// when the API omits it.
	ethSupplyEstimate = 120_000_000
)

const stakingMetricsQuery = `query {
  assets(where: { slugs: ["ethereum"] }) {
    name
    slug
    symbol
    metrics {
      marketCap
      totalStaked
      totalStakedUSD
      stakedTokens
      rewardRate
      inflationRate
      activeValidators
      stakingRatio
    }
    rewardOptions {
      type
      rewardRate
      apr
      apy
    }
  }
}`

const stakingHistoryQuery = `query {
  asset(slug: "ethereum") {
    name
    metricChart(metric: "staked_tokens", from: "30d") {
      x
      y
    }
  }
}`

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// srClient is the GraphQL transport shared by the StakingRewards sources.
type srClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func (c *srClient) query(ctx context.Context, q string, out any) error {
	body, err := json.Marshal(map[string]string{"query": q})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	var resp graphqlResponse
	if err := doJSON(c.client, req, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("graphql: response has no data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

// --- Staking metrics ---

type stakingAsset struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Symbol  string `json:"symbol"`
	Metrics *struct {
		MarketCap        *float64 `json:"marketCap"`
		TotalStaked      *float64 `json:"totalStaked"`
		TotalStakedUSD   *float64 `json:"totalStakedUSD"`
		StakedTokens     *float64 `json:"stakedTokens"`
		RewardRate       *float64 `json:"rewardRate"`
		InflationRate    *float64 `json:"inflationRate"`
		ActiveValidators *float64 `json:"activeValidators"`
		StakingRatio     *float64 `json:"stakingRatio"`
	} `json:"metrics"`
	RewardOptions []rewardOption `json:"rewardOptions"`
}

type rewardOption struct {
	Type       string   `json:"type"`
	RewardRate *float64 `json:"rewardRate"`
	APR        *float64 `json:"apr"`
	APY        *float64 `json:"apy"`
}

// StakingRewards reads Ethereum staking metrics from the StakingRewards
// GraphQL API.
type StakingRewards struct {
	srClient
}

func NewStakingRewards(apiKey string) *StakingRewards {
	return &StakingRewards{srClient{client: newClient(), baseURL: stakingRewardsAPI, apiKey: apiKey}}
}

func (s *StakingRewards) Name() string { return "stakingrewards" }
func (s *StakingRewards) URL() string  { return stakingRewardsURL }

func (s *StakingRewards) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var data struct {
		Assets []stakingAsset `json:"assets"`
	}
	if err := s.query(ctx, stakingMetricsQuery, &data); err != nil {
		return nil, fmt.Errorf("query staking metrics: %w", err)
	}
	if len(data.Assets) == 0 {
		return nil, errors.New("no ethereum asset in response")
	}
	a := data.Assets[0]
	if a.Metrics == nil {
		return nil, errors.New("asset has no metrics")
	}

	m := make(map[string]float64)
	put := func(name string, v *float64) {
		if v != nil {
			m[name] = *v
		}
	}
	put("market_cap", a.Metrics.MarketCap)
	put("total_staked", a.Metrics.TotalStaked)
	put("total_staked_usd", a.Metrics.TotalStakedUSD)
	put("staked_tokens", a.Metrics.StakedTokens)
	put("reward_rate", a.Metrics.RewardRate)
	put("inflation_rate", a.Metrics.InflationRate)
	put("active_validators", a.Metrics.ActiveValidators)

	if r := a.Metrics.StakingRatio; r != nil && *r != 0 {
		m["staking_ratio"] = *r
	} else if t := a.Metrics.StakedTokens; t != nil {
		m["staking_ratio"] = *t / ethSupplyEstimate * 100
	}

	if opt := pickRewardOption(a.RewardOptions); opt != nil {
		if opt.APY != nil && *opt.APY != 0 {
			m["apy"] = *opt.APY
		} else if opt.APR != nil {
			m["apy"] = *opt.APR
		}
	}

	if len(m) == 0 {
		return nil, errors.New("asset metrics are empty")
	}

	ds := make(map[string]string, len(m))
	for k := range m {
		ds[k] = "StakingRewards"
	}
	return &monitor.Snapshot{
		Source:      s.Name(),
		Metrics:     m,
		DataSources: ds,
		FetchedAt:   time.Now(),
	}, nil
}

// pickRewardOption prefers the "staking" option and falls back to the first.
func pickRewardOption(opts []rewardOption) *rewardOption {
	for i := range opts {
		if opts[i].Type == "staking" {
			return &opts[i]
		}
	}
	if len(opts) > 0 {
		return &opts[0]
	}
	return nil
}

// --- Staking history ---

type chartPoint struct {
	X json.RawMessage `json:"x"`
	Y float64         `json:"y"`
}

// StakingHistory reads the 30 day staked-token chart.
type StakingHistory struct {
	srClient
}

func NewStakingHistory(apiKey string) *StakingHistory {
	return &StakingHistory{srClient{client: newClient(), baseURL: stakingRewardsAPI, apiKey: apiKey}}
}

func (s *StakingHistory) Name() string { return "staking-history" }
func (s *StakingHistory) URL() string  { return stakingRewardsURL }

func (s *StakingHistory) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var data struct {
		Asset *struct {
			Name        string       `json:"name"`
			MetricChart []chartPoint `json:"metricChart"`
		} `json:"asset"`
	}
	if err := s.query(ctx, stakingHistoryQuery, &data); err != nil {
		return nil, fmt.Errorf("query staking history: %w", err)
	}
	if data.Asset == nil {
		return nil, errors.New("no ethereum asset in response")
	}
	if len(data.Asset.MetricChart) == 0 {
		return nil, errors.New("staked_tokens chart is empty")
	}

	points := make([]monitor.Point, 0, len(data.Asset.MetricChart))
	for _, cp := range data.Asset.MetricChart {
		t, err := parseChartTime(cp.X)
		if err != nil {
			return nil, fmt.Errorf("parse chart point: %w", err)
		}
		points = append(points, monitor.Point{Time: t, Value: cp.Y})
	}

	m := make(map[string]float64)
	putSeries(m, points, "staked_tokens", "_change_30d", 30*24*time.Hour)
	return &monitor.Snapshot{
		Source:    s.Name(),
		Metrics:   m,
		Series:    map[string][]monitor.Point{"staked_tokens": points},
		FetchedAt: time.Now(),
	}, nil
}

// parseChartTime accepts an RFC 3339 string or a unix timestamp in seconds
// or milliseconds.
func parseChartTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognised time %q", s)
		}
		return unixTime(n), nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %s", raw)
	}
	return unixTime(n), nil
}

func unixTime(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
