// Package funds serves the tokenized fund list and per-fund detail pages.
package funds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/web3-frozen/eth-terminal/internal/aggregate"
	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/format"
	"github.com/web3-frozen/eth-terminal/internal/kv"
)

// FundsKey is the KV key holding the JSON fund list.
const FundsKey = "fundsData"

// ErrNotFound is returned when no fund has the requested id.
var ErrNotFound = errors.New("fund not found")

// Section is one titled block of a fund profile.
type Section struct {
	Title  string          `json:"title"`
	Fields []dataset.Field `json:"fields"`
}

// Detail is everything the fund detail page shows.
type Detail struct {
	Fund           dataset.Fund        `json:"fund"`
	AUM            string              `json:"aum"`
	Yield          string              `json:"yield"`
	MinInvestment  string              `json:"minInvestment"`
	Holders        string              `json:"holders"`
	MarketShare    string              `json:"marketShare"`
	MarketSharePct float64             `json:"marketSharePct"`
	HistoryLabels  []string            `json:"historyLabels"`
	History        dataset.FundHistory `json:"history"`
	Profile        []Section           `json:"profile"`
}

// Service reads the fund list from the KV store, seeding it from the
// built-in dataset when the key is absent.
type Service struct {
	kv          kv.KV
	logger      *slog.Logger
	totalMarket float64
}

func NewService(store kv.KV, logger *slog.Logger) *Service {
	return &Service{kv: store, logger: logger, totalMarket: dataset.TotalMarket()}
}

// Seed writes the default fund list unless one is already stored.
func (s *Service) Seed(ctx context.Context) error {
	_, err := s.kv.Get(ctx, FundsKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("read %s: %w", FundsKey, err)
	}
	if err := kv.SetJSON(ctx, s.kv, FundsKey, dataset.Funds()); err != nil {
		return fmt.Errorf("seed %s: %w", FundsKey, err)
	}
	s.logger.Info("seeded fund list", "funds", len(dataset.Funds()))
	return nil
}

// List returns every stored fund.
func (s *Service) List(ctx context.Context) ([]dataset.Fund, error) {
	var funds []dataset.Fund
	err := kv.GetJSON(ctx, s.kv, FundsKey, &funds)
	if errors.Is(err, kv.ErrNotFound) {
		if err := s.Seed(ctx); err != nil {
			return nil, err
		}
		return dataset.Funds(), nil
	}
	if err != nil {
		return nil, err
	}
	return funds, nil
}

// Lookup returns the fund with the given id.
func (s *Service) Lookup(ctx context.Context, id string) (dataset.Fund, error) {
	funds, err := s.List(ctx)
	if err != nil {
		return dataset.Fund{}, err
	}
	for _, f := range funds {
		if f.ID == id {
			return f, nil
		}
	}
	return dataset.Fund{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Detail assembles the detail view of f. Funds without a profile of their
// own use the default template filled with their own figures.
func (s *Service) Detail(f dataset.Fund) Detail {
	share := aggregate.MarketShare(f.AUM, s.totalMarket)
	d := Detail{
		Fund:           f,
		AUM:            format.FormatScaled(f.AUM),
		Yield:          format.FormatPercent(f.Yield, 2),
		MinInvestment:  format.FormatScaled(f.MinInvestment),
		Holders:        format.FormatCount(float64(f.Holders)),
		MarketShare:    format.FormatPercent(share, 2),
		MarketSharePct: share,
		HistoryLabels:  dataset.HistoryLabels(),
	}
	if h, ok := dataset.History(f.ID); ok {
		d.History = h
	}

	tmpl, ok := dataset.Profile(f.ID)
	if !ok {
		tmpl, _ = dataset.Profile(dataset.DefaultProfile)
	}
	r := strings.NewReplacer(
		"{{aum}}", d.AUM,
		"{{yield}}", d.Yield,
		"{{market_share}}", d.MarketShare,
		"{{min_investment}}", d.MinInvestment,
	)
	for _, sec := range []struct {
		title  string
		fields []dataset.Field
	}{
		{"IDENTITY", tmpl.Identity},
		{"PERFORMANCE", tmpl.Performance},
		{"ACCESS & ELIGIBILITY", tmpl.Access},
		{"FEES", tmpl.Fees},
		{"SERVICE PROVIDERS", tmpl.Providers},
		{"DEFI INTEGRATIONS", tmpl.DefiIntegrations},
	} {
		fields := make([]dataset.Field, len(sec.fields))
		for i, fl := range sec.fields {
			fields[i] = dataset.Field{Label: fl.Label, Value: r.Replace(fl.Value)}
		}
		d.Profile = append(d.Profile, Section{Title: sec.title, Fields: fields})
	}
	return d
}
