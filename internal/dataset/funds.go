package dataset

// Fund is one tokenized fund as stored under the fundsData key.
type Fund struct {
	ID            string  `json:"id" yaml:"id"`
	Ticker        string  `json:"ticker" yaml:"ticker"`
	Name          string  `json:"name" yaml:"name"`
	Issuer        string  `json:"issuer" yaml:"issuer"`
	AUM           float64 `json:"aum" yaml:"aum"`
	Yield         float64 `json:"yield" yaml:"yield"`
	MinInvestment float64 `json:"minInvestment" yaml:"min_investment"`
	Chains        string  `json:"chains" yaml:"chains"`
	Holders       int     `json:"holders" yaml:"holders"`
}

// FundHistory is the monthly TVL ($M) and active user series for a fund.
type FundHistory struct {
	TVL         []float64 `json:"tvlHistory" yaml:"tvl"`
	ActiveUsers []float64 `json:"activeUsers" yaml:"active_users"`
}

// Field is one labelled row of a profile section.
type Field struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// ProfileTemplate holds the descriptive rows of a fund, in display order.
type ProfileTemplate struct {
	Identity         []Field `yaml:"identity"`
	Performance      []Field `yaml:"performance"`
	Access           []Field `yaml:"access"`
	Fees             []Field `yaml:"fees"`
	Providers        []Field `yaml:"providers"`
	DefiIntegrations []Field `yaml:"defi_integrations"`
}

type fundsDoc struct {
	TotalMarket   float64                    `yaml:"total_market"`
	HistoryLabels []string                   `yaml:"history_labels"`
	Funds         []Fund                     `yaml:"funds"`
	History       map[string]FundHistory     `yaml:"history"`
	Profiles      map[string]ProfileTemplate `yaml:"profiles"`
}

// DefaultProfile is used for funds that have no profile of their own.
const DefaultProfile = "buidl"

// Funds returns the default fund list.
func Funds() []Fund {
	load()
	out := make([]Fund, len(funds.Funds))
	copy(out, funds.Funds)
	return out
}

// TotalMarket is the tokenized treasury market size used for market share.
func TotalMarket() float64 {
	load()
	return funds.TotalMarket
}

// HistoryLabels returns the x-axis labels of the fund history series.
func HistoryLabels() []string {
	load()
	out := make([]string, len(funds.HistoryLabels))
	copy(out, funds.HistoryLabels)
	return out
}

// History returns the history series for a fund.
func History(id string) (FundHistory, bool) {
	load()
	h, ok := funds.History[id]
	return h, ok
}

// Profile returns the profile template for a fund.
func Profile(id string) (ProfileTemplate, bool) {
	load()
	p, ok := funds.Profiles[id]
	return p, ok
}
