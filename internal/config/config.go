package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
	"gopkg.in/yaml.v3"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

type Config struct {
	Port              string
	DatabaseURL       string
	FrontendOrigin    string
	RedisURL          string
	RedisPassword     string
	StakingRewardsKey string
	CoinGeckoKey      string
	CoinGeckoCategory string
	ETFFlowsEnabled   bool
	LogLevel          slog.Level
	Workers           int
	QueueSize         int
	ScheduleFile      string
}

func Load() Config {
	cfg := Config{
		Port:              envOr("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		FrontendOrigin:    envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		StakingRewardsKey: os.Getenv("STAKINGREWARDS_API_KEY"),
		CoinGeckoKey:      os.Getenv("COINGECKO_API_KEY"),
		CoinGeckoCategory: envOr("COINGECKO_CATEGORY", "real-world-assets-rwa"),
		ETFFlowsEnabled:   envBool("ETF_FLOWS_ENABLED", false),
		LogLevel:          envLevel("LOG_LEVEL", slog.LevelInfo),
		Workers:           envInt("POLL_WORKERS", 4),
		QueueSize:         envInt("POLL_QUEUE_SIZE", 32),
		ScheduleFile:      os.Getenv("SCHEDULE_FILE"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	for key, target := range secretTargets(cfg) {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

// secretTargets maps secret names to the config fields they fill.
func secretTargets(cfg *Config) map[string]*string {
	return map[string]*string{
		"DATABASE_URL":           &cfg.DatabaseURL,
		"REDIS_PASSWORD":         &cfg.RedisPassword,
		"STAKINGREWARDS_API_KEY": &cfg.StakingRewardsKey,
		"COINGECKO_API_KEY":      &cfg.CoinGeckoKey,
	}
}

// DefaultSchedules returns the poll schedule of every source. First polls
// are staggered by 500ms; market sources repeat every five minutes with 15s
// sub-offsets so they do not fire together.
func DefaultSchedules(etfFlows bool) map[string]monitor.Schedule {
	return map[string]monitor.Schedule{
		"stakingrewards":       {StartDelay: 0, Interval: 30 * time.Minute, Group: "stakingrewards", Rate: 0.2, Burst: 2},
		"staking-history":      {StartDelay: 500 * time.Millisecond, Interval: 30 * time.Minute, Offset: 15 * time.Second, Group: "stakingrewards", Rate: 0.2, Burst: 2},
		"coingecko-market":     {StartDelay: 1000 * time.Millisecond, Interval: 5 * time.Minute, Group: "coingecko", Rate: 0.5, Burst: 2},
		"coingecko-categories": {StartDelay: 1500 * time.Millisecond, Interval: 5 * time.Minute, Offset: 15 * time.Second, Group: "coingecko", Rate: 0.5, Burst: 2},
		"defillama":            {StartDelay: 2000 * time.Millisecond, Interval: 5 * time.Minute, Offset: 30 * time.Second},
		"growthepie":           {StartDelay: 2500 * time.Millisecond, Interval: 5 * time.Minute, Offset: 45 * time.Second},
		"etf-flows":            {StartDelay: 3000 * time.Millisecond, Interval: time.Hour, Rate: 0.1, Burst: 1, Disabled: !etfFlows},
	}
}

type scheduleFile struct {
	Schedules map[string]yaml.Node `yaml:"schedules"`
}

// LoadSchedules returns DefaultSchedules overlaid with the entries of a YAML
// schedule file. Fields omitted in the file keep their defaults. An empty
// path returns the defaults.
func LoadSchedules(path string, etfFlows bool) (map[string]monitor.Schedule, error) {
	scheds := DefaultSchedules(etfFlows)
	if path == "" {
		return scheds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	return ParseSchedules(data, scheds)
}

// ParseSchedules overlays YAML schedule entries onto base.
func ParseSchedules(data []byte, base map[string]monitor.Schedule) (map[string]monitor.Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}
	for name, node := range f.Schedules {
		s, ok := base[name]
		if !ok {
			return nil, fmt.Errorf("schedule for unknown source %q", name)
		}
		if err := node.Decode(&s); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", name, err)
		}
		if s.Interval <= 0 {
			return nil, fmt.Errorf("schedule %q: interval must be positive", name)
		}
		base[name] = s
	}
	return base, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envLevel(key string, fallback slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return l
}
