// Package config loads application configuration from environment variables,
// with an optional YAML overlay for scheduler job intervals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure (both optional; in-memory fallbacks apply when unset)
	DatabaseURL string
	RedisURL    string
	JournalPath string // sqlite paper-trade journal; empty disables it
	MetricsAddr string
	APIAddr     string

	// Execution
	ExecutionMode  string // paper or live
	MaxLeverage    float64
	MaxMarginUsage float64
	MaxDailyLoss   float64
	CooldownSecs   int

	// Router gates
	PriceFreshnessThreshold time.Duration
	IntegrityBlockLive      bool

	// Ingest universes
	WITSCountries []string
	WITSProducts  []string
	GDELTKeywords []string

	// Analytics
	AdaptiveWeights bool

	// Venue credentials (opaque to the core)
	HyperliquidAPIKey string
	DriftRPCURL       string
	SolanaRPCURL      string
	SolanaPrivateKey  string
	JupiterAPIURL     string

	// Alerting (all optional; unset channels are disabled)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string

	LogLevel string

	// Scheduler intervals, overridable via SCHEDULER_CONFIG yaml.
	Jobs JobIntervals
}

// JobIntervals holds per-job polling periods.
type JobIntervals struct {
	WITS        time.Duration `yaml:"wits"`
	GDELT       time.Duration `yaml:"gdelt"`
	Pyth        time.Duration `yaml:"pyth"`
	Kraken      time.Duration `yaml:"kraken"`
	CoinGecko   time.Duration `yaml:"coingecko"`
	Drift       time.Duration `yaml:"drift"`
	Solana      time.Duration `yaml:"solana"`
	Hyperliquid time.Duration `yaml:"hyperliquid"` // reconnect cap for the WS client
	Compute     time.Duration `yaml:"compute"`
	Agents      time.Duration `yaml:"agents"`
}

// DefaultJobIntervals are the production polling periods.
func DefaultJobIntervals() JobIntervals {
	return JobIntervals{
		WITS:        6 * time.Hour,
		GDELT:       5 * time.Minute,
		Pyth:        30 * time.Second,
		Kraken:      30 * time.Second,
		CoinGecko:   60 * time.Second,
		Drift:       60 * time.Second,
		Solana:      30 * time.Second,
		Hyperliquid: 60 * time.Second,
		Compute:     60 * time.Second,
		Agents:      60 * time.Second,
	}
}

// Load reads configuration from environment variables with defaults matching
// the paper-trading profile. Any EXECUTION_MODE other than "live" downgrades
// to paper.
func Load() (*Config, error) {
	mode := strings.ToLower(getEnv("EXECUTION_MODE", "paper"))
	if mode != "paper" && mode != "live" {
		mode = "paper"
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		JournalPath: getEnv("JOURNAL_PATH", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		APIAddr:     getEnv("API_ADDR", ":8080"),

		ExecutionMode:  mode,
		MaxLeverage:    getFloat("MAX_LEVERAGE", 3.0),
		MaxMarginUsage: getFloat("MAX_MARGIN_USAGE", 0.6),
		MaxDailyLoss:   getFloat("MAX_DAILY_LOSS", 500.0),
		CooldownSecs:   getInt("COOLDOWN_SECONDS", 300),

		PriceFreshnessThreshold: time.Duration(getFloat("PRICE_FRESHNESS_THRESHOLD_S", 60)) * time.Second,
		IntegrityBlockLive:      getBool("PRICE_INTEGRITY_BLOCK_LIVE", true),

		WITSCountries: getList("WITS_COUNTRIES", "USA,CHN,EUN"),
		WITSProducts:  getList("WITS_PRODUCTS", "total"),
		GDELTKeywords: getList("GDELT_KEYWORDS", "tariff,trade war,sanctions"),

		AdaptiveWeights: getBool("ADAPTIVE_WEIGHTS", false),

		HyperliquidAPIKey: getEnv("HYPERLIQUID_API_KEY", ""),
		DriftRPCURL:       getEnv("DRIFT_RPC_URL", ""),
		SolanaRPCURL:      getEnv("SOLANA_RPC_URL", ""),
		SolanaPrivateKey:  getEnv("SOLANA_PRIVATE_KEY", ""),
		JupiterAPIURL:     getEnv("JUPITER_API_URL", "https://quote-api.jup.ag"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Jobs: DefaultJobIntervals(),
	}

	if path := getEnv("SCHEDULER_CONFIG", ""); path != "" {
		if err := cfg.loadSchedulerYAML(path); err != nil {
			return nil, fmt.Errorf("config: scheduler yaml: %w", err)
		}
	}

	return cfg, nil
}

// loadSchedulerYAML overlays job intervals from a YAML file. Jobs absent from
// the file keep their defaults.
func (c *Config) loadSchedulerYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	overlay := c.Jobs
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return err
	}
	if overlay.WITS > 0 {
		c.Jobs.WITS = overlay.WITS
	}
	if overlay.GDELT > 0 {
		c.Jobs.GDELT = overlay.GDELT
	}
	if overlay.Pyth > 0 {
		c.Jobs.Pyth = overlay.Pyth
	}
	if overlay.Kraken > 0 {
		c.Jobs.Kraken = overlay.Kraken
	}
	if overlay.CoinGecko > 0 {
		c.Jobs.CoinGecko = overlay.CoinGecko
	}
	if overlay.Drift > 0 {
		c.Jobs.Drift = overlay.Drift
	}
	if overlay.Solana > 0 {
		c.Jobs.Solana = overlay.Solana
	}
	if overlay.Hyperliquid > 0 {
		c.Jobs.Hyperliquid = overlay.Hyperliquid
	}
	if overlay.Compute > 0 {
		c.Jobs.Compute = overlay.Compute
	}
	if overlay.Agents > 0 {
		c.Jobs.Agents = overlay.Agents
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
