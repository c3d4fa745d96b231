package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"IPOAllocator/internal/calculator"
	"IPOAllocator/internal/explain"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/optimizer"
	"IPOAllocator/internal/strategy"
)

const (
	SolverExact  = "exact"
	SolverGreedy = "greedy"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Source struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		SnapshotFile string `yaml:"snapshot_file"`
	} `yaml:"source"`
	Allocation Allocation         `yaml:"allocation"`
	Scoring    Scoring            `yaml:"scoring"`
	Explain    explain.Thresholds `yaml:"explain"`
	Schedule   struct {
		AllocateCron string `yaml:"allocate_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Allocation holds the per-run request parameters and solver settings.
// MinScore and DiversificationWeight are pointers so an explicit zero
// survives defaulting.
type Allocation struct {
	Budget                decimal.Decimal `yaml:"budget"`
	HoldDays              int             `yaml:"hold_days"`
	MinScore              *float64        `yaml:"min_score"`
	LotCap                int             `yaml:"lot_cap"`
	DiversificationWeight *float64        `yaml:"diversification_weight"`
	TopFillK              int             `yaml:"top_fill_k"`
	Solver                string          `yaml:"solver"`
	SolverTimeout         time.Duration   `yaml:"solver_timeout"`
	MaxNodes              int             `yaml:"max_nodes"`
	NearMissMargin        float64         `yaml:"near_miss_margin"`
}

// Scoring holds the scorer weights, verdict bands and sentiment scale.
type Scoring struct {
	Weights        strategy.Weights          `yaml:"weights"`
	Bands          strategy.VerdictBands     `yaml:"bands"`
	SentimentScale calculator.SentimentScale `yaml:"sentiment_scale"`
}

// Request builds the allocation request for a run at now. The holding
// window ends HoldDays after today's date.
func (a Allocation) Request(now time.Time) model.AllocationRequest {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	req := model.NewAllocationRequest(a.Budget, today.AddDate(0, 0, a.HoldDays))
	if a.MinScore != nil {
		req.MinScore = *a.MinScore
	}
	if a.LotCap > 0 {
		req.LotCap = a.LotCap
	}
	if a.DiversificationWeight != nil {
		req.DiversificationWeight = *a.DiversificationWeight
	}
	if a.TopFillK > 0 {
		req.TopFillK = a.TopFillK
	}
	return req
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("SOURCE_API_KEY"); v != "" {
		cfg.Source.APIKey = v
	}
	if v := os.Getenv("SNAPSHOT_FILE"); v != "" {
		cfg.Source.SnapshotFile = v
	}
	if v := os.Getenv("ALLOCATION_BUDGET"); v != "" {
		budget, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("ALLOCATION_BUDGET: %w", err)
		}
		cfg.Allocation.Budget = budget
	}
	if v := os.Getenv("CRON_ALLOCATE"); v != "" {
		cfg.Schedule.AllocateCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Source.SnapshotFile == "" {
		c.Source.SnapshotFile = "data/snapshot.json"
	}

	a := &c.Allocation
	if a.HoldDays == 0 {
		a.HoldDays = 14
	}
	if a.LotCap == 0 {
		a.LotCap = model.DefaultLotCap
	}
	if a.TopFillK == 0 {
		a.TopFillK = model.DefaultTopFillK
	}
	if a.Solver == "" {
		a.Solver = SolverExact
	}
	if a.SolverTimeout == 0 {
		a.SolverTimeout = 10 * time.Second
	}
	if a.MaxNodes == 0 {
		a.MaxNodes = optimizer.DefaultMaxNodes
	}
	if a.NearMissMargin == 0 {
		a.NearMissMargin = 1.0
	}

	if c.Scoring.Weights.IsZero() {
		c.Scoring.Weights = strategy.DefaultWeights()
	}
	if c.Scoring.Bands == (strategy.VerdictBands{}) {
		c.Scoring.Bands = strategy.DefaultBands()
	}
	if c.Scoring.SentimentScale == "" {
		c.Scoring.SentimentScale = calculator.SentimentTen
	}
	if c.Explain == (explain.Thresholds{}) {
		c.Explain = explain.DefaultThresholds()
	}

	if c.Schedule.AllocateCron == "" {
		c.Schedule.AllocateCron = "0 0 9 * * 1-5"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/ipo_allocator.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	a := c.Allocation
	if !a.Budget.IsPositive() {
		return fmt.Errorf("allocation.budget must be positive")
	}
	if a.HoldDays < 0 {
		return fmt.Errorf("allocation.hold_days must not be negative")
	}
	if a.LotCap <= 0 {
		return fmt.Errorf("allocation.lot_cap must be positive")
	}
	if a.TopFillK <= 0 {
		return fmt.Errorf("allocation.top_fill_k must be positive")
	}
	if a.Solver != SolverExact && a.Solver != SolverGreedy {
		return fmt.Errorf("allocation.solver must be %q or %q, got %q", SolverExact, SolverGreedy, a.Solver)
	}
	if a.SolverTimeout < 0 {
		return fmt.Errorf("allocation.solver_timeout must not be negative")
	}
	if a.MaxNodes < 0 {
		return fmt.Errorf("allocation.max_nodes must not be negative")
	}
	if a.NearMissMargin < 0 {
		return fmt.Errorf("allocation.near_miss_margin must not be negative")
	}
	req := a.Request(time.Now())
	if err := req.Validate(); err != nil {
		return fmt.Errorf("allocation: %w", err)
	}

	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}
	if err := c.Scoring.Bands.Validate(); err != nil {
		return fmt.Errorf("scoring.bands: %w", err)
	}
	switch c.Scoring.SentimentScale {
	case calculator.SentimentTen, calculator.SentimentUnit:
	default:
		return fmt.Errorf("scoring.sentiment_scale must be %q or %q, got %q",
			calculator.SentimentTen, calculator.SentimentUnit, c.Scoring.SentimentScale)
	}
	if err := c.Explain.Validate(); err != nil {
		return fmt.Errorf("explain: %w", err)
	}

	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether notifications and command polling are on.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}
