package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"IPOAllocator/internal/allocator"
	"IPOAllocator/internal/collector"
	"IPOAllocator/internal/config"
	"IPOAllocator/internal/logger"
	"IPOAllocator/internal/optimizer"
	"IPOAllocator/internal/strategy"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Score IPO offerings and allocate a budget across them",
	Long: `IPO allocator scores open offerings, filters them against the
holding window and minimum score, and spreads a budget across whole
application lots.

Commands:
- serve:    scheduled runs, Telegram commands and a /metrics endpoint
- allocate: one allocation from a snapshot file, printed as JSON
- fetch:    download a snapshot from the upstream source`,
	SilenceUsage: true,
}

func init() {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("allocator failed")
		os.Exit(1)
	}
}

// setup loads the config, applies command-line overrides, validates it and
// installs the global logger.
func setup(overrides ...func(*config.Config) error) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	for _, o := range overrides {
		if err := o(cfg); err != nil {
			return nil, zerolog.Nop(), err
		}
	}
	// stdout carries command output
	l := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: os.Stderr})
	logger.SetGlobalLogger(l)
	if err := cfg.Validate(); err != nil {
		return nil, l, fmt.Errorf("config validation: %w", err)
	}
	return cfg, l, nil
}

func newEngine(cfg *config.Config, l zerolog.Logger, opts ...allocator.Option) (*allocator.Engine, error) {
	scorer, err := strategy.NewScorer(cfg.Scoring.Weights, cfg.Scoring.Bands, cfg.Scoring.SentimentScale)
	if err != nil {
		return nil, fmt.Errorf("init scorer: %w", err)
	}

	var exact optimizer.Solver
	if cfg.Allocation.Solver == config.SolverExact {
		exact = optimizer.NewExactSolver(cfg.Allocation.MaxNodes, l)
	}
	settings := allocator.Settings{
		NearMissMargin: cfg.Allocation.NearMissMargin,
		SolverTimeout:  cfg.Allocation.SolverTimeout,
	}
	return allocator.NewEngine(scorer, cfg.Explain, exact, settings, l, opts...), nil
}

func newSource(cfg *config.Config) collector.Source {
	if cfg.Source.BaseURL != "" {
		return collector.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Proxy)
	}
	return collector.NewFileSource(cfg.Source.SnapshotFile)
}
