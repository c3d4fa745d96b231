package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"IPOAllocator/internal/collector"
	"IPOAllocator/internal/config"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/recorder"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate a budget once and print the plan as JSON",
	Long: `Run one allocation against a snapshot file and print the plan.

The budget and holding window default to the allocation section of the
config; --budget and --hold-until override them for this run.`,
	RunE: runAllocate,
}

var (
	allocateSnapshot  string
	allocateBudget    string
	allocateHoldUntil string
	allocateSolver    string
	allocateRecord    bool
)

func init() {
	allocateCmd.Flags().StringVar(&allocateSnapshot, "snapshot", "", "Snapshot file (defaults to source.snapshot_file)")
	allocateCmd.Flags().StringVar(&allocateBudget, "budget", "", "Budget for this run")
	allocateCmd.Flags().StringVar(&allocateHoldUntil, "hold-until", "", "Last acceptable close date (YYYY-MM-DD)")
	allocateCmd.Flags().StringVar(&allocateSolver, "solver", "", "Solver path: exact or greedy")
	allocateCmd.Flags().BoolVar(&allocateRecord, "record", false, "Store the plan in the SQLite recorder")
	rootCmd.AddCommand(allocateCmd)
}

func allocateOverrides(cfg *config.Config) error {
	if allocateBudget != "" {
		b, err := decimal.NewFromString(strings.ReplaceAll(allocateBudget, ",", ""))
		if err != nil {
			return fmt.Errorf("invalid --budget %q: %w", allocateBudget, err)
		}
		cfg.Allocation.Budget = b
	}
	if allocateSolver != "" {
		cfg.Allocation.Solver = allocateSolver
	}
	if allocateSnapshot != "" {
		cfg.Source.SnapshotFile = allocateSnapshot
	}
	return nil
}

func runAllocate(cmd *cobra.Command, _ []string) error {
	cfg, l, err := setup(allocateOverrides)
	if err != nil {
		return err
	}

	req := cfg.Allocation.Request(time.Now())
	if allocateHoldUntil != "" {
		hold, err := time.ParseInLocation("2006-01-02", allocateHoldUntil, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --hold-until %q: %w", allocateHoldUntil, err)
		}
		req.HoldUntil = hold
	}

	eng, err := newEngine(cfg, l)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	col := collector.NewCollector(collector.NewFileSource(cfg.Source.SnapshotFile), l)
	universe, err := col.Collect(ctx)
	if err != nil {
		return err
	}

	plan, err := eng.Allocate(ctx, universe.Candidates, req)
	if err != nil {
		return err
	}

	if allocateRecord {
		if err := recordPlan(ctx, cfg, plan, l); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func recordPlan(ctx context.Context, cfg *config.Config, plan *model.AllocationPlan, l zerolog.Logger) error {
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, l)
	if err != nil {
		return fmt.Errorf("open recorder: %w", err)
	}
	defer rec.Close()
	return rec.RecordPlan(ctx, plan)
}
