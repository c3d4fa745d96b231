package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"IPOAllocator/internal/model"
)

// SQLiteRecorder persists plans to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id                     TEXT PRIMARY KEY,
			created_at             INTEGER NOT NULL,
			budget                 TEXT NOT NULL,
			hold_until             TEXT NOT NULL,
			min_score              REAL,
			lot_cap                INTEGER,
			diversification_weight REAL,
			total_invested         TEXT NOT NULL,
			leftover               TEXT NOT NULL,
			objective              REAL,
			solver                 TEXT,
			degraded               INTEGER,
			degrade_reason         TEXT,
			eligible_count         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at)`,

		`CREATE TABLE IF NOT EXISTS plan_allocations (
			plan_id    TEXT NOT NULL REFERENCES plans(id),
			position   INTEGER NOT NULL,
			name       TEXT NOT NULL,
			category   TEXT,
			lots       INTEGER NOT NULL,
			min_invest TEXT NOT NULL,
			invested   TEXT NOT NULL,
			composite  REAL,
			verdict    TEXT,
			PRIMARY KEY (plan_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS plan_explanations (
			plan_id  TEXT NOT NULL REFERENCES plans(id),
			position INTEGER NOT NULL,
			name     TEXT NOT NULL,
			status   TEXT NOT NULL,
			payload  TEXT NOT NULL,
			PRIMARY KEY (plan_id, position)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordPlan stores the plan and its lines in one transaction.
func (r *SQLiteRecorder) RecordPlan(ctx context.Context, plan *model.AllocationPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO plans
		(id, created_at, budget, hold_until, min_score, lot_cap, diversification_weight,
		 total_invested, leftover, objective, solver, degraded, degrade_reason, eligible_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		plan.ID, plan.GeneratedAt.UnixNano(), plan.Budget, plan.HoldUntil.Format(time.RFC3339Nano),
		plan.MinScore, plan.LotCap, plan.DiversificationWeight,
		plan.TotalInvested, plan.Leftover, plan.Objective,
		plan.Solver, plan.Degraded, plan.DegradeReason, plan.EligibleCount,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}

	for i, a := range plan.Allocations {
		_, err := tx.ExecContext(ctx, `INSERT INTO plan_allocations
			(plan_id, position, name, category, lots, min_invest, invested, composite, verdict)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			plan.ID, i, a.Name, string(a.Category), a.Lots, a.MinInvest, a.Invested, a.Composite, string(a.Verdict),
		)
		if err != nil {
			return fmt.Errorf("insert allocation %s: %w", a.Name, err)
		}
	}

	for i, e := range plan.Explanations {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode explanation %s: %w", e.Name, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_explanations
			(plan_id, position, name, status, payload) VALUES (?,?,?,?,?)`,
			plan.ID, i, e.Name, string(e.Status), string(payload),
		)
		if err != nil {
			return fmt.Errorf("insert explanation %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.log.Debug().Str("plan_id", plan.ID).Int("allocations", len(plan.Allocations)).Msg("plan recorded")
	return nil
}

// LoadPlan reconstructs a stored plan by ID.
func (r *SQLiteRecorder) LoadPlan(ctx context.Context, id string) (*model.AllocationPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, id)
}

// LatestPlan returns the most recently generated plan.
func (r *SQLiteRecorder) LatestPlan(ctx context.Context) (*model.AllocationPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM plans ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest plan: %w", err)
	}
	return r.load(ctx, id)
}

func (r *SQLiteRecorder) load(ctx context.Context, id string) (*model.AllocationPlan, error) {
	var (
		plan      model.AllocationPlan
		createdAt int64
		holdUntil string
		reason    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT
		id, created_at, budget, hold_until, min_score, lot_cap, diversification_weight,
		total_invested, leftover, objective, solver, degraded, degrade_reason, eligible_count
		FROM plans WHERE id = ?`, id).Scan(
		&plan.ID, &createdAt, &plan.Budget, &holdUntil, &plan.MinScore, &plan.LotCap,
		&plan.DiversificationWeight, &plan.TotalInvested, &plan.Leftover, &plan.Objective,
		&plan.Solver, &plan.Degraded, &reason, &plan.EligibleCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan %s: %w", id, err)
	}
	plan.GeneratedAt = time.Unix(0, createdAt).UTC()
	if plan.HoldUntil, err = time.Parse(time.RFC3339Nano, holdUntil); err != nil {
		return nil, fmt.Errorf("plan %s hold_until: %w", id, err)
	}
	plan.DegradeReason = reason.String

	if plan.Allocations, err = r.loadAllocations(ctx, id); err != nil {
		return nil, err
	}
	if plan.Explanations, err = r.loadExplanations(ctx, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *SQLiteRecorder) loadAllocations(ctx context.Context, id string) ([]model.Allocation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, category, lots, min_invest, invested, composite, verdict
		FROM plan_allocations WHERE plan_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	out := []model.Allocation{}
	for rows.Next() {
		var (
			a                 model.Allocation
			category, verdict string
		)
		if err := rows.Scan(&a.Name, &category, &a.Lots, &a.MinInvest, &a.Invested, &a.Composite, &verdict); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.Category = model.Category(category)
		a.Verdict = model.Verdict(verdict)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) loadExplanations(ctx context.Context, id string) ([]model.Explanation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM plan_explanations
		WHERE plan_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query explanations: %w", err)
	}
	defer rows.Close()

	out := []model.Explanation{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan explanation: %w", err)
		}
		var e model.Explanation
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode explanation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
