package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/peakyragnar/hx-sub001/internal/evaluator"
	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	run_key         TEXT NOT NULL,
	claim           TEXT NOT NULL,
	model           TEXT NOT NULL,
	prompt_version  TEXT NOT NULL,
	status          TEXT NOT NULL,
	prob_true       REAL NOT NULL,
	ci_lo           REAL NOT NULL,
	ci_hi           REAL NOT NULL,
	stage_count     INTEGER NOT NULL,
	final_json      TEXT NOT NULL,
	decisions_json  TEXT NOT NULL,
	controller_json TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stages (
	run_id        TEXT NOT NULL,
	stage_index   INTEGER NOT NULL,
	t             INTEGER NOT NULL,
	k             INTEGER NOT NULL,
	r             INTEGER NOT NULL,
	passed        INTEGER NOT NULL,
	snapshot_json TEXT NOT NULL,
	PRIMARY KEY (run_id, stage_index),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS samples (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_key      TEXT NOT NULL,
	template_id  INTEGER NOT NULL,
	fingerprint  TEXT NOT NULL,
	prob_true    REAL NOT NULL,
	model_id     TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_run_key ON samples(run_key);

CREATE TABLE IF NOT EXISTS decision_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	stage_index  INTEGER NOT NULL,
	action       TEXT NOT NULL,
	reason       TEXT,
	gates_json   TEXT,
	warning      TEXT,
	created_at   TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists runs, stage snapshots and raw samples in SQLite. It
// implements orchestrator.SampleCache.
type Store struct {
	db *sql.DB
}

var _ orchestrator.SampleCache = (*Store)(nil)
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region save-run
// SaveRun writes the run row and one row per stage snapshot in a single
// transaction.
func (s *Store) SaveRun(ctx context.Context, r *orchestrator.RunResult) error {
	finalJSON, err := json.Marshal(r.Final)
	if err != nil {
		return fmt.Errorf("marshal final: %w", err)
	}
	decisionsJSON, err := json.Marshal(r.DecisionLog)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	controllerJSON, err := json.Marshal(r.Controller)
	if err != nil {
		return fmt.Errorf("marshal controller: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := r.Controller.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, run_key, claim, model, prompt_version, status, prob_true, ci_lo, ci_hi,
		 stage_count, final_json, decisions_json, controller_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.RunKey, r.Claim, r.Model, r.PromptVersion, r.Status(),
		r.Final.Prob, r.Final.CILo, r.Final.CIHi, len(r.Stages),
		string(finalJSON), string(decisionsJSON), string(controllerJSON),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, st := range r.Stages {
		snapJSON, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal stage %d: %w", st.Index, err)
		}
		passed := 0
		if st.Passed {
			passed = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stages (run_id, stage_index, t, k, r, passed, snapshot_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, st.Index, st.T, st.K, st.R, passed, string(snapJSON),
		)
		if err != nil {
			return fmt.Errorf("insert stage %d: %w", st.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion save-run

// #region get-run
// GetRun rebuilds a full run record from its run and stage rows.
func (s *Store) GetRun(ctx context.Context, runID string) (*orchestrator.RunResult, error) {
	r := &orchestrator.RunResult{}
	var finalJSON, decisionsJSON, controllerJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, run_key, claim, model, prompt_version, final_json, decisions_json, controller_json
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.RunKey, &r.Claim, &r.Model, &r.PromptVersion, &finalJSON, &decisionsJSON, &controllerJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(finalJSON), &r.Final); err != nil {
		return nil, fmt.Errorf("unmarshal final: %w", err)
	}
	if err := json.Unmarshal([]byte(decisionsJSON), &r.DecisionLog); err != nil {
		return nil, fmt.Errorf("unmarshal decisions: %w", err)
	}
	if err := json.Unmarshal([]byte(controllerJSON), &r.Controller); err != nil {
		return nil, fmt.Errorf("unmarshal controller: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_json FROM stages WHERE run_id = ? ORDER BY stage_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var snapJSON string
		if err := rows.Scan(&snapJSON); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		var st orchestrator.StageSnapshot
		if err := json.Unmarshal([]byte(snapJSON), &st); err != nil {
			return nil, fmt.Errorf("unmarshal stage: %w", err)
		}
		r.Stages = append(r.Stages, st)
	}
	return r, rows.Err()
}
// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, run_key, claim, model, prompt_version, status, prob_true, ci_lo, ci_hi, stage_count, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var createdStr string
		if err := rows.Scan(&rs.RunID, &rs.RunKey, &rs.Claim, &rs.Model, &rs.PromptVersion, &rs.Status,
			&rs.Prob, &rs.CILo, &rs.CIHi, &rs.Stages, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rs.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rs)
	}
	return out, rows.Err()
}
// #endregion list-runs

// #region samples
// SaveSample appends one collected sample under runKey.
func (s *Store) SaveSample(ctx context.Context, runKey string, smp evaluator.Sample) error {
	ts := smp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var modelID any
	if smp.ModelID != "" {
		modelID = smp.ModelID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (run_key, template_id, fingerprint, prob_true, model_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runKey, smp.TemplateID, smp.Fingerprint, smp.ProbTrue, modelID, ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// LoadSamples returns every sample stored under runKey in insertion order.
func (s *Store) LoadSamples(ctx context.Context, runKey string) ([]evaluator.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id, fingerprint, prob_true, model_id, created_at
		 FROM samples WHERE run_key = ? ORDER BY id`, runKey)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()

	var out []evaluator.Sample
	for rows.Next() {
		var smp evaluator.Sample
		var modelID sql.NullString
		var createdStr string
		if err := rows.Scan(&smp.TemplateID, &smp.Fingerprint, &smp.ProbTrue, &modelID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if modelID.Valid {
			smp.ModelID = modelID.String
		}
		smp.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, smp)
	}
	return out, rows.Err()
}
// #endregion samples
