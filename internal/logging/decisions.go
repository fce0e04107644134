package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
)

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (run_id, stage_index, action, reason, gates_json, warning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Stage,
		entry.Action,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.GatesJSON),
		nullIfEmpty(entry.Warning),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region list-decisions
// ListDecisions returns the logged decisions of one run in insertion order.
func ListDecisions(db *sql.DB, runID string) ([]DecisionEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, stage_index, action, reason, gates_json, warning, created_at
		 FROM decision_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var reason, gates, warning sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Action, &reason, &gates, &warning, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Reason, e.GatesJSON, e.Warning = reason.String, gates.String, warning.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion list-decisions

// #region sink
// Sink adapts LogDecision to an orchestrator.DecisionSink. Write failures
// are logged and never abort the run.
func Sink(db *sql.DB) orchestrator.DecisionSink {
	return func(runID string, d orchestrator.Decision) {
		gatesJSON, err := json.Marshal(d.Gates)
		if err != nil {
			log.Printf("[STORE] marshal gates run_id=%s stage=%d: %v", runID, d.Stage, err)
		}
		entry := DecisionEntry{
			RunID:     runID,
			Stage:     d.Stage,
			Action:    d.Action,
			Reason:    d.Reason,
			GatesJSON: string(gatesJSON),
			Warning:   d.Warning,
		}
		if err := LogDecision(db, entry); err != nil {
			log.Printf("[STORE] decision not persisted run_id=%s stage=%d: %v", runID, d.Stage, err)
		}
	}
}
// #endregion sink

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
