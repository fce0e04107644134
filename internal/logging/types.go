package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	RunID     string
	Stage     int
	Action    string // "stop_pass" | "stop_limits" | "escalate_to_T<t>_K<k>_R<r>"
	Reason    string
	GatesJSON string
	Warning   string
	CreatedAt time.Time
}
// #endregion decision-entry
