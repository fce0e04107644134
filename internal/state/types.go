package state

import (
	"errors"
	"time"
)

// #region errors
// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")
// #endregion errors

// #region run-summary
// RunSummary is one row of ListRuns: enough to pick a run for inspection.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	RunKey        string    `json:"run_key"`
	Claim         string    `json:"claim"`
	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	Status        string    `json:"status"`
	Prob          float64   `json:"prob_true"`
	CILo          float64   `json:"ci_lo"`
	CIHi          float64   `json:"ci_hi"`
	Stages        int       `json:"stages"`
	CreatedAt     time.Time `json:"created_at"`
}
// #endregion run-summary
