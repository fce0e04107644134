package orchestrator

import (
	"fmt"
	"strings"
)

// #region default-plan

// DefaultPolicy names the built-in escalation policy.
const DefaultPolicy = "templates_first_then_replicates"

// DefaultPlan widens templates first and raises replicates last, each stage
// capped by the bank size.
func DefaultPlan(bankSize, startR, maxR int) []StagePlanEntry {
	capped := func(n int) int {
		if n > bankSize {
			return bankSize
		}
		return n
	}
	return []StagePlanEntry{
		{T: capped(8), K: capped(8), R: startR},
		{T: capped(16), K: capped(16), R: startR},
		{T: capped(16), K: capped(16), R: maxR},
	}
}

// #endregion

// #region actions

// EscalateAction renders the action name for escalating into next.
func EscalateAction(next StagePlanEntry) string {
	return fmt.Sprintf("%sT%d_K%d_R%d", escalatePrefix, next.T, next.K, next.R)
}

// IsEscalation reports whether action is an escalate_to_* action.
func IsEscalation(action string) bool {
	return strings.HasPrefix(action, escalatePrefix)
}

// ActionKind collapses escalation actions to "escalate" for metrics.
func ActionKind(action string) string {
	if IsEscalation(action) {
		return "escalate"
	}
	return action
}

// #endregion

// #region validate

func validatePlan(plan []StagePlanEntry, bankSize int) error {
	if len(plan) == 0 {
		return &ConfigError{Field: "plan", Reason: "stage plan is empty"}
	}
	for i, e := range plan {
		switch {
		case e.T <= 0 || e.K <= 0 || e.R <= 0:
			return &ConfigError{Field: fmt.Sprintf("plan[%d]", i), Reason: fmt.Sprintf("T, K and R must be positive, got T=%d K=%d R=%d", e.T, e.K, e.R)}
		case e.T > bankSize:
			return &ConfigError{Field: fmt.Sprintf("plan[%d]", i), Reason: fmt.Sprintf("T=%d exceeds template bank size %d", e.T, bankSize)}
		}
	}
	return nil
}

// #endregion
