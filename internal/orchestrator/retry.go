package orchestrator

import "sync"

// #region constants

// failureFactor bounds cumulative failures per template at failureFactor*R.
const failureFactor = 5

// #endregion

// #region budget

// RetryBudget tracks cumulative query failures per template across a run.
// Counts are never reset between stages.
type RetryBudget struct {
	mu       sync.Mutex
	failures map[int]int
}

// NewRetryBudget creates an empty budget.
func NewRetryBudget() *RetryBudget {
	return &RetryBudget{failures: make(map[int]int)}
}

// Limit is the failure ceiling for a stage with r replicates.
func Limit(r int) int {
	return failureFactor * r
}

// #endregion

// #region should-retry

// RecordFailure counts one failure for templateID and reports whether another
// attempt is allowed under a limit of limit failures.
func (b *RetryBudget) RecordFailure(templateID, limit int) (failures int, retry bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[templateID]++
	failures = b.failures[templateID]
	return failures, failures < limit
}

// Failures returns the cumulative failure count for templateID.
func (b *RetryBudget) Failures(templateID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[templateID]
}

// Total returns the failure count summed over all templates.
func (b *RetryBudget) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.failures {
		n += f
	}
	return n
}

// #endregion
