package evaluator

import (
	"context"
	"errors"
	"time"
)

// #region errors
// ErrInvalidProbability marks a reply whose prob_true is missing, non-finite
// or outside (0,1). The controller treats it as a retryable failure.
var ErrInvalidProbability = errors.New("invalid prob_true")

// #endregion errors

// #region template
// Template is one fixed paraphrase of the evaluation instruction. ID is its
// position in the bank.
type Template struct {
	ID   int
	Text string
}

// #endregion template

// #region sample
// Sample is the outcome of one (template, replicate) query.
type Sample struct {
	TemplateID  int       `json:"template_id"`
	Fingerprint string    `json:"prompt_sha256"`
	ProbTrue    float64   `json:"prob_true"`
	ModelID     string    `json:"model_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// #endregion sample

// #region client
// Client issues a single evaluation query. Implementations must report a
// stable fingerprint of the composed prompt and a ProbTrue in (0,1).
type Client interface {
	Query(ctx context.Context, claim string, t Template, model string) (Sample, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, claim string, t Template, model string) (Sample, error)

// Query calls f.
func (f ClientFunc) Query(ctx context.Context, claim string, t Template, model string) (Sample, error) {
	return f(ctx, claim, t, model)
}

// #endregion client
