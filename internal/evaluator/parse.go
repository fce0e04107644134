package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ParseProbability extracts prob_true from a model reply. The reply may wrap
// the JSON object in prose or a code fence; the outermost {...} is decoded.
func ParseProbability(text string) (float64, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("%w: no JSON object in reply", ErrInvalidProbability)
	}

	var payload struct {
		ProbTrue *float64 `json:"prob_true"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return 0, fmt.Errorf("%w: decode reply: %v", ErrInvalidProbability, err)
	}
	if payload.ProbTrue == nil {
		return 0, fmt.Errorf("%w: prob_true missing", ErrInvalidProbability)
	}
	return ValidateProbability(*payload.ProbTrue)
}

// ValidateProbability requires a finite p strictly inside (0,1).
func ValidateProbability(p float64) (float64, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 || p >= 1 {
		return 0, fmt.Errorf("%w: %v outside (0,1)", ErrInvalidProbability, p)
	}
	return p, nil
}
