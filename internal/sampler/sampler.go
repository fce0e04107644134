package sampler

import (
	"crypto/sha256"
	"encoding/binary"
)

// #region rotation
// RotationOffset derives a claim-sensitive starting template for a bank of
// size t. Returns 0 when t <= 0.
func RotationOffset(claim, model, version string, t int) int {
	if t <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(claim + model + version))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(t))
}

// Rotate returns [0..t-1] rotated left by offset mod t.
func Rotate(t, offset int) []int {
	if t <= 0 {
		return nil
	}
	offset = ((offset % t) + t) % t
	out := make([]int, t)
	for i := range out {
		out[i] = (i + offset) % t
	}
	return out
}

// #endregion rotation

// #region balanced
// BalancedIndices distributes k slots over the rotated bank [0..t-1]. Every
// template gets k/t slots and the first k%t templates of the rotated order
// get one extra, so usage counts never differ by more than one.
func BalancedIndices(t, k, offset int) []int {
	if t <= 0 || k <= 0 {
		return []int{}
	}
	order := Rotate(t, offset)
	out := make([]int, 0, k)
	for len(out) < k {
		for _, idx := range order {
			if len(out) == k {
				break
			}
			out = append(out, idx)
		}
	}
	return out
}

// SelectSubset picks the first n templates of the rotated bank of size t.
// n is capped at t.
func SelectSubset(t, n, offset int) []int {
	if n > t {
		n = t
	}
	if n <= 0 {
		return []int{}
	}
	return Rotate(t, offset)[:n]
}

// #endregion balanced

// #region counts
// PlannedCounts tallies how often each template index in [0, t) appears in
// order and returns the max/min ratio over templates that were used at all.
// The ratio is 1.0 when nothing is used.
func PlannedCounts(order []int, t int) ([]int, float64) {
	if t <= 0 {
		return []int{}, 1.0
	}
	counts := make([]int, t)
	for _, idx := range order {
		if idx >= 0 && idx < t {
			counts[idx]++
		}
	}
	return counts, ImbalanceRatio(counts)
}

// ImbalanceRatio returns max(count)/min(count) over counts > 0.
func ImbalanceRatio(counts []int) float64 {
	lo, hi := 0, 0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		if lo == 0 || c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if lo == 0 {
		return 1.0
	}
	return float64(hi) / float64(lo)
}

// #endregion counts
