package sampler

import (
	"slices"
	"testing"
)

func TestBalancedIndicesExample(t *testing.T) {
	got := BalancedIndices(5, 7, 0)
	want := []int{0, 1, 2, 3, 4, 0, 1}
	if !slices.Equal(got, want) {
		t.Fatalf("BalancedIndices(5,7,0) = %v, want %v", got, want)
	}
}

func TestBalancedIndicesCountsDifferByAtMostOne(t *testing.T) {
	for tBank := 1; tBank <= 17; tBank++ {
		for k := 0; k <= 40; k++ {
			for offset := 0; offset < tBank+3; offset++ {
				order := BalancedIndices(tBank, k, offset)
				if len(order) != k {
					t.Fatalf("T=%d K=%d offset=%d: len=%d", tBank, k, offset, len(order))
				}
				counts, _ := PlannedCounts(order, tBank)
				lo, hi := slices.Min(counts), slices.Max(counts)
				if hi-lo > 1 {
					t.Fatalf("T=%d K=%d offset=%d: counts %v differ by %d", tBank, k, offset, counts, hi-lo)
				}
			}
		}
	}
}

func TestRotationPreservesBalanceProfile(t *testing.T) {
	c0, _ := PlannedCounts(BalancedIndices(5, 7, 0), 5)
	c3, _ := PlannedCounts(BalancedIndices(5, 7, 3), 5)

	if slices.Equal(c0, c3) {
		t.Fatalf("expected rotation to move the extra slots, both were %v", c0)
	}
	slices.Sort(c0)
	slices.Sort(c3)
	if !slices.Equal(c0, c3) {
		t.Fatalf("sorted counts differ: %v vs %v", c0, c3)
	}
}

func TestBalancedIndicesDegenerate(t *testing.T) {
	if got := BalancedIndices(0, 5, 0); len(got) != 0 {
		t.Errorf("T=0 should yield empty order, got %v", got)
	}
	if got := BalancedIndices(4, 0, 1); len(got) != 0 {
		t.Errorf("K=0 should yield empty order, got %v", got)
	}
}

func TestRotationOffset(t *testing.T) {
	if RotationOffset("claim", "m", "v", 0) != 0 {
		t.Error("T=0 must give offset 0")
	}
	a := RotationOffset("claim", "m", "v", 16)
	if a != RotationOffset("claim", "m", "v", 16) {
		t.Error("offset not deterministic")
	}
	if a < 0 || a >= 16 {
		t.Errorf("offset %d out of range", a)
	}

	seen := map[int]bool{}
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[RotationOffset(c, "m", "v", 16)] = true
	}
	if len(seen) < 2 {
		t.Error("offset should depend on the claim")
	}
}

func TestPlannedCounts(t *testing.T) {
	counts, ratio := PlannedCounts([]int{0, 1, 2, 0}, 4)
	if !slices.Equal(counts, []int{2, 1, 1, 0}) {
		t.Errorf("counts = %v", counts)
	}
	if ratio != 2.0 {
		t.Errorf("ratio = %v, want 2.0", ratio)
	}

	_, ratio = PlannedCounts(nil, 4)
	if ratio != 1.0 {
		t.Errorf("empty order ratio = %v, want 1.0", ratio)
	}

	for _, n := range []int{0, -3} {
		counts, ratio := PlannedCounts([]int{0, 1}, n)
		if len(counts) != 0 || ratio != 1.0 {
			t.Errorf("PlannedCounts(t=%d) = %v, %v", n, counts, ratio)
		}
	}
}

func TestSelectSubset(t *testing.T) {
	got := SelectSubset(16, 8, 14)
	want := []int{14, 15, 0, 1, 2, 3, 4, 5}
	if !slices.Equal(got, want) {
		t.Fatalf("SelectSubset = %v, want %v", got, want)
	}
	if len(SelectSubset(4, 8, 0)) != 4 {
		t.Error("subset should be capped at bank size")
	}
}
