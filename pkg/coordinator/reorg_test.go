// Copyright 2025 Certen Protocol
package coordinator

import (
	"testing"

	"github.com/certen/chain-coordinator/pkg/affirmation"
)

func TestComputeDivergenceCycle_NoDivergence(t *testing.T) {
	am := affirmation.FromEntries(affirmation.Present, affirmation.Absent, affirmation.Nothing)
	_, diverged := computeDivergenceCycle(am, am, am, am)
	if diverged {
		t.Fatalf("identical maps must not diverge")
	}
}

func TestComputeDivergenceCycle_SortitionDisagreesWithHeaviest(t *testing.T) {
	heaviest := affirmation.FromEntries(affirmation.Present, affirmation.Present)
	sortTip := affirmation.FromEntries(affirmation.Present, affirmation.Absent)
	hostTip := heaviest
	canonical := heaviest

	cycle, diverged := computeDivergenceCycle(sortTip, hostTip, canonical, heaviest)
	if !diverged {
		t.Fatalf("expected divergence")
	}
	if cycle != 1 {
		t.Fatalf("expected divergence at cycle 1, got %d", cycle)
	}
}

func TestComputeDivergenceCycle_HostTipTakesPrecedenceWhenEarlier(t *testing.T) {
	heaviest := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Present)
	sortTip := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Absent)
	hostTip := affirmation.FromEntries(affirmation.Absent)
	canonical := heaviest

	cycle, diverged := computeDivergenceCycle(sortTip, hostTip, canonical, heaviest)
	if !diverged {
		t.Fatalf("expected divergence")
	}
	if cycle != 0 {
		t.Fatalf("expected the earliest candidate (host tip at cycle 0), got %d", cycle)
	}
}

// TestComputeDivergenceCycle_PromotionAtSortitionPrefixBoundary exercises
// §4.4 step 1's promotion rule: when the sortition AM is a strict prefix
// of heaviest but the canonical AM continues past it, divergence is
// promoted to the first cycle the sortition AM doesn't cover yet, even
// though the sortition AM and heaviest agree on every cycle they share.
func TestComputeDivergenceCycle_PromotionAtSortitionPrefixBoundary(t *testing.T) {
	heaviest := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Present)
	sortTip := affirmation.FromEntries(affirmation.Present, affirmation.Present)
	hostTip := sortTip
	canonical := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Absent)

	cycle, diverged := computeDivergenceCycle(sortTip, hostTip, canonical, heaviest)
	if !diverged {
		t.Fatalf("expected promoted divergence at the sortition-AM boundary")
	}
	if cycle != 2 {
		t.Fatalf("expected promotion to cycle 2 (sortTip.Len()), got %d", cycle)
	}
}

func TestComputeDivergenceCycle_TakesMinimumOfCandidates(t *testing.T) {
	heaviest := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Present, affirmation.Present)
	sortTip := affirmation.FromEntries(affirmation.Present, affirmation.Present, affirmation.Absent)
	hostTip := affirmation.FromEntries(affirmation.Present, affirmation.Absent)
	canonical := heaviest

	cycle, diverged := computeDivergenceCycle(sortTip, hostTip, canonical, heaviest)
	if !diverged {
		t.Fatalf("expected divergence")
	}
	if cycle != 1 {
		t.Fatalf("expected the minimum candidate (host tip at cycle 1), got %d", cycle)
	}
}
