// Copyright 2025 Certen Protocol
//
// Package rewardcycle derives RewardCycleInfo for the first block of a
// reward cycle (§4.2), reinterprets the previous cycle's anchor status
// against the canonical affirmation map (§4.3), computes the reward set
// from host-chain state (§4.2 Reward-set derivation), and implements the
// Paid Rewards Calculator (§2.3).
package rewardcycle

// Epoch describes one epoch's reward-cycle-relevant parameters, loaded
// from pkg/config's YAML EpochConfig. Epochs are ordered by
// StartBurnHeight; the coordinator looks up the epoch active at a given
// burnchain height by scanning this table.
type Epoch struct {
	Name string

	// StartBurnHeight is the first burn height at which this epoch's
	// rules apply.
	StartBurnHeight uint64

	// PoxSunsetHeight is the burn height past which no cycle selects an
	// anchor block, regardless of commits (§4.2 step 1). Zero means no
	// sunset in this epoch.
	PoxSunsetHeight uint64

	// FStarNumerator/FStarDenominator express the legacy F*w anchor
	// selection threshold as a fraction of prepare-phase confirmations
	// (§4.2 step 2, "F*w rule").
	FStarNumerator   uint64
	FStarDenominator uint64

	// PostTransition is true for epochs that use the burnchain store's
	// block-commit-weighted anchor selection (§4.2 step 2) instead of
	// the legacy F*w rule, and commit-weighted affirmation maps instead
	// of sortition-derived ones (§4.1).
	PostTransition bool

	// MinParticipationNumerator/Denominator is the minimum fraction of
	// liquid supply that must be stacked for a cycle's reward set to be
	// anything other than all-burn (§4.2 Reward-set derivation).
	MinParticipationNumerator   uint64
	MinParticipationDenominator uint64

	RewardCycleLength uint64
	PrepareLength     uint64
}

// Table is an ordered list of Epoch, earliest StartBurnHeight first.
type Table []Epoch

// At returns the epoch active at burnHeight: the last epoch in the
// table whose StartBurnHeight is <= burnHeight. Panics if the table is
// empty; a burnHeight before the first epoch's StartBurnHeight returns
// the first epoch.
func (t Table) At(burnHeight uint64) Epoch {
	best := t[0]
	for _, e := range t {
		if e.StartBurnHeight > burnHeight {
			break
		}
		best = e
	}
	return best
}

// BoundaryCycle returns the reward cycle of the first block of the
// first PostTransition epoch, i.e. the boundary_cycle consulted by
// affirmation.Consolidate (§4.1). Returns (0, false) if no epoch in the
// table is PostTransition.
func (t Table) BoundaryCycle() (uint64, bool) {
	for _, e := range t {
		if e.PostTransition {
			return e.StartBurnHeight / e.RewardCycleLength, true
		}
	}
	return 0, false
}

// IsFirstBlockOfCycle reports whether burnHeight is the first burn
// height of its reward cycle under length rewardCycleLength.
func IsFirstBlockOfCycle(burnHeight, rewardCycleLength uint64) bool {
	return burnHeight%rewardCycleLength == 0
}

// CycleOf returns the reward cycle containing burnHeight.
func CycleOf(burnHeight, rewardCycleLength uint64) uint64 {
	return burnHeight / rewardCycleLength
}

// RewardCycleStartHeight returns the first burn height of cycle rc.
func RewardCycleStartHeight(rc, rewardCycleLength uint64) uint64 {
	return rc * rewardCycleLength
}

// IsPastSunset reports whether cycle rc is past the PoX sunset for the
// given epoch — a sunset height of 0 means the epoch never sunsets.
func IsPastSunset(rc uint64, e Epoch) bool {
	if e.PoxSunsetHeight == 0 {
		return false
	}
	return RewardCycleStartHeight(rc, e.RewardCycleLength) >= e.PoxSunsetHeight
}
