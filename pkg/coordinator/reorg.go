// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/types"
)

// ReorgResult reports whether a reorg ran and, if so, the divergence
// cycle it rewound to.
type ReorgResult struct {
	Ran             bool
	DivergenceCycle uint64
	NewCanonicalTip types.SortitionId
}

// runReorg implements §4.4: bring the sortition validity tree and host
// -tip memoization into agreement with the heaviest affirmation map.
// It is idempotent (P4) — called with no new inputs since the last run,
// it finds no divergence and only refreshes the canonical host-tip memo.
func (c *Coordinator) runReorg(ctx context.Context) (ReorgResult, error) {
	sortTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: canonical tip: %w", err)
	}

	epoch := c.cfg.Epochs.At(sortTip.BlockHeight)
	currentCycle := rewardcycle.CycleOf(sortTip.BlockHeight, epoch.RewardCycleLength)

	heaviest, err := c.burnchain.GetHeaviestAnchorBlockAffirmationMap(ctx)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: heaviest am: %w", err)
	}
	sortTipAM, err := c.sortitions.FindSortitionTipAffirmationMap(ctx, sortTip.SortitionId)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: sortition tip am: %w", err)
	}
	hostTipAM, err := c.hostchain.FindStacksTipAffirmationMap(ctx, c.burnchain, c.sortitions, sortTip.CanonicalHostTipConsensusHash, sortTip.CanonicalHostTipBlockHash)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: host tip am: %w", err)
	}
	canonicalAM, err := c.hostchain.FindCanonicalAffirmationMap(ctx, c.burnchain)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: canonical am: %w", err)
	}

	// §4.1: all four derived AMs are consolidated against the sortition
	// AM at the boundary cycle before any comparison is made, so that
	// entries at or before the boundary are never rewritten once the
	// post-transition regime has taken effect. The store only has a
	// boundary cycle once a crossing has actually been persisted to
	// epoch_boundaries; until then fall back to the config table's
	// statically known PostTransition start, so consolidation still
	// applies on the very first reorg run after the transition height
	// is reached but before anything has recorded it.
	boundaryCycle, err := c.sortitions.GetLastEpochBoundaryCycle(ctx)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: epoch boundary cycle: %w", err)
	}
	if configBoundary, ok := c.cfg.Epochs.BoundaryCycle(); ok && configBoundary > boundaryCycle {
		boundaryCycle = configBoundary
	}
	heaviest = affirmation.Consolidate(heaviest, sortTipAM, boundaryCycle)
	hostTipAM = affirmation.Consolidate(hostTipAM, sortTipAM, boundaryCycle)
	canonicalAM = affirmation.Consolidate(canonicalAM, sortTipAM, boundaryCycle)
	sortTipAM = affirmation.Consolidate(sortTipAM, sortTipAM, boundaryCycle)

	divCycle, diverged := computeDivergenceCycle(sortTipAM, hostTipAM, canonicalAM, heaviest)
	if !diverged || divCycle >= currentCycle {
		if err := c.rememoizeCanonicalHostTip(ctx, sortTip, heaviest); err != nil {
			return ReorgResult{}, fmt.Errorf("reorg: rememoize: %w", err)
		}
		return ReorgResult{}, nil
	}

	c.metrics.ReorgsTotal.Inc()
	c.metrics.DivergenceCycle.Set(float64(divCycle))
	c.logger.Info("reorg engine beginning rewind", "divergence_cycle", divCycle, "current_cycle", currentCycle)

	firstInvalidateStart, lastInvalidateStart, revalidate, err := c.planReorg(ctx, divCycle, currentCycle, epoch, heaviest)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: plan: %w", err)
	}
	if firstInvalidateStart == 0 && len(revalidate) == 0 {
		// No height in range produced a divergent sortition: nothing to
		// invalidate. Still re-memoize and return.
		if err := c.rememoizeCanonicalHostTip(ctx, sortTip, heaviest); err != nil {
			return ReorgResult{}, fmt.Errorf("reorg: rememoize after empty plan: %w", err)
		}
		return ReorgResult{Ran: true, DivergenceCycle: divCycle}, nil
	}

	invalidateAtHeader, ok, err := c.burnHeaderAtHeight(ctx, firstInvalidateStart-1)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: invalidate-from header: %w", err)
	}
	if ok {
		if err := c.sortitions.InvalidateDescendantsWithClosures(ctx, invalidateAtHeader, nil, nil); err != nil {
			return ReorgResult{}, fmt.Errorf("reorg: invalidate descendants: %w", err)
		}
	}

	for _, r := range revalidate {
		if err := c.sortitions.RevalidateSnapshotWithBlock(ctx, r.SortitionId, r.CanonicalHostTipConsensusHash, r.CanonicalHostTipBlockHash, r.CanonicalHostTipHeight, true); err != nil {
			return ReorgResult{}, fmt.Errorf("reorg: revalidate %s: %w", r.SortitionId, err)
		}
	}

	if err := c.forgetOrphansInRange(ctx, firstInvalidateStart, lastInvalidateStart); err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: forget orphans: %w", err)
	}

	ch, bhh, height, err := c.highestCompatibleHostBlock(ctx, heaviest, sortTip)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: highest compatible host block: %w", err)
	}

	dirty, err := c.sortitions.FindSnapshotsWithDirtyCanonicalBlockPointers(ctx, firstInvalidateStart)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: dirty snapshots: %w", err)
	}
	for _, id := range dirty {
		if err := c.sortitions.RevalidateSnapshotWithBlock(ctx, id, ch, bhh, height, true); err != nil {
			return ReorgResult{}, fmt.Errorf("reorg: refresh dirty %s: %w", id, err)
		}
	}

	newTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return ReorgResult{}, fmt.Errorf("reorg: new canonical tip: %w", err)
	}

	return ReorgResult{Ran: true, DivergenceCycle: divCycle, NewCanonicalTip: newTip.SortitionId}, nil
}

// computeDivergenceCycle implements §4.4 step 1: the minimum of the
// host-tip and sortition-tip divergence cycles against heaviest, with
// divergence promoted to the boundary where sortTipAM is a strict
// prefix of heaviest but canonicalAM continues past it.
func computeDivergenceCycle(sortTipAM, hostTipAM, canonicalAM, heaviest affirmation.Map) (uint64, bool) {
	var candidates []uint64

	if cycle, ok := hostTipAM.FindDivergence(heaviest); ok {
		candidates = append(candidates, cycle)
	}
	if cycle, ok := sortTipAM.FindDivergence(heaviest); ok {
		candidates = append(candidates, cycle)
	}
	if heaviest.HasPrefix(sortTipAM) && heaviest.Len() > sortTipAM.Len() && canonicalAM.Len() > sortTipAM.Len() {
		candidates = append(candidates, uint64(sortTipAM.Len()))
	}

	if len(candidates) == 0 {
		return 0, false
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c < min {
			min = c
		}
	}
	return min, true
}

// planReorg implements §4.4 step 3: for each cycle in [divCycle,
// currentCycle), find the first whose height-H+1 sortitions diverge
// from heaviest exactly at that cycle, then compute the invalidation
// and revalidation ranges around it.
func (c *Coordinator) planReorg(ctx context.Context, divCycle, currentCycle uint64, epoch rewardcycle.Epoch, heaviest affirmation.Map) (firstInvalidateStart, lastInvalidateStart uint64, revalidate []types.Sortition, err error) {
	for rc := divCycle; rc < currentCycle; rc++ {
		h := rewardcycle.RewardCycleStartHeight(rc, epoch.RewardCycleLength)

		candidates, err := c.sortitions.GetSnapshotsAtHeight(ctx, h+1)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("snapshots at %d: %w", h+1, err)
		}

		found := false
		for _, s := range candidates {
			am, err := c.sortitions.FindSortitionTipAffirmationMap(ctx, s.SortitionId)
			if err != nil {
				return 0, 0, nil, fmt.Errorf("am for %s: %w", s.SortitionId, err)
			}
			if cycle, ok := am.FindDivergence(heaviest); ok && cycle == rc {
				found = true
				break
			}
		}
		if !found {
			continue
		}

		burnTip, err := c.burnchain.GetCanonicalTip(ctx)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("burnchain canonical tip: %w", err)
		}

		lastInvalidateStart = h
		for height := h; height <= burnTip.BlockHeight; height++ {
			snaps, err := c.sortitions.GetSnapshotsAtHeight(ctx, height)
			if err != nil {
				return 0, 0, nil, fmt.Errorf("snapshots at %d: %w", height, err)
			}
			produced := false
			for _, s := range snaps {
				am, err := c.sortitions.FindSortitionTipAffirmationMap(ctx, s.SortitionId)
				if err != nil {
					return 0, 0, nil, fmt.Errorf("am for %s: %w", s.SortitionId, err)
				}
				if heaviest.HasPrefix(am) {
					revalidate = append(revalidate, s)
					produced = true
				}
			}
			if !produced {
				lastInvalidateStart = height
			}
		}

		firstInvalidateStart = h
		return firstInvalidateStart, lastInvalidateStart, revalidate, nil
	}
	return 0, 0, nil, nil
}

// forgetOrphansInRange un-orphans host blocks staged at burn heights in
// [from, to] so they may be reconsidered for processing (§4.4 step 5).
// It commits at most one host-store transaction (none when no blocks
// are staged in the range), satisfying the idempotence contract.
func (c *Coordinator) forgetOrphansInRange(ctx context.Context, from, to uint64) error {
	if from > to {
		return nil
	}
	blocks, err := c.hostchain.GetStagedBlocksInBurnHeightRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("staged blocks in range: %w", err)
	}
	if len(blocks) == 0 {
		return nil
	}

	tx, err := c.hostchain.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, b := range blocks {
		if err := c.hostchain.ForgetOrphanedEpochData(ctx, tx, b.ConsensusHash, b.HostBlockHash); err != nil {
			return fmt.Errorf("forget orphaned epoch data for %s: %w", b.HostBlockHash, err)
		}
	}

	return tx.Commit()
}

// burnHeaderAtHeight fetches the burn-header hash recorded at height.
func (c *Coordinator) burnHeaderAtHeight(ctx context.Context, height uint64) (types.BurnHeaderHash, bool, error) {
	h, ok, err := c.burnchain.GetBurnchainHeader(ctx, height)
	if err != nil {
		return types.BurnHeaderHash{}, false, err
	}
	if !ok {
		return types.BurnHeaderHash{}, false, nil
	}
	return h.BurnHeaderHash, true, nil
}

// rememoizeCanonicalHostTip refreshes sortTip's canonical-host-tip
// fields without beginning a reorg (§4.4 step 2 "no divergence" path).
func (c *Coordinator) rememoizeCanonicalHostTip(ctx context.Context, sortTip types.Sortition, heaviest affirmation.Map) error {
	ch, bhh, height, err := c.highestCompatibleHostBlock(ctx, heaviest, sortTip)
	if err != nil {
		return err
	}
	return c.sortitions.RevalidateSnapshotWithBlock(ctx, sortTip.SortitionId, ch, bhh, height, true)
}
