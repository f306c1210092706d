// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/types"
)

// AnchorOutcome reports what handleAnchorCandidate decided.
type AnchorOutcome struct {
	// Affirmed is true if the candidate was confirmed present in the
	// heaviest affirmation map and the coordinator rewound to its
	// prepare-end sortition.
	Affirmed bool
	// RestartFrom is the prepare-end sortition ingestion should resume
	// from, populated only when Affirmed is true.
	RestartFrom types.SortitionId
}

// handleAnchorCandidate implements §4.8: given a host block that passed
// its prepare phase's confirmation threshold, decide whether the
// network has affirmed it and, if so, rewind the sortition tree to the
// prepare-end that selected it.
func (c *Coordinator) handleAnchorCandidate(ctx context.Context, candidate types.HostBlockHash, cycle uint64) (AnchorOutcome, error) {
	heaviest, err := c.burnchain.GetHeaviestAnchorBlockAffirmationMap(ctx)
	if err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: heaviest am: %w", err)
	}
	if heaviest.At(int(cycle)) != affirmation.Present {
		return AnchorOutcome{}, nil
	}

	sortTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: canonical tip: %w", err)
	}

	earliest, ok, err := c.earliestPrepareEndSelecting(ctx, sortTip, candidate)
	if err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: prepare end search: %w", err)
	}
	if !ok {
		return AnchorOutcome{}, nil
	}

	if err := c.sortitions.ExtendPoxId(ctx, earliest.SortitionId, true); err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: extend pox id: %w", err)
	}

	if err := c.sortitions.InvalidateDescendantsWithClosures(ctx, earliest.BurnHeaderHash, nil, nil); err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: invalidate descendants: %w", err)
	}

	if err := c.sortitions.RevalidateSnapshotWithBlock(ctx, earliest.SortitionId,
		earliest.CanonicalHostTipConsensusHash, earliest.CanonicalHostTipBlockHash, earliest.CanonicalHostTipHeight, true); err != nil {
		return AnchorOutcome{}, fmt.Errorf("anchor candidate: set tip to prepare end: %w", err)
	}

	c.metrics.AnchorBlocksAffirmed.Inc()
	c.logger.Info("anchor block affirmed", "host_block", candidate, "cycle", cycle, "prepare_end", earliest.SortitionId)

	return AnchorOutcome{Affirmed: true, RestartFrom: earliest.SortitionId}, nil
}

// earliestPrepareEndSelecting walks backward through the prepare-end
// chain that selected candidate, starting from sortTip, and returns the
// oldest one found (§4.8 step 1: "take the earliest").
func (c *Coordinator) earliestPrepareEndSelecting(ctx context.Context, sortTip types.Sortition, candidate types.HostBlockHash) (types.Sortition, bool, error) {
	pe, ok, err := c.sortitions.GetPrepareEndFor(ctx, sortTip.SortitionId, candidate)
	if err != nil {
		return types.Sortition{}, false, err
	}
	if !ok {
		return types.Sortition{}, false, nil
	}

	earliest := pe
	current := pe
	for {
		older, ok, err := c.sortitions.GetPrepareEndFor(ctx, current.ParentSortitionId, candidate)
		if err != nil {
			return types.Sortition{}, false, err
		}
		if !ok {
			break
		}
		earliest = older
		current = older
	}
	return earliest, true, nil
}
