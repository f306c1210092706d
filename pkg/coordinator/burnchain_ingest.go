// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/types"
)

// IngestResult reports the outcome of one burnchain-ingestion pass.
type IngestResult struct {
	// BlocksIngested is the number of new burn blocks evaluated or
	// revalidated this pass.
	BlocksIngested int
	// MissingAnchor is set when affirmation reinterpretation (§4.3) or
	// anchor-block handling blocked on a host block the coordinator
	// does not have locally yet; ingestion must be retried once it
	// arrives.
	MissingAnchor types.HostBlockHash
	Blocked       bool
}

// ingestBurnchainBlocks implements §4.6: reconcile against the heaviest
// affirmation map, then walk forward from the sortition tip to the
// burnchain canonical tip, evaluating or revalidating one sortition per
// block and draining ready host blocks as it goes.
func (c *Coordinator) ingestBurnchainBlocks(ctx context.Context) (IngestResult, error) {
	if err := c.EnsureGenesis(ctx); err != nil {
		return IngestResult{}, fmt.Errorf("ingest: %w", err)
	}

	skipReorg, err := c.skipReorgForIBD(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: ibd check: %w", err)
	}
	if skipReorg {
		c.logger.Info("skipping reorg engine: still in initial block download")
	} else if _, err := c.runReorg(ctx); err != nil {
		return IngestResult{}, fmt.Errorf("ingest: reorg: %w", err)
	}

	burnTip, err := c.burnchain.GetCanonicalTip(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: burnchain tip: %w", err)
	}

	result := IngestResult{}
	for {
		sortTip, err := c.sortitions.GetCanonicalTip(ctx)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: sortition tip: %w", err)
		}
		if sortTip.BlockHeight >= burnTip.BlockHeight {
			break
		}
		height := sortTip.BlockHeight + 1

		header, ok, err := c.burnchain.GetBurnchainHeader(ctx, height)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: header at %d: %w", height, err)
		}
		if !ok {
			// Gap in the locally-known burnchain: stop here and let the
			// downloader (out of scope) fill it before the next wake.
			break
		}

		block, err := c.burnchain.GetBlock(ctx, header.BurnHeaderHash)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: block %s: %w", header.BurnHeaderHash, err)
		}

		// Paid rewards are computed for whatever downstream dispatch a
		// caller wires up; the coordinator itself only needs the side
		// effect of having derived it (§2.3, §1 Non-goals: the reward
		// disbursement ledger is out of scope).
		_ = rewardcycle.PaidRewards(block.Ops)

		rci, blocked, missing, err := c.deriveAndReinterpretRewardCycleInfo(ctx, height)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: reward cycle info at %d: %w", height, err)
		}
		if blocked {
			return IngestResult{BlocksIngested: result.BlocksIngested, Blocked: true, MissingAnchor: missing}, nil
		}

		newSortition, evaluated, err := c.revalidateOrEvaluateSortition(ctx, sortTip, header, block.Ops, rci)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: sortition at %d: %w", height, err)
		}
		if evaluated {
			c.metrics.SortitionsEvaluated.Inc()
		}

		if err := c.forgetOrphansInRange(ctx, height, height); err != nil {
			return IngestResult{}, fmt.Errorf("ingest: un-orphan at %d: %w", height, err)
		}

		if err := c.reAcceptHostBlocks(ctx, height, newSortition); err != nil {
			return IngestResult{}, fmt.Errorf("ingest: re-accept host blocks at %d: %w", height, err)
		}

		result.BlocksIngested++

		anchorHash, cycle, isAnchor, err := c.drainReadyBlocks(ctx)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest: drain ready blocks: %w", err)
		}
		if isAnchor {
			outcome, err := c.handleAnchorCandidate(ctx, anchorHash, cycle)
			if err != nil {
				return IngestResult{}, fmt.Errorf("ingest: anchor candidate: %w", err)
			}
			if outcome.Affirmed {
				// Ingestion resumes from the prepare-end on the next
				// loop iteration, since the sortition tip now sits there.
				continue
			}
		}
	}

	heaviest, err := c.burnchain.GetHeaviestAnchorBlockAffirmationMap(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: final heaviest am: %w", err)
	}
	finalTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: final tip: %w", err)
	}
	if err := c.rememoizeCanonicalHostTip(ctx, finalTip, heaviest); err != nil {
		return IngestResult{}, fmt.Errorf("ingest: final rememoize: %w", err)
	}

	return result, nil
}

// deriveAndReinterpretRewardCycleInfo implements §4.2 and §4.3: derive
// RewardCycleInfo when height is the first block of a new cycle, and
// reinterpret the prior cycle's anchor status against the canonical
// affirmation map.
func (c *Coordinator) deriveAndReinterpretRewardCycleInfo(ctx context.Context, height uint64) (types.RewardCycleInfo, bool, types.HostBlockHash, error) {
	epoch := c.cfg.Epochs.At(height)
	if !rewardcycle.IsFirstBlockOfCycle(height, epoch.RewardCycleLength) {
		return types.RewardCycleInfo{}, false, types.HostBlockHash{}, nil
	}

	// requestID correlates every log line this derivation emits — the
	// cycle's own derivation plus the §4.3 reinterpretation of the prior
	// cycle below — back to the burn block that triggered it.
	requestID := uuid.NewString()
	cycle := rewardcycle.CycleOf(height, epoch.RewardCycleLength)
	c.logger.Info("deriving reward cycle info", "request_id", requestID, "cycle", cycle, "height", height)
	rci, err := rewardcycle.DeriveRewardCycleInfo(ctx, cycle, epoch, c.selector, c.checker, c.rewardSets, c.slots)
	if err != nil {
		return types.RewardCycleInfo{}, false, types.HostBlockHash{}, err
	}

	if cycle == 0 {
		return rci, false, types.HostBlockHash{}, nil
	}

	prevStart := rewardcycle.RewardCycleStartHeight(cycle-1, epoch.RewardCycleLength)
	prevEpoch := c.cfg.Epochs.At(prevStart)
	prevRCI, err := rewardcycle.DeriveRewardCycleInfo(ctx, cycle-1, prevEpoch, c.selector, c.checker, c.rewardSets, c.slots)
	if err != nil {
		return types.RewardCycleInfo{}, false, types.HostBlockHash{}, err
	}

	canonicalAM, err := c.hostchain.FindCanonicalAffirmationMap(ctx, c.burnchain)
	if err != nil {
		return types.RewardCycleInfo{}, false, types.HostBlockHash{}, err
	}

	reinterpreted := rewardcycle.Reinterpret(prevRCI.AnchorStatus, canonicalAM, cycle-1)
	if reinterpreted.Blocked {
		c.logger.Info("reward cycle info derivation blocked on missing anchor",
			"request_id", requestID, "cycle", cycle-1, "missing_anchor", reinterpreted.MissingAnchor)
		return types.RewardCycleInfo{}, true, reinterpreted.MissingAnchor, nil
	}

	return rci, false, types.HostBlockHash{}, nil
}

// revalidateOrEvaluateSortition implements §4.6 step 3's "revalidate-or-
// evaluate" decision: if a previously-invalidated sortition already
// exists with the prospective id, revalidate it; otherwise run a full
// sortition evaluation.
func (c *Coordinator) revalidateOrEvaluateSortition(ctx context.Context, parent types.Sortition, header types.BurnHeader, ops []types.BurnchainOp, rci types.RewardCycleInfo) (types.Sortition, bool, error) {
	prospectiveID, err := c.sortitions.MakeNextSortitionId(ctx, parent.PoxId, header.BurnHeaderHash, rci)
	if err != nil {
		return types.Sortition{}, false, err
	}

	candidates, err := c.sortitions.GetSnapshotsAtHeight(ctx, header.BlockHeight)
	if err != nil {
		return types.Sortition{}, false, err
	}
	for _, s := range candidates {
		if s.SortitionId != prospectiveID {
			continue
		}
		heaviest, err := c.burnchain.GetHeaviestAnchorBlockAffirmationMap(ctx)
		if err != nil {
			return types.Sortition{}, false, err
		}
		ch, bhh, h, err := c.highestCompatibleHostBlock(ctx, heaviest, s)
		if err != nil {
			return types.Sortition{}, false, err
		}
		if err := c.sortitions.RevalidateSnapshotWithBlock(ctx, s.SortitionId, ch, bhh, h, true); err != nil {
			return types.Sortition{}, false, err
		}
		s.Valid = true
		s.CanonicalHostTipConsensusHash = ch
		s.CanonicalHostTipBlockHash = bhh
		s.CanonicalHostTipHeight = h
		return s, false, nil
	}

	evaluated, err := c.sortitions.EvaluateSortition(ctx, header, ops, rci, nil)
	if err != nil {
		return types.Sortition{}, false, err
	}
	return evaluated, true, nil
}

// reAcceptHostBlocks implements §4.6 step 3's re-accept pass: "Re-accept
// any host blocks whose burn-origin is now in this sortition chain and
// whose AM is compatible with heaviest." newSortition is the sortition
// that was just evaluated or revalidated at height, i.e. the
// burn-origin now on the canonical chain; any host block staged at this
// height under a different consensus history (a stale fork, or a
// winning block mined before this sortition resolved) is re-submitted
// under newSortition's consensus hash when its own affirmation map
// doesn't conflict with heaviest. Blocks already staged under the
// canonical consensus hash need no action.
func (c *Coordinator) reAcceptHostBlocks(ctx context.Context, height uint64, newSortition types.Sortition) error {
	sortIDs, err := c.sortitions.GetSortitionIdsAtHeight(ctx, height)
	if err != nil {
		return fmt.Errorf("sortition ids at %d: %w", height, err)
	}
	onChain := false
	for _, id := range sortIDs {
		if id == newSortition.SortitionId {
			onChain = true
			break
		}
	}
	if !onChain {
		return nil
	}

	staged, err := c.hostchain.GetStagedBlocksInBurnHeightRange(ctx, height, height)
	if err != nil {
		return fmt.Errorf("staged blocks at %d: %w", height, err)
	}
	if len(staged) == 0 {
		return nil
	}

	heaviest, err := c.burnchain.GetHeaviestAnchorBlockAffirmationMap(ctx)
	if err != nil {
		return fmt.Errorf("heaviest am: %w", err)
	}

	now := time.Now().Unix()
	for _, b := range staged {
		if b.ConsensusHash == newSortition.ConsensusHash {
			continue
		}

		am, err := c.hostchain.FindStacksTipAffirmationMap(ctx, c.burnchain, c.sortitions, b.ConsensusHash, b.HostBlockHash)
		if err != nil {
			if err == types.ErrInvalidPoxSortition {
				continue
			}
			return fmt.Errorf("am for %s: %w", b.HostBlockHash, err)
		}
		if !affirmation.IsCompatible(am, heaviest) {
			continue
		}

		restaged := b
		restaged.ConsensusHash = newSortition.ConsensusHash
		result, err := c.hostchain.PreprocessAnchoredBlock(ctx, c.sortitions, newSortition.ConsensusHash, restaged, b.ParentConsensusHash, now)
		if err != nil {
			return fmt.Errorf("preprocess %s onto %s: %w", b.HostBlockHash, newSortition.ConsensusHash, err)
		}
		if !result.Accepted {
			continue
		}

		pox, err := c.sortitions.GetPoxId(ctx, newSortition.SortitionId)
		if err != nil {
			return fmt.Errorf("pox id for %s: %w", newSortition.SortitionId, err)
		}
		c.logger.Info("re-accepted host block onto canonical consensus history",
			"host_block", b.HostBlockHash, "from_consensus_hash", b.ConsensusHash,
			"to_consensus_hash", newSortition.ConsensusHash, "pox_id", pox)
	}
	return nil
}
