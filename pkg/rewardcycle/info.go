package rewardcycle

import (
	"context"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/commitment"
	"github.com/certen/chain-coordinator/pkg/types"
)

// AnchorSelector picks the winning anchor candidate for a reward cycle's
// prepare phase, applying whichever selection rule the epoch calls for
// (legacy F*w confirmations, or post-transition commit-weighted
// selection) internally (§4.2 step 2).
type AnchorSelector interface {
	SelectAnchor(ctx context.Context, cycle uint64, epoch Epoch) (host types.HostBlockHash, tx types.Txid, ok bool, err error)
}

// HostBlockChecker answers whether a host block has already been
// executed locally, which RewardCycleInfo derivation needs to decide
// between SelectedAndKnown and SelectedAndUnknown (§4.2 step 3).
type HostBlockChecker interface {
	IsProcessed(ctx context.Context, hostHash types.HostBlockHash) (known bool, consensusHash types.ConsensusHash, err error)
}

// NumRewardSlotsProvider reports how many reward-set slots the running
// epoch allocates, used to scale DeriveRewardSet's threshold.
type NumRewardSlotsProvider interface {
	NumRewardSlots(ctx context.Context) (uint64, error)
}

// DeriveRewardCycleInfo implements §4.2: at the first burnchain block of
// a new reward cycle, decide whether an anchor was selected, and if so
// whether it is already known locally.
func DeriveRewardCycleInfo(
	ctx context.Context,
	cycle uint64,
	epoch Epoch,
	selector AnchorSelector,
	checker HostBlockChecker,
	rewardSets RewardSetProvider,
	slots NumRewardSlotsProvider,
) (types.RewardCycleInfo, error) {
	if IsPastSunset(cycle, epoch) {
		return types.RewardCycleInfo{Cycle: cycle, AnchorStatus: types.NotSelectedStatus()}, nil
	}

	host, tx, ok, err := selector.SelectAnchor(ctx, cycle, epoch)
	if err != nil {
		return types.RewardCycleInfo{}, err
	}
	if !ok {
		return types.RewardCycleInfo{Cycle: cycle, AnchorStatus: types.NotSelectedStatus()}, nil
	}

	known, _, err := checker.IsProcessed(ctx, host)
	if err != nil {
		return types.RewardCycleInfo{}, err
	}
	if !known {
		return types.RewardCycleInfo{Cycle: cycle, AnchorStatus: types.SelectedAndUnknownStatus(host, tx)}, nil
	}

	n, err := slots.NumRewardSlots(ctx)
	if err != nil {
		return types.RewardCycleInfo{}, err
	}
	rs, err := DeriveRewardSet(ctx, rewardSets, host, epoch, n)
	if err != nil {
		return types.RewardCycleInfo{}, err
	}
	return types.RewardCycleInfo{Cycle: cycle, AnchorStatus: types.SelectedAndKnownStatus(host, tx, rs)}, nil
}

// ReinterpretResult is the outcome of reinterpreting cycle C-1's anchor
// status against the canonical affirmation map at the start of cycle C
// (§4.3). When Blocked is true the loop must stop and return
// MissingAnchor to the caller instead of proceeding.
type ReinterpretResult struct {
	Status       types.AnchorStatus
	Blocked      bool
	MissingAnchor types.HostBlockHash
}

// FingerprintTag returns a canonical, deterministic fingerprint of a
// RewardCycleInfo value. The sortition id derivation folds this tag in
// alongside the parent pox-id and burn header hash so that two
// reinterpretations of the same cycle that disagree on anchor status
// produce distinct sortition ids (§4.2, §4.3, I1). Falls back to a
// plain field dump if canonicalization fails, which only happens if the
// value contains something non-JSON-marshalable.
func FingerprintTag(rci types.RewardCycleInfo) string {
	tag, err := commitment.HashCanonical(rci)
	if err != nil {
		return fmt.Sprintf("%d:%d:%s", rci.Cycle, rci.AnchorStatus.Kind, rci.AnchorStatus.HostBlockHash)
	}
	return tag
}

// Reinterpret applies the §4.3 table: given the locally-known status of
// cycle C-1 and what the canonical affirmation map says about it, derive
// the effective status the coordinator should act on. Only the
// "SelectedAndUnknown vs canonical-Present" case gates progress.
func Reinterpret(local types.AnchorStatus, canonical affirmation.Map, cycle uint64) ReinterpretResult {
	entry := canonical.At(int(cycle))

	switch local.Kind {
	case types.SelectedAndKnown:
		switch entry {
		case affirmation.Present:
			return ReinterpretResult{Status: local}
		case affirmation.Absent:
			return ReinterpretResult{Status: types.SelectedAndUnknownStatus(local.HostBlockHash, local.Txid)}
		default: // Nothing
			return ReinterpretResult{Status: types.NotSelectedStatus()}
		}
	case types.SelectedAndUnknown:
		switch entry {
		case affirmation.Present:
			return ReinterpretResult{Blocked: true, MissingAnchor: local.HostBlockHash}
		case affirmation.Absent:
			return ReinterpretResult{Status: local}
		default: // Nothing
			return ReinterpretResult{Status: types.NotSelectedStatus()}
		}
	default: // NotSelected
		return ReinterpretResult{Status: types.NotSelectedStatus()}
	}
}
