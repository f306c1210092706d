package rewardcycle

import (
	"context"
	"sort"

	"github.com/certen/chain-coordinator/pkg/types"
)

// RewardSetProvider derives the reward set from host-chain state at a
// given burn height (§2.4, §4.2 Reward-set derivation). Implementations
// read registered reward addresses and liquid supply from the host
// chain's executed state; this package only applies the
// threshold/participation rule on top of what the provider reports.
type RewardSetProvider interface {
	// RegisteredAddresses returns every address that registered to
	// stack as of the anchor block, with its committed amount.
	RegisteredAddresses(ctx context.Context, anchor types.HostBlockHash) ([]types.RewardAddress, error)
	// LiquidSupply returns the total liquid token supply as of the
	// anchor block.
	LiquidSupply(ctx context.Context, anchor types.HostBlockHash) (uint64, error)
}

// DeriveRewardSet implements §4.2's reward-set derivation: collect
// registered addresses, read liquid supply, compute
// (threshold, participation). If participation is below the epoch's
// minimum, the cycle defaults to all-burn with an empty reward set;
// otherwise the threshold is participation / numRewardSlots and the
// reward set is the registered addresses whose commitment meets it,
// largest commitment first, capped at numRewardSlots addresses. No
// per-address slot allocation is computed: each selected address
// appears once, whatever its committed amount.
func DeriveRewardSet(ctx context.Context, provider RewardSetProvider, anchor types.HostBlockHash, epoch Epoch, numRewardSlots uint64) (types.RewardSet, error) {
	addrs, err := provider.RegisteredAddresses(ctx, anchor)
	if err != nil {
		return types.RewardSet{}, err
	}
	supply, err := provider.LiquidSupply(ctx, anchor)
	if err != nil {
		return types.RewardSet{}, err
	}

	var participation uint64
	for _, a := range addrs {
		participation += a.Amount
	}

	if supply == 0 || participation*epoch.MinParticipationDenominator < supply*epoch.MinParticipationNumerator {
		return types.RewardSet{
			Threshold:     0,
			Participation: participation,
			AllBurn:       true,
		}, nil
	}

	threshold := participation / max1(numRewardSlots)

	sort.SliceStable(addrs, func(i, j int) bool { return addrs[i].Amount > addrs[j].Amount })

	selected := make([]types.RewardAddress, 0, numRewardSlots)
	for _, a := range addrs {
		if a.Amount < threshold {
			continue
		}
		selected = append(selected, a)
		if uint64(len(selected)) >= numRewardSlots {
			break
		}
	}

	return types.RewardSet{
		Addresses:     selected,
		Threshold:     threshold,
		Participation: participation,
		AllBurn:       false,
	}, nil
}

func max1(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

// NoStackingRewardSetProvider reports zero liquid supply and no
// registered addresses, the degenerate reward set a deployment with no
// stacking contract wired should report. DeriveRewardSet's
// participation check already treats zero supply as "default to
// all-burn", so the coordinator behaves the same as a host chain that
// genuinely has nobody stacked (§1 Non-goals: the stacking contract's
// execution is out of scope; a caller with a real one wires its own
// RewardSetProvider instead).
type NoStackingRewardSetProvider struct{}

func (NoStackingRewardSetProvider) RegisteredAddresses(ctx context.Context, anchor types.HostBlockHash) ([]types.RewardAddress, error) {
	return nil, nil
}

func (NoStackingRewardSetProvider) LiquidSupply(ctx context.Context, anchor types.HostBlockHash) (uint64, error) {
	return 0, nil
}

// FixedNumRewardSlots is a NumRewardSlotsProvider that always reports a
// configured constant, for deployments where the reward-set slot count
// is a network parameter rather than something read from host-chain
// state.
type FixedNumRewardSlots uint64

func (n FixedNumRewardSlots) NumRewardSlots(ctx context.Context) (uint64, error) {
	return uint64(n), nil
}

var (
	_ RewardSetProvider      = NoStackingRewardSetProvider{}
	_ NumRewardSlotsProvider = FixedNumRewardSlots(0)
)
