package types

// Sortition is the outcome of evaluating one burnchain block (the
// BlockSnapshot of spec.md §3). It is immutable except for its Valid
// flag and its memoized canonical-host-tip fields (§3).
type Sortition struct {
	SortitionId       SortitionId
	ParentSortitionId SortitionId
	BurnHeaderHash    BurnHeaderHash
	BlockHeight       uint64
	ConsensusHash     ConsensusHash

	// WonSortition is true iff a winning commit existed for this block.
	WonSortition        bool
	WinningHostBlockHash HostBlockHash
	WinningTxid          Txid

	PoxId PoxId

	// CanonicalHostTip* memoize the highest host block this sortition's
	// fork currently recognizes as compatible with the heaviest
	// affirmation map (§4.5). Treated as a lookup key into the host
	// store, never ownership (§9).
	CanonicalHostTipConsensusHash ConsensusHash
	CanonicalHostTipBlockHash     HostBlockHash
	CanonicalHostTipHeight        uint64

	// Valid is false for sortitions on a branch the reorg engine has
	// invalidated (I3); Processed is true once the sortition has been
	// fully evaluated (as opposed to merely pre-allocated).
	Valid     bool
	Processed bool
}

// RewardCycle returns the reward cycle this sortition's block height
// falls in, given the fixed cycle length.
func (s Sortition) RewardCycle(rewardCycleLength uint64) uint64 {
	return s.BlockHeight / rewardCycleLength
}

// AnchorStatusKind enumerates the three outcomes of anchor-block
// selection for a reward cycle (§3 RewardCycleInfo).
type AnchorStatusKind int

const (
	// NotSelected means no anchor block was chosen for the cycle,
	// either because none met the threshold or because the cycle is
	// past the PoX sunset.
	NotSelected AnchorStatusKind = iota
	// SelectedAndKnown means an anchor was chosen and the host block is
	// locally processed, so its reward set is available.
	SelectedAndKnown
	// SelectedAndUnknown means an anchor was chosen but the host block
	// has not yet been processed locally.
	SelectedAndUnknown
)

func (k AnchorStatusKind) String() string {
	switch k {
	case SelectedAndKnown:
		return "selected_and_known"
	case SelectedAndUnknown:
		return "selected_and_unknown"
	default:
		return "not_selected"
	}
}

// RewardSet is the derived set of reward addresses and their weights
// for a cycle, computed from host-chain state at the anchor block
// (§4.2 Reward-set derivation).
type RewardSet struct {
	Addresses    []RewardAddress
	Threshold    uint64
	Participation uint64
	AllBurn      bool
}

// RewardAddress is one registered PoX recipient and its committed
// stacked amount.
type RewardAddress struct {
	Address string
	Amount  uint64
}

// AnchorStatus is the tagged outcome of RewardCycleInfo derivation
// (§3/§4.2). Exactly one of the three shapes is populated, selected by
// Kind.
type AnchorStatus struct {
	Kind          AnchorStatusKind
	HostBlockHash HostBlockHash
	Txid          Txid
	RewardSet     RewardSet
}

// NotSelectedStatus builds the NotSelected variant.
func NotSelectedStatus() AnchorStatus { return AnchorStatus{Kind: NotSelected} }

// SelectedAndKnownStatus builds the SelectedAndKnown variant.
func SelectedAndKnownStatus(h HostBlockHash, tx Txid, rs RewardSet) AnchorStatus {
	return AnchorStatus{Kind: SelectedAndKnown, HostBlockHash: h, Txid: tx, RewardSet: rs}
}

// SelectedAndUnknownStatus builds the SelectedAndUnknown variant.
func SelectedAndUnknownStatus(h HostBlockHash, tx Txid) AnchorStatus {
	return AnchorStatus{Kind: SelectedAndUnknown, HostBlockHash: h, Txid: tx}
}

// RewardCycleInfo is produced once per first-block-of-cycle, consumed
// once by reinterpretation + ingestion, then discarded (§3 Lifecycles).
type RewardCycleInfo struct {
	Cycle        uint64
	AnchorStatus AnchorStatus
}

// PaidRewards is the pure output of the Paid Rewards Calculator (§2.3):
// a PoX payout vector plus the total burned amount, derived from a list
// of burnchain operations in a single block.
type PaidRewards struct {
	PoxPayouts map[string]uint64
	BurnAmount uint64
}
