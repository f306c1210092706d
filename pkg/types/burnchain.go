package types

// OpKind enumerates the burnchain operation kinds the coordinator cares
// about. Other operation kinds (e.g. transfers unrelated to sortition)
// are out of scope (§1 Non-goals) and never reach this type.
type OpKind uint8

const (
	OpLeaderBlockCommit OpKind = iota
	OpLeaderKeyRegister
	OpStackStx
	OpTransferStx
)

// BurnchainOp is one parsed operation from a burnchain block, the input
// to the Paid Rewards Calculator (§2.3) and to sortition evaluation.
type BurnchainOp struct {
	Kind   OpKind
	Txid   Txid
	Sender string

	// BlockCommit fields (valid when Kind == OpLeaderBlockCommit).
	CommittedHostBlockHash HostBlockHash
	BurnFee                uint64
	Recipients             []PayoutRecipient
	KeyBlockBackptr        uint64

	// Raw operation payload, preserved for store round-tripping.
	Payload []byte
}

// PayoutRecipient is one PoX payout address and the amount a block
// commit paid it.
type PayoutRecipient struct {
	Address string
	Amount  uint64
}

// BurnHeader is a burnchain block header.
type BurnHeader struct {
	BurnHeaderHash       BurnHeaderHash
	ParentBurnHeaderHash BurnHeaderHash
	BlockHeight          uint64
	Timestamp            int64
}

// BurnchainBlockData is a full burnchain block: its header plus the
// operations parsed from it.
type BurnchainBlockData struct {
	Header BurnHeader
	Ops    []BurnchainOp
}

// Commit is a single leader block-commit operation looked up by
// (burn hash, txid).
type Commit struct {
	Txid                   Txid
	BurnHeaderHash         BurnHeaderHash
	CommittedHostBlockHash HostBlockHash
	BurnFee                uint64
	Recipients             []PayoutRecipient
}

// CommitMeta carries the derived metadata the burnchain store tracks
// per commit: which reward cycle it falls in, whether it is within a
// prepare phase, and its confirmation count so far.
type CommitMeta struct {
	RewardCycle   uint64
	InPreparePhase bool
	Confirmations uint64
}

// PrepareCommit is one leader block-commit recorded during a reward
// cycle's prepare phase, paired with the confirmation count the
// burnchain store has accumulated for it. Anchor-block selection
// (§4.2 step 2) scans these to apply the epoch's F*w rule or
// post-transition commit-weighted rule.
type PrepareCommit struct {
	Txid                   Txid
	CommittedHostBlockHash HostBlockHash
	BurnFee                uint64
	Confirmations          uint64
}
