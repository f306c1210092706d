package types

// HostBlockStatus tracks the lifecycle of a host block in the
// host-chain store (I5): Staging -> (Accepted | Orphaned); Orphaned ->
// Staging is permitted (un-orphaning) but Accepted -> Staging is not.
type HostBlockStatus uint8

const (
	HostBlockStaging HostBlockStatus = iota
	HostBlockAccepted
	HostBlockOrphaned
)

func (s HostBlockStatus) String() string {
	switch s {
	case HostBlockAccepted:
		return "accepted"
	case HostBlockOrphaned:
		return "orphaned"
	default:
		return "staging"
	}
}

// HeaderInfo describes one host block header as tracked by the
// host-chain store's header index, including its memoized affirmation
// weight (§4.5).
type HeaderInfo struct {
	ConsensusHash     ConsensusHash
	HostBlockHash     HostBlockHash
	BurnHeight        uint64
	AffirmationWeight uint64
}

// BlockResult is the outcome of processing one staged host block
// against a sortition tip (§4.7).
type BlockResult struct {
	ConsensusHash ConsensusHash
	HostBlockHash HostBlockHash

	// Valid is false if the block was rejected outright (bad
	// transactions, bad header, etc.) — §4.7 "if the block was invalid,
	// notify and continue".
	Valid bool

	// Receipt is non-nil when the block was successfully executed.
	Receipt *Receipt
}

// Receipt is a minimal execution receipt: enough for the coordinator to
// update cost/fee estimators and forward attachment events without
// depending on the block executor's internal representation (§1 Out of
// scope: "the host-chain block executor").
type Receipt struct {
	HostBlockHash  HostBlockHash
	ExecutionCost  uint64
	FeesCollected  uint64
	Attachments    []AttachmentEvent
}

// AttachmentEvent is a minimal attachment-subsystem event forwarded by
// the coordinator after a block is accepted (§4.7, §1 Out of scope:
// "atlas attachment subsystem" — the coordinator only forwards events,
// it never interprets them).
type AttachmentEvent struct {
	HostBlockHash HostBlockHash
	Index         uint32
	ContentHash   [32]byte
}

// PrepareEnd identifies the sortition that was the last block of a
// prepare phase and selected a particular anchor candidate (§4.8).
type PrepareEnd struct {
	Sortition Sortition
	Cycle     uint64
}

// RawHostBlock is an unprocessed host block as handed to the host-chain
// store for staging (§4.6 step 5, §6 preprocess_anchored_block).
type RawHostBlock struct {
	ConsensusHash       ConsensusHash
	HostBlockHash       HostBlockHash
	ParentConsensusHash ConsensusHash
	BurnHeight          uint64
	Payload             []byte
}

// PreprocessResult is the outcome of staging a raw host block: whether
// it was accepted into the staging set, and if not, why.
type PreprocessResult struct {
	Accepted bool
	Reason   string
}
