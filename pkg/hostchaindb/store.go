// Copyright 2025 Certen Protocol
//
// Package hostchaindb defines the host-chain store: the coordinator's
// read/write path onto staged and accepted host blocks, their header
// index, and affirmation-weight bookkeeping (§6 "Required from
// host-chain store").
package hostchaindb

import (
	"context"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/burnchaindb"
	"github.com/certen/chain-coordinator/pkg/database"
	"github.com/certen/chain-coordinator/pkg/sortitiondb"
	"github.com/certen/chain-coordinator/pkg/types"
)

// Dispatcher receives notifications as host blocks are processed
// (§4.7, §9 Dispatcher interface seam). The coordinator's own notifier
// wraps one of these to additionally update cost/fee estimators.
type Dispatcher interface {
	AnnounceBlock(ctx context.Context, result types.BlockResult) error
	AnnounceAttachment(ctx context.Context, ev types.AttachmentEvent) error
}

// Store is the host-chain store's contract with the coordinator.
type Store interface {
	// ProcessBlocks executes up to n staged blocks against sortStore's
	// current tip, notifying dispatcher as each one resolves (§4.7).
	ProcessBlocks(ctx context.Context, burnStore burnchaindb.Store, sortStore sortitiondb.Store, n int, dispatcher Dispatcher) ([]types.BlockResult, error)

	// IsBlockProcessed reports whether (ch, bhh) has already reached
	// HostBlockAccepted.
	IsBlockProcessed(ctx context.Context, ch types.ConsensusHash, bhh types.HostBlockHash) (bool, error)

	// FindStacksTipAffirmationMap derives the affirmation map implied by
	// the chain of host blocks ending at (ch, bhh).
	FindStacksTipAffirmationMap(ctx context.Context, burnStore burnchaindb.Store, sortStore sortitiondb.Store, ch types.ConsensusHash, bhh types.HostBlockHash) (affirmation.Map, error)

	// FindCanonicalAffirmationMap derives the affirmation map of the
	// current canonical host-chain tip.
	FindCanonicalAffirmationMap(ctx context.Context, burnStore burnchaindb.Store) (affirmation.Map, error)

	// ForgetOrphanedEpochData returns host block (ch, bhh) to staging if
	// it is orphaned and deletes its memoized affirmation entries, within
	// tx (§4.4 step 5).
	ForgetOrphanedEpochData(ctx context.Context, tx *database.Tx, ch types.ConsensusHash, bhh types.HostBlockHash) error

	// GetMaxHeaderHeight returns the highest burn height recorded in the
	// header index.
	GetMaxHeaderHeight(ctx context.Context) (uint64, error)

	// GetMaxAffirmationWeightAtHeight returns the heaviest memoized
	// affirmation weight among headers at height h (§4.5 step 2).
	GetMaxAffirmationWeightAtHeight(ctx context.Context, h uint64) (uint64, error)

	// GetAllHeadersAtHeightAndWeight returns every header at height h
	// carrying affirmation weight w (§4.5 step 2, tie candidates).
	GetAllHeadersAtHeightAndWeight(ctx context.Context, h uint64, w uint64) ([]types.HeaderInfo, error)

	// GetStagingBlockConsensusHashes returns every consensus hash under
	// which bhh is staged (a host block can be staged under more than
	// one sortition fork before one wins).
	GetStagingBlockConsensusHashes(ctx context.Context, bhh types.HostBlockHash) ([]types.ConsensusHash, error)

	// PreprocessAnchoredBlock validates and stages a raw host block
	// against sortStore's view as of ch, recording now as its arrival
	// time (§4.6 step 5).
	PreprocessAnchoredBlock(ctx context.Context, sortStore sortitiondb.Store, ch types.ConsensusHash, block types.RawHostBlock, parentCh types.ConsensusHash, now int64) (types.PreprocessResult, error)

	// GetStagedBlocksInBurnHeightRange returns every staged or accepted
	// host block whose burn height falls within [from, to], for the
	// reorg engine's orphan-forgetting pass (§4.4 step 5) and the
	// burnchain ingester's re-accept pass (§4.6 step 3). Carries the
	// full RawHostBlock (including payload) so a block staged under one
	// consensus history can be re-submitted to PreprocessAnchoredBlock
	// under another.
	GetStagedBlocksInBurnHeightRange(ctx context.Context, from, to uint64) ([]types.RawHostBlock, error)

	// BeginTx opens a transaction against the host-chain store's own
	// connection pool, so the reorg engine can forget orphaned epoch
	// data for several blocks under one commit (§4.4 Idempotence: "one
	// host-store transaction per pass").
	BeginTx(ctx context.Context) (*database.Tx, error)
}

// IsBlockCompatibleWithAffirmationMap reports whether am is consistent
// with heaviest per the §4.5 compatibility rule: they agree on every
// cycle where both are defined, and neither records Present where the
// other records Absent.
func IsBlockCompatibleWithAffirmationMap(am, heaviest affirmation.Map) bool {
	return affirmation.IsCompatible(am, heaviest)
}
