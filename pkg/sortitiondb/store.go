// Copyright 2025 Certen Protocol
//
// Package sortitiondb defines the sortition store: the coordinator's
// view of one sortition per burnchain block, its affirmation-map
// memoization, validity flags, and PoX bit-vector (§6 "Required from
// sortition store"). The interface is split out of the concrete
// Postgres implementation so the reorg engine in pkg/coordinator can
// be tested against a fake.
package sortitiondb

import (
	"context"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/types"
)

// OnCommitFunc is invoked by EvaluateSortition once per accepted leader
// block-commit, mirroring the Rust on_commit closure parameter.
type OnCommitFunc func(ctx context.Context, commit types.Commit) error

// PerHeaderFunc is invoked by InvalidateDescendantsWithClosures once per
// invalidated header, before the sortition's valid flag flips.
type PerHeaderFunc func(ctx context.Context, s types.Sortition) error

// Store is the sortition store's contract with the coordinator.
type Store interface {
	// GetCanonicalTip returns the current canonical sortition.
	GetCanonicalTip(ctx context.Context) (types.Sortition, error)

	// GetSnapshotsAtHeight returns every sortition recorded at a given
	// burn height, canonical or not (a fork point can have several).
	GetSnapshotsAtHeight(ctx context.Context, height uint64) ([]types.Sortition, error)

	// GetAncestor walks sort_id's ancestry back to height and returns
	// the sortition found there, or ok=false if height predates the
	// chain or sort_id is unknown.
	GetAncestor(ctx context.Context, sortID types.SortitionId, height uint64) (s types.Sortition, ok bool, err error)

	// GetSortitionIdsAtHeight returns the ids of every sortition at a
	// given height without hydrating the full records.
	GetSortitionIdsAtHeight(ctx context.Context, height uint64) ([]types.SortitionId, error)

	// FindSortitionTipAffirmationMap returns the affirmation map
	// implied by the chain of sortitions ending at sortID.
	FindSortitionTipAffirmationMap(ctx context.Context, sortID types.SortitionId) (affirmation.Map, error)

	// EvaluateSortition evaluates a burn header's operations in its
	// reward-cycle context: the last leader block-commit in ops wins;
	// no VRF or burn-fee weighting is applied. It invokes onCommit for
	// every leader commit and returns the resulting Sortition (§4.6
	// step 3-4).
	EvaluateSortition(ctx context.Context, header types.BurnHeader, ops []types.BurnchainOp, rci types.RewardCycleInfo, onCommit OnCommitFunc) (types.Sortition, error)

	// MakeNextSortitionId derives the child sortition id from a
	// parent's pox-id and the new header hash (§3 SortitionId).
	MakeNextSortitionId(ctx context.Context, parentPox types.PoxId, headerHash types.BurnHeaderHash, rci types.RewardCycleInfo) (types.SortitionId, error)

	// InvalidateDescendantsWithClosures marks every sortition whose
	// burn header descends from (not including) burnHeader as invalid,
	// calling perHeader before each one flips and onDone once after the
	// whole subtree has been processed (§4.4 step 4).
	InvalidateDescendantsWithClosures(ctx context.Context, burnHeader types.BurnHeaderHash, perHeader PerHeaderFunc, onDone func(ctx context.Context) error) error

	// RevalidateSnapshotWithBlock marks a previously-invalidated
	// sortition valid again and refreshes its canonical host-tip memo
	// (§4.4 step 4).
	RevalidateSnapshotWithBlock(ctx context.Context, sortID types.SortitionId, ch types.ConsensusHash, bhh types.HostBlockHash, height uint64, knownFlag bool) error

	// FindSnapshotsWithDirtyCanonicalBlockPointers returns sortitions
	// at or above height whose canonical-host-tip memo needs
	// recomputation after a host-chain reorg.
	FindSnapshotsWithDirtyCanonicalBlockPointers(ctx context.Context, height uint64) ([]types.SortitionId, error)

	// GetPrepareEndFor returns the sortition that is the last block of
	// the prepare phase containing hostBlock, if any.
	GetPrepareEndFor(ctx context.Context, sortID types.SortitionId, hostBlock types.HostBlockHash) (s types.Sortition, ok bool, err error)

	// GetPoxId returns the PoX bit-vector as of sortID.
	GetPoxId(ctx context.Context, sortID types.SortitionId) (types.PoxId, error)

	// ExtendPoxId appends bit as the next cycle's entry to sortID's
	// pox-id, recording that the cycle's anchor block was affirmed on
	// this fork (§4.8 step 2).
	ExtendPoxId(ctx context.Context, sortID types.SortitionId, bit bool) error

	// GetLastEpochBoundaryCycle returns the reward cycle number of the
	// most recent epoch transition boundary crossed by the canonical
	// chain, used by affirmation.Consolidate.
	GetLastEpochBoundaryCycle(ctx context.Context) (uint64, error)

	// IsStacksBlockPoxAnchor reports whether hostHash is the cycle's
	// chosen PoX anchor as of sortID, returning the canonical host hash
	// it resolves to when so.
	IsStacksBlockPoxAnchor(ctx context.Context, hostHash types.HostBlockHash, sortID types.SortitionId) (anchor types.HostBlockHash, ok bool, err error)
}
