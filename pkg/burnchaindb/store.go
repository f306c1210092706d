// Copyright 2025 Certen Protocol
//
// Package burnchaindb defines the burnchain store: the coordinator's
// read path onto burn headers, parsed operations, and commit-weighted
// affirmation tracking (§6 "Required from burnchain store").
package burnchaindb

import (
	"context"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/types"
)

// Store is the burnchain store's contract with the coordinator.
type Store interface {
	// GetCanonicalTip returns the heaviest burn header known.
	GetCanonicalTip(ctx context.Context) (types.BurnHeader, error)

	// GetBlock returns the full block (header + ops) for a burn hash.
	GetBlock(ctx context.Context, hash types.BurnHeaderHash) (types.BurnchainBlockData, error)

	// GetBurnchainHeader returns the header at a given height, if any.
	GetBurnchainHeader(ctx context.Context, height uint64) (h types.BurnHeader, ok bool, err error)

	// GetHeaviestAnchorBlockAffirmationMap returns the commit-weighted
	// affirmation map for the heaviest observed anchor-block chain
	// (§4.1, §9 post-transition selection rule).
	GetHeaviestAnchorBlockAffirmationMap(ctx context.Context) (affirmation.Map, error)

	// IsAnchorBlock reports whether the commit at (burnHash, txid) is a
	// recognized PoX anchor candidate.
	IsAnchorBlock(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (bool, error)

	// GetBlockCommit looks up a single leader block-commit by its
	// containing burn block and txid.
	GetBlockCommit(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (types.Commit, error)

	// GetCommitMetadata returns the derived reward-cycle/prepare-phase/
	// confirmation metadata tracked for a commit.
	GetCommitMetadata(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (types.CommitMeta, error)

	// PreparePhaseCommits returns every leader block-commit recorded
	// within reward cycle cycle's prepare phase, for anchor-block
	// selection (§4.2 step 2).
	PreparePhaseCommits(ctx context.Context, cycle uint64) ([]types.PrepareCommit, error)
}
