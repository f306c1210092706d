// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/database"
	"github.com/certen/chain-coordinator/pkg/types"
)

// EnsureGenesis implements the §9 "Genesis bootstrap path" supplement:
// the very first invocation of the coordinator, with no existing
// sortitions, must create the genesis sortition from the burnchain's
// genesis header before ingestion runs normally. GetCanonicalTip
// returning database.ErrNotFound is how an empty sortition store
// reports ErrNoSortitions; every other caller treats that as a
// programmer error, but ingestBurnchainBlocks routes through here first
// so it only ever needs handling once.
func (c *Coordinator) EnsureGenesis(ctx context.Context) error {
	_, err := c.sortitions.GetCanonicalTip(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("ensure genesis: %w", err)
	}

	genesis, ok, err := c.burnchain.GetBurnchainHeader(ctx, 0)
	if err != nil {
		return fmt.Errorf("ensure genesis: %w: %w", types.ErrNoSortitions, err)
	}
	if !ok {
		return fmt.Errorf("ensure genesis: burnchain has no genesis header yet: %w", types.ErrNoSortitions)
	}

	rci := types.RewardCycleInfo{Cycle: 0, AnchorStatus: types.NotSelectedStatus()}
	if _, err := c.sortitions.EvaluateSortition(ctx, genesis, nil, rci, nil); err != nil {
		return fmt.Errorf("ensure genesis: evaluate genesis sortition: %w", err)
	}
	c.logger.Info("created genesis sortition", "burn_header", genesis.BurnHeaderHash)
	return nil
}

// skipReorgForIBD implements the §9 "Initial block download short-
// circuit" supplement: while the local sortition tip trails the
// burnchain's canonical tip by more than IBDHeightThreshold, the reorg
// engine (§4.4) is skipped and only sortition evaluation runs, mirroring
// the original's in_initial_block_download guard. A zero threshold
// disables the short-circuit (the reorg engine always runs).
func (c *Coordinator) skipReorgForIBD(ctx context.Context) (bool, error) {
	if c.cfg.IBDHeightThreshold == 0 {
		return false, nil
	}
	sortTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return false, fmt.Errorf("ibd check: sortition tip: %w", err)
	}
	burnTip, err := c.burnchain.GetCanonicalTip(ctx)
	if err != nil {
		return false, fmt.Errorf("ibd check: burnchain tip: %w", err)
	}
	if burnTip.BlockHeight <= sortTip.BlockHeight {
		return false, nil
	}
	behind := burnTip.BlockHeight - sortTip.BlockHeight
	return behind > c.cfg.IBDHeightThreshold, nil
}
