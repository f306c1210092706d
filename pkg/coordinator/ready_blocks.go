// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/types"
)

const readyBlockBatchSize = 16

// drainReadyBlocks implements §4.7: repeatedly ask the host-chain store
// to process staged blocks against the current sortition tip until it
// stops returning any, surfacing the first confirmed anchor candidate
// it finds along the way.
func (c *Coordinator) drainReadyBlocks(ctx context.Context) (types.HostBlockHash, uint64, bool, error) {
	for {
		results, err := c.hostchain.ProcessBlocks(ctx, c.burnchain, c.sortitions, readyBlockBatchSize, c.notifier)
		if err != nil {
			return types.HostBlockHash{}, 0, false, fmt.Errorf("drain ready blocks: process: %w", err)
		}
		if len(results) == 0 {
			return types.HostBlockHash{}, 0, false, nil
		}
		c.metrics.ReadyBlocksProcessed.Add(float64(len(results)))

		for _, r := range results {
			if !r.Valid {
				continue
			}
			if r.Receipt == nil {
				continue
			}

			anchorHash, rc, isAnchor, err := c.checkAnchorConfirmation(ctx, r.HostBlockHash)
			if err != nil {
				return types.HostBlockHash{}, 0, false, fmt.Errorf("drain ready blocks: anchor check for %s: %w", r.HostBlockHash, err)
			}
			if isAnchor {
				return anchorHash, rc, true, nil
			}
		}
	}
}

// checkAnchorConfirmation reports whether hostHash was confirmed as the
// current sortition tip's PoX anchor candidate (§4.7 last bullet).
func (c *Coordinator) checkAnchorConfirmation(ctx context.Context, hostHash types.HostBlockHash) (types.HostBlockHash, uint64, bool, error) {
	sortTip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return types.HostBlockHash{}, 0, false, err
	}
	canonical, ok, err := c.sortitions.IsStacksBlockPoxAnchor(ctx, hostHash, sortTip.SortitionId)
	if err != nil {
		return types.HostBlockHash{}, 0, false, err
	}
	if !ok {
		return types.HostBlockHash{}, 0, false, nil
	}
	epoch := c.cfg.Epochs.At(sortTip.BlockHeight)
	cycle := sortTip.RewardCycle(epoch.RewardCycleLength)
	return canonical, cycle, true, nil
}
