// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"time"

	"github.com/certen/chain-coordinator/pkg/eventbus"
)

// Run drives the single-threaded event loop (§4.9) until ctx is
// cancelled or a Stop signal is observed. Signals are level-triggered
// with coalescing: eventbus.Bus.Wait already merges any signals raised
// between wakes, so one iteration handles everything pending.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		pending, wakeID := c.bus.Wait(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pending.Has(eventbus.Stop) {
			c.logger.Info("coordinator event loop stopping", "wake_id", wakeID)
			return nil
		}

		started := time.Now()
		if err := c.handleWake(ctx, pending, wakeID); err != nil {
			c.logger.Error("coordinator event loop iteration failed", "wake_id", wakeID, "err", err)
		}
		c.metrics.EventLoopIterationSecs.Observe(time.Since(started).Seconds())
	}
}

// handleWake dispatches one coalesced set of signals (§4.9). wakeID
// correlates every log line this iteration emits back to the eventbus
// wake that triggered it.
func (c *Coordinator) handleWake(ctx context.Context, pending eventbus.Signal, wakeID string) error {
	if pending.Has(eventbus.NewHostBlock) {
		if err := c.handleNewHostBlock(ctx, wakeID); err != nil {
			return err
		}
	}
	if pending.Has(eventbus.NewBurnBlock) {
		if err := c.handleNewBurnBlock(ctx, wakeID); err != nil {
			return err
		}
	}
	return nil
}

// handleNewHostBlock processes ready host blocks under the miner gate,
// looping the anchor-block handler (§4.8) whenever a candidate surfaces,
// until no more anchors are confirmed.
func (c *Coordinator) handleNewHostBlock(ctx context.Context, wakeID string) error {
	var loopErr error
	c.miner.Lock(func() {
		for {
			anchorHash, cycle, isAnchor, err := c.drainReadyBlocks(ctx)
			if err != nil {
				loopErr = err
				return
			}
			if !isAnchor {
				return
			}
			outcome, err := c.handleAnchorCandidate(ctx, anchorHash, cycle)
			if err != nil {
				loopErr = err
				return
			}
			if !outcome.Affirmed {
				return
			}
		}
	})
	if loopErr != nil {
		c.logger.Error("new host block handling failed", "wake_id", wakeID, "err", loopErr)
	}
	return loopErr
}

// handleNewBurnBlock runs burnchain-block ingestion (§4.6) under the
// miner gate.
func (c *Coordinator) handleNewBurnBlock(ctx context.Context, wakeID string) error {
	var result IngestResult
	var ingestErr error
	c.miner.Lock(func() {
		result, ingestErr = c.ingestBurnchainBlocks(ctx)
	})
	if ingestErr != nil {
		return ingestErr
	}
	if result.Blocked {
		c.logger.Info("burnchain ingestion blocked on missing anchor", "wake_id", wakeID, "missing_anchor", result.MissingAnchor)
	}
	return nil
}
