// Copyright 2025 Certen Protocol
package burnchaindb

import (
	"bytes"
	"context"

	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/types"
)

// Selector adapts a Store into rewardcycle.AnchorSelector, applying the
// epoch's legacy F*w confirmation rule or post-transition commit-
// weighted rule against the prepare phase's recorded commits (§4.2
// step 2, §9 post-transition selection rule).
type Selector struct {
	Store Store
}

// SelectAnchor implements rewardcycle.AnchorSelector.
func (s Selector) SelectAnchor(ctx context.Context, cycle uint64, epoch rewardcycle.Epoch) (types.HostBlockHash, types.Txid, bool, error) {
	commits, err := s.Store.PreparePhaseCommits(ctx, cycle)
	if err != nil {
		return types.HostBlockHash{}, types.Txid{}, false, err
	}
	if len(commits) == 0 {
		return types.HostBlockHash{}, types.Txid{}, false, nil
	}

	type candidate struct {
		host          types.HostBlockHash
		txid          types.Txid
		confirmations uint64
		weight        uint64
	}

	byHost := map[types.HostBlockHash]*candidate{}
	for _, c := range commits {
		cand, ok := byHost[c.CommittedHostBlockHash]
		if !ok {
			cand = &candidate{host: c.CommittedHostBlockHash, txid: c.Txid}
			byHost[c.CommittedHostBlockHash] = cand
		}
		cand.weight += c.BurnFee
		if c.Confirmations > cand.confirmations || (c.Confirmations == cand.confirmations && bytes.Compare(c.Txid[:], cand.txid[:]) < 0) {
			cand.confirmations = c.Confirmations
			cand.txid = c.Txid
		}
	}

	candidates := make([]*candidate, 0, len(byHost))
	for _, cand := range byHost {
		candidates = append(candidates, cand)
	}
	// Deterministic tie-break: highest score wins, ties broken by the
	// lexicographically smallest host hash, independent of map
	// iteration order (I1: equal inputs yield equal ids).
	score := func(c *candidate) uint64 {
		if epoch.PostTransition {
			return c.weight
		}
		return c.confirmations
	}
	best := candidates[0]
	for _, cand := range candidates[1:] {
		bs, cs := score(best), score(cand)
		if cs > bs || (cs == bs && bytes.Compare(cand.host[:], best.host[:]) < 0) {
			best = cand
		}
	}

	if !epoch.PostTransition {
		threshold := epoch.PrepareLength * epoch.FStarNumerator / denomOrOne(epoch.FStarDenominator)
		if best.confirmations < threshold {
			return types.HostBlockHash{}, types.Txid{}, false, nil
		}
	}
	return best.host, best.txid, true, nil
}

func denomOrOne(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

var _ rewardcycle.AnchorSelector = Selector{}
