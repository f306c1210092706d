// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/types"
)

// highestCompatibleHostBlock implements §4.5: search host headers from
// the highest known burn height downward, at each height preferring
// the header with the greatest memoized affirmation weight, for the
// first one whose AM is compatible with heaviest and which is an
// ancestor of sortTip. Falls back to the genesis sentinel.
func (c *Coordinator) highestCompatibleHostBlock(ctx context.Context, heaviest affirmation.Map, sortTip types.Sortition) (types.ConsensusHash, types.HostBlockHash, uint64, error) {
	maxHeight, err := c.hostchain.GetMaxHeaderHeight(ctx)
	if err != nil {
		return types.ConsensusHash{}, types.HostBlockHash{}, 0, fmt.Errorf("highest compatible host block: max header height: %w", err)
	}

	for height := maxHeight; ; height-- {
		weight, err := c.hostchain.GetMaxAffirmationWeightAtHeight(ctx, height)
		if err != nil {
			return types.ConsensusHash{}, types.HostBlockHash{}, 0, fmt.Errorf("highest compatible host block: weight at %d: %w", height, err)
		}

		headers, err := c.hostchain.GetAllHeadersAtHeightAndWeight(ctx, height, weight)
		if err != nil {
			return types.ConsensusHash{}, types.HostBlockHash{}, 0, fmt.Errorf("highest compatible host block: headers at %d: %w", height, err)
		}

		for _, h := range headers {
			am, err := c.hostchain.FindStacksTipAffirmationMap(ctx, c.burnchain, c.sortitions, h.ConsensusHash, h.HostBlockHash)
			if err != nil {
				if err == types.ErrInvalidPoxSortition {
					continue
				}
				return types.ConsensusHash{}, types.HostBlockHash{}, 0, fmt.Errorf("highest compatible host block: am for %s: %w", h.HostBlockHash, err)
			}
			if !affirmation.IsPrefixOrCompatible(am, heaviest) {
				continue
			}

			ancestor, ok, err := c.sortitions.GetAncestor(ctx, sortTip.SortitionId, h.BurnHeight)
			if err != nil {
				return types.ConsensusHash{}, types.HostBlockHash{}, 0, fmt.Errorf("highest compatible host block: ancestor check: %w", err)
			}
			if !ok || ancestor.ConsensusHash != h.ConsensusHash {
				continue
			}

			return h.ConsensusHash, h.HostBlockHash, h.BurnHeight, nil
		}

		if height == 0 {
			break
		}
	}

	return types.FirstConsensusHash, types.FirstHostBlockHash, 0, nil
}
