// Copyright 2025 Certen Protocol
package hostchaindb

import (
	"context"

	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/types"
)

// Checker adapts a Store into rewardcycle.HostBlockChecker: a host
// block counts as locally known if it has been accepted under any
// consensus history it was ever staged against (§4.2 step 3).
type Checker struct {
	Store Store
}

// IsProcessed implements rewardcycle.HostBlockChecker.
func (c Checker) IsProcessed(ctx context.Context, hostHash types.HostBlockHash) (bool, types.ConsensusHash, error) {
	hashes, err := c.Store.GetStagingBlockConsensusHashes(ctx, hostHash)
	if err != nil {
		return false, types.ConsensusHash{}, err
	}
	for _, ch := range hashes {
		processed, err := c.Store.IsBlockProcessed(ctx, ch, hostHash)
		if err != nil {
			return false, types.ConsensusHash{}, err
		}
		if processed {
			return true, ch, nil
		}
	}
	return false, types.ConsensusHash{}, nil
}

var _ rewardcycle.HostBlockChecker = Checker{}
