package rewardcycle

import "github.com/certen/chain-coordinator/pkg/types"

// PaidRewards is a pure function from a burnchain block's operations to
// a PoX payout vector and a burn amount (§2.3). Only leader block-commit
// operations contribute; everything else is ignored. This function
// never errors and never touches a store — it is deterministic given
// its input.
func PaidRewards(ops []types.BurnchainOp) types.PaidRewards {
	out := types.PaidRewards{PoxPayouts: make(map[string]uint64)}
	for _, op := range ops {
		if op.Kind != types.OpLeaderBlockCommit {
			continue
		}
		if len(op.Recipients) == 0 {
			out.BurnAmount += op.BurnFee
			continue
		}
		for _, r := range op.Recipients {
			out.PoxPayouts[r.Address] += r.Amount
		}
	}
	return out
}
