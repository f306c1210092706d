// Copyright 2025 Certen Protocol
//
// Package coordinator implements the chain coordinator's reorg-and-
// affirmation engine: the component that reconciles a burnchain and a
// derived host chain into one coherent, reorg-tolerant view (spec.md
// §4). The Coordinator type is the loop's owner; the algorithms live
// in reorg.go, highest_host_block.go, burnchain_ingest.go,
// ready_blocks.go, anchor.go, and loop.go.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/certen/chain-coordinator/pkg/burnchaindb"
	"github.com/certen/chain-coordinator/pkg/eventbus"
	"github.com/certen/chain-coordinator/pkg/hostchaindb"
	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/sortitiondb"
	"github.com/certen/chain-coordinator/pkg/types"
)

// CostEstimator receives execution-cost samples from accepted host
// blocks (§1 Out of scope: "the cost/fee estimators" — the coordinator
// only feeds them, it never implements the estimation itself).
type CostEstimator interface {
	RecordCost(ctx context.Context, hostBlock types.HostBlockHash, cost uint64)
}

// FeeEstimator receives fee-collection samples from accepted host blocks.
type FeeEstimator interface {
	RecordFees(ctx context.Context, hostBlock types.HostBlockHash, fees uint64)
}

// Notifier wraps hostchaindb.Dispatcher with the coordinator's own
// side effects (cost/fee estimator updates, attachment forwarding)
// applied on top of whatever the caller's dispatcher does (§4.7, §9
// "Notifier callbacks" / Dispatcher interface seam).
type Notifier struct {
	Dispatcher hostchaindb.Dispatcher
	Costs      CostEstimator
	Fees       FeeEstimator
	Bus        *eventbus.Bus
}

// AnnounceBlock forwards to the wrapped dispatcher, then updates
// estimators from the block's receipt (§4.7 step 2a).
func (n *Notifier) AnnounceBlock(ctx context.Context, result types.BlockResult) error {
	if n.Dispatcher != nil {
		if err := n.Dispatcher.AnnounceBlock(ctx, result); err != nil {
			return err
		}
	}
	if result.Receipt != nil {
		if n.Costs != nil {
			n.Costs.RecordCost(ctx, result.Receipt.HostBlockHash, result.Receipt.ExecutionCost)
		}
		if n.Fees != nil {
			n.Fees.RecordFees(ctx, result.Receipt.HostBlockHash, result.Receipt.FeesCollected)
		}
		for _, ev := range result.Receipt.Attachments {
			n.forwardAttachment(ev)
		}
	}
	return nil
}

// AnnounceAttachment forwards a standalone attachment event.
func (n *Notifier) AnnounceAttachment(ctx context.Context, ev types.AttachmentEvent) error {
	if n.Dispatcher != nil {
		if err := n.Dispatcher.AnnounceAttachment(ctx, ev); err != nil {
			return err
		}
	}
	n.forwardAttachment(ev)
	return nil
}

func (n *Notifier) forwardAttachment(ev types.AttachmentEvent) {
	if n.Bus == nil {
		return
	}
	n.Bus.PublishAttachment(eventbus.AttachmentEvent{
		HostBlockHash: ev.HostBlockHash,
		Index:         ev.Index,
		ContentHash:   ev.ContentHash,
	})
}

var _ hostchaindb.Dispatcher = (*Notifier)(nil)

// MinerGate is acquired around each burn-block and host-block handler
// so the miner never builds against a sortition view that is mid-reorg
// (§5 Shared resource policy).
type MinerGate struct {
	mu sync.Mutex
}

// Lock blocks the miner for the duration of fn.
func (g *MinerGate) Lock(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// TryAcquire reports whether the miner may currently produce a block,
// without blocking; callers (the RPC/mining subsystem) use this to
// decide whether to stand down.
func (g *MinerGate) TryAcquire() bool {
	if g.mu.TryLock() {
		g.mu.Unlock()
		return true
	}
	return false
}

// Config bundles the coordinator's epoch table and tuning knobs.
type Config struct {
	Epochs rewardcycle.Table

	// IBDHeightThreshold gates the §9 initial-block-download short-
	// circuit: while the burnchain canonical tip is more than this many
	// blocks ahead of the sortition tip, the reorg engine is skipped and
	// only sortition evaluation runs. Zero disables the short-circuit.
	IBDHeightThreshold uint64
}

// Coordinator is the reorg-and-affirmation engine's runtime: the
// strictly single-threaded mutator of the sortition and host-chain
// stores (§5 Scheduling).
type Coordinator struct {
	cfg Config

	sortitions sortitiondb.Store
	burnchain  burnchaindb.Store
	hostchain  hostchaindb.Store

	selector   rewardcycle.AnchorSelector
	checker    rewardcycle.HostBlockChecker
	rewardSets rewardcycle.RewardSetProvider
	slots      rewardcycle.NumRewardSlotsProvider

	bus      *eventbus.Bus
	notifier *Notifier
	miner    *MinerGate

	metrics *Metrics
	logger  cmtlog.Logger
}

// New constructs a Coordinator. All store and collaborator parameters
// are required; logger defaults to a no-op logger if nil.
func New(
	cfg Config,
	sortitions sortitiondb.Store,
	burnchain burnchaindb.Store,
	hostchain hostchaindb.Store,
	selector rewardcycle.AnchorSelector,
	checker rewardcycle.HostBlockChecker,
	rewardSets rewardcycle.RewardSetProvider,
	slots rewardcycle.NumRewardSlotsProvider,
	bus *eventbus.Bus,
	notifier *Notifier,
	logger cmtlog.Logger,
) (*Coordinator, error) {
	if sortitions == nil || burnchain == nil || hostchain == nil {
		return nil, fmt.Errorf("coordinator: sortition, burnchain, and host-chain stores are required")
	}
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Coordinator{
		cfg:        cfg,
		sortitions: sortitions,
		burnchain:  burnchain,
		hostchain:  hostchain,
		selector:   selector,
		checker:    checker,
		rewardSets: rewardSets,
		slots:      slots,
		bus:        bus,
		notifier:   notifier,
		miner:      &MinerGate{},
		metrics:    NewMetrics(),
		logger:     logger,
	}, nil
}

// Metrics exposes the coordinator's prometheus collectors for
// registration by the caller's HTTP server.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }
