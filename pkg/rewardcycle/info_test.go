package rewardcycle

import (
	"context"
	"testing"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/types"
)

type fakeSelector struct {
	host types.HostBlockHash
	tx   types.Txid
	ok   bool
}

func (f fakeSelector) SelectAnchor(ctx context.Context, cycle uint64, epoch Epoch) (types.HostBlockHash, types.Txid, bool, error) {
	return f.host, f.tx, f.ok, nil
}

type fakeChecker struct{ known bool }

func (f fakeChecker) IsProcessed(ctx context.Context, h types.HostBlockHash) (bool, types.ConsensusHash, error) {
	return f.known, types.ConsensusHash{}, nil
}

type fakeRewardSets struct{}

func (fakeRewardSets) RegisteredAddresses(ctx context.Context, anchor types.HostBlockHash) ([]types.RewardAddress, error) {
	return []types.RewardAddress{{Address: "a", Amount: 100}, {Address: "b", Amount: 50}}, nil
}
func (fakeRewardSets) LiquidSupply(ctx context.Context, anchor types.HostBlockHash) (uint64, error) {
	return 200, nil
}

type fakeSlots struct{ n uint64 }

func (f fakeSlots) NumRewardSlots(ctx context.Context) (uint64, error) { return f.n, nil }

func testEpoch() Epoch {
	return Epoch{
		Name:                        "2.1",
		RewardCycleLength:           5,
		PrepareLength:               2,
		MinParticipationNumerator:   1,
		MinParticipationDenominator: 4,
	}
}

func TestDeriveRewardCycleInfoPastSunset(t *testing.T) {
	epoch := testEpoch()
	epoch.PoxSunsetHeight = 10
	info, err := DeriveRewardCycleInfo(context.Background(), 3, epoch, fakeSelector{ok: true}, fakeChecker{known: true}, fakeRewardSets{}, fakeSlots{n: 2})
	if err != nil {
		t.Fatal(err)
	}
	if info.AnchorStatus.Kind != types.NotSelected {
		t.Fatalf("expected NotSelected past sunset, got %v", info.AnchorStatus.Kind)
	}
}

func TestDeriveRewardCycleInfoNoAnchor(t *testing.T) {
	epoch := testEpoch()
	info, err := DeriveRewardCycleInfo(context.Background(), 2, epoch, fakeSelector{ok: false}, fakeChecker{}, fakeRewardSets{}, fakeSlots{n: 2})
	if err != nil {
		t.Fatal(err)
	}
	if info.AnchorStatus.Kind != types.NotSelected {
		t.Fatalf("expected NotSelected with no anchor candidate, got %v", info.AnchorStatus.Kind)
	}
}

func TestDeriveRewardCycleInfoUnknown(t *testing.T) {
	epoch := testEpoch()
	h := types.HostBlockHash{1}
	info, err := DeriveRewardCycleInfo(context.Background(), 2, epoch, fakeSelector{host: h, ok: true}, fakeChecker{known: false}, fakeRewardSets{}, fakeSlots{n: 2})
	if err != nil {
		t.Fatal(err)
	}
	if info.AnchorStatus.Kind != types.SelectedAndUnknown || info.AnchorStatus.HostBlockHash != h {
		t.Fatalf("expected SelectedAndUnknown(%v), got %v", h, info.AnchorStatus)
	}
}

func TestDeriveRewardCycleInfoKnown(t *testing.T) {
	epoch := testEpoch()
	h := types.HostBlockHash{1}
	info, err := DeriveRewardCycleInfo(context.Background(), 2, epoch, fakeSelector{host: h, ok: true}, fakeChecker{known: true}, fakeRewardSets{}, fakeSlots{n: 2})
	if err != nil {
		t.Fatal(err)
	}
	if info.AnchorStatus.Kind != types.SelectedAndKnown {
		t.Fatalf("expected SelectedAndKnown, got %v", info.AnchorStatus.Kind)
	}
	if info.AnchorStatus.RewardSet.AllBurn {
		t.Fatalf("expected participation above minimum, got all-burn")
	}
}

func TestDeriveRewardSetAllBurnBelowParticipation(t *testing.T) {
	epoch := testEpoch()
	epoch.MinParticipationNumerator = 4
	epoch.MinParticipationDenominator = 5 // requires >= 80% of supply stacked
	rs, err := DeriveRewardSet(context.Background(), fakeRewardSets{}, types.HostBlockHash{}, epoch, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !rs.AllBurn {
		t.Fatalf("expected all-burn below minimum participation, got %+v", rs)
	}
}

func TestReinterpretTable(t *testing.T) {
	h := types.HostBlockHash{2}
	tx := types.Txid{3}
	cycle := uint64(1)

	cases := []struct {
		name    string
		local   types.AnchorStatus
		entry   affirmation.Entry
		wantKind types.AnchorStatusKind
		blocked bool
	}{
		{"known-present-stays-known", types.SelectedAndKnownStatus(h, tx, types.RewardSet{}), affirmation.Present, types.SelectedAndKnown, false},
		{"known-absent-demoted", types.SelectedAndKnownStatus(h, tx, types.RewardSet{}), affirmation.Absent, types.SelectedAndUnknown, false},
		{"known-nothing-not-selected", types.SelectedAndKnownStatus(h, tx, types.RewardSet{}), affirmation.Nothing, types.NotSelected, false},
		{"unknown-present-blocks", types.SelectedAndUnknownStatus(h, tx), affirmation.Present, 0, true},
		{"unknown-absent-stays-unknown", types.SelectedAndUnknownStatus(h, tx), affirmation.Absent, types.SelectedAndUnknown, false},
		{"unknown-nothing-not-selected", types.SelectedAndUnknownStatus(h, tx), affirmation.Nothing, types.NotSelected, false},
		{"not-selected-stays", types.NotSelectedStatus(), affirmation.Present, types.NotSelected, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			canonical := affirmation.New()
			for i := uint64(0); i < cycle; i++ {
				canonical = canonical.Push(affirmation.Nothing)
			}
			canonical = canonical.Push(c.entry)

			got := Reinterpret(c.local, canonical, cycle)
			if got.Blocked != c.blocked {
				t.Fatalf("Blocked = %v, want %v", got.Blocked, c.blocked)
			}
			if c.blocked {
				if got.MissingAnchor != h {
					t.Fatalf("MissingAnchor = %v, want %v", got.MissingAnchor, h)
				}
				return
			}
			if got.Status.Kind != c.wantKind {
				t.Fatalf("Status.Kind = %v, want %v", got.Status.Kind, c.wantKind)
			}
		})
	}
}
