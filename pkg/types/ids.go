// Copyright 2025 Certen Protocol
//
// Package types holds the opaque identifiers, the pox-id bit-vector, the
// sortition snapshot, and the reward-cycle-info value that the rest of
// the coordinator operates on.
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BurnHeaderHash identifies a burnchain block header.
type BurnHeaderHash common.Hash

// HostBlockHash identifies a host-chain block.
type HostBlockHash common.Hash

// ConsensusHash identifies the sortition-derived consensus state at a
// given burn height.
type ConsensusHash common.Hash

// SortitionId is a derived fingerprint of (parent pox-id bits, burn
// header hash, reward-cycle-info tag); see MakeNextSortitionId. Equal
// inputs yield equal ids (I1, §3).
type SortitionId common.Hash

// Txid identifies a burnchain transaction (a block-commit or other op).
type Txid common.Hash

func (h BurnHeaderHash) String() string { return common.Hash(h).Hex() }
func (h HostBlockHash) String() string  { return common.Hash(h).Hex() }
func (h ConsensusHash) String() string  { return common.Hash(h).Hex() }
func (h SortitionId) String() string    { return common.Hash(h).Hex() }
func (h Txid) String() string           { return common.Hash(h).Hex() }

// IsZero reports whether the identifier is the zero value.
func (h BurnHeaderHash) IsZero() bool { return h == BurnHeaderHash{} }
func (h HostBlockHash) IsZero() bool  { return h == HostBlockHash{} }

// FirstConsensusHash and FirstHostBlockHash are the genesis sentinels
// returned by §4.5 step 3 when no compatible host block exists yet.
var (
	FirstConsensusHash  = ConsensusHash{}
	FirstHostBlockHash  = HostBlockHash{}
	GenesisBurnHeader    = BurnHeaderHash{}
	GenesisSortitionId   = SortitionId{}
)

// MakeNextSortitionId derives the prospective SortitionId for a
// burnchain block given its parent's pox-id and the block's header
// hash, folding in the reward-cycle-info's anchor status so that a
// late-arriving anchor reinterpretation (§4.3) produces a distinct id
// from the pre-reinterpretation branch. Equal inputs always yield equal
// ids (I1) — this is a pure function of its arguments.
func MakeNextSortitionId(parentPoxID PoxId, burnHeader BurnHeaderHash, rciTag string) SortitionId {
	h := crypto.Keccak256(
		parentPoxID.Bytes(),
		burnHeader[:],
		[]byte(rciTag),
	)
	var id SortitionId
	copy(id[:], h)
	return id
}

// HexString renders a byte slice the way the coordinator's logs and the
// debug HTTP surface want identifiers rendered: 0x-prefixed lowercase hex.
func HexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ParseHash parses a 0x-prefixed or bare hex string into a common.Hash,
// returning an error that names the offending field.
func ParseHash(field, s string) (common.Hash, error) {
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: invalid hex: %w", field, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: expected %d bytes, got %d", field, common.HashLength, len(b))
	}
	var h common.Hash
	copy(h[:], b)
	return h, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
