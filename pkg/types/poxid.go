package types

import "strings"

// PoxId is a growable bit-vector, one bit per completed reward cycle.
// Bit i is 1 iff that cycle's anchor block was processed on this
// sortition fork (§3). It grows only by appending; cycles already
// recorded never change.
type PoxId struct {
	bits []bool
}

// NewPoxId returns the empty pox-id (genesis, zero completed cycles).
func NewPoxId() PoxId {
	return PoxId{}
}

// PoxIdFromBits builds a PoxId from an explicit bit sequence, oldest
// cycle first. Used by tests and store deserialization.
func PoxIdFromBits(bits ...bool) PoxId {
	cp := make([]bool, len(bits))
	copy(cp, bits)
	return PoxId{bits: cp}
}

// Len returns the number of completed cycles recorded.
func (p PoxId) Len() int { return len(p.bits) }

// Bit returns whether cycle i's anchor was processed on this fork.
// Panics if i is out of range, matching the invariant (I1) that callers
// only ever index cycles known to exist on this fork.
func (p PoxId) Bit(i int) bool { return p.bits[i] }

// WithAppend returns a new PoxId with one more bit appended, leaving the
// receiver unmodified (pox-ids are treated as immutable values once
// published to a Sortition).
func (p PoxId) WithAppend(bit bool) PoxId {
	out := make([]bool, len(p.bits)+1)
	copy(out, p.bits)
	out[len(p.bits)] = bit
	return PoxId{bits: out}
}

// PoxIdFromPackedBytes reconstructs a PoxId from the MSB-first packed
// encoding produced by Bytes, given the exact number of cycles it
// records (the packing alone can't distinguish a trailing 0 bit from
// padding).
func PoxIdFromPackedBytes(b []byte, length int) PoxId {
	bits := make([]bool, length)
	for i := 0; i < length; i++ {
		bits[i] = b[i/8]&(1<<uint(7-i%8)) != 0
	}
	return PoxId{bits: bits}
}

// Bytes packs the bit-vector MSB-first within each byte, one bit per
// cycle, for hashing into a SortitionId.
func (p PoxId) Bytes() []byte {
	out := make([]byte, (len(p.bits)+7)/8)
	for i, b := range p.bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// String renders the pox-id as a string of '1'/'0' characters, oldest
// cycle first — e.g. "101" means cycle 0 and 2 processed an anchor,
// cycle 1 did not.
func (p PoxId) String() string {
	var sb strings.Builder
	for _, b := range p.bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Equal reports whether two pox-ids record the same bits.
func (p PoxId) Equal(other PoxId) bool {
	if len(p.bits) != len(other.bits) {
		return false
	}
	for i := range p.bits {
		if p.bits[i] != other.bits[i] {
			return false
		}
	}
	return true
}
