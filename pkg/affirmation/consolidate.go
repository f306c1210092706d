package affirmation

// Consolidate computes the effective affirmation map across an epoch
// transition (§4.1): for cycles before boundaryCycle it takes entries
// from sortAM (truncating and returning early if sortAM runs out —
// those cycles are not yet rewritable); from boundaryCycle onward it
// takes entries from given. The result never rewrites an entry at or
// before boundaryCycle once the boundary has taken effect (P2).
//
// Consolidate is total and deterministic: it accepts empty maps and
// never panics, blocks or errors.
func Consolidate(given, sortAM Map, boundaryCycle uint64) Map {
	out := make([]Entry, 0, given.Len())
	for i := uint64(0); i < boundaryCycle; i++ {
		if i >= uint64(sortAM.Len()) {
			return FromEntries(out...)
		}
		out = append(out, sortAM.At(int(i)))
	}
	for i := boundaryCycle; i < uint64(given.Len()); i++ {
		out = append(out, given.At(int(i)))
	}
	return FromEntries(out...)
}

// IsCompatible reports whether host AM a is compatible with heaviest AM
// h (§4.5): they must agree on every cycle where both are defined, and
// neither may record Present where the other records Absent — Nothing
// never conflicts with anything.
func IsCompatible(a, h Map) bool {
	n := a.Len()
	if h.Len() > n {
		n = h.Len()
	}
	for i := 0; i < n; i++ {
		ea, eh := a.At(i), h.At(i)
		if ea == Nothing || eh == Nothing {
			continue
		}
		if ea != eh {
			return false
		}
	}
	return true
}

// IsPrefixOrCompatible is the §4.5 step 2 check used while scanning
// host headers: a header's AM qualifies if it is a prefix of heaviest,
// or (more generally, since headers may have entries heaviest hasn't
// reached yet) compatible with it in the IsCompatible sense.
func IsPrefixOrCompatible(headerAM, heaviest Map) bool {
	return heaviest.HasPrefix(headerAM) || IsCompatible(headerAM, heaviest)
}
