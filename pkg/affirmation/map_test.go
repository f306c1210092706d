package affirmation

import "testing"

func TestHasPrefixAndFindDivergence(t *testing.T) {
	full := FromEntries(Present, Absent, Present, Nothing)
	prefix := FromEntries(Present, Absent)

	if !full.HasPrefix(prefix) {
		t.Fatalf("expected %v to have prefix %v", full, prefix)
	}
	if _, diverges := full.FindDivergence(prefix); diverges {
		t.Fatalf("expected no divergence between a map and its prefix")
	}

	other := FromEntries(Present, Present)
	if full.HasPrefix(other) {
		t.Fatalf("did not expect %v to have prefix %v", full, other)
	}
	idx, diverges := full.FindDivergence(other)
	if !diverges || idx != 1 {
		t.Fatalf("expected divergence at cycle 1, got (%d, %v)", idx, diverges)
	}
}

// P3: A.has_prefix(B) iff A.find_divergence(B).is_none() when len(B) <= len(A).
func TestHasPrefixMatchesFindDivergence(t *testing.T) {
	cases := []struct {
		a, b Map
	}{
		{FromEntries(Present, Absent, Present), FromEntries(Present, Absent)},
		{FromEntries(Present, Absent, Present), FromEntries(Present, Present)},
		{FromEntries(Present), FromEntries()},
		{FromEntries(), FromEntries()},
		{FromEntries(Present, Nothing), FromEntries(Present)},
	}
	for _, c := range cases {
		if c.b.Len() > c.a.Len() {
			t.Fatalf("test case invariant violated: len(b) > len(a)")
		}
		_, diverges := c.a.FindDivergence(c.b)
		prefix := c.a.HasPrefix(c.b)
		if prefix == diverges {
			t.Fatalf("HasPrefix=%v but divergence=%v for a=%v b=%v", prefix, diverges, c.a, c.b)
		}
	}
}

func TestFindDivergenceNothingExtensionIsNotDivergence(t *testing.T) {
	shorter := FromEntries(Present, Absent)
	longerWithNothing := FromEntries(Present, Absent, Nothing, Nothing)
	if _, diverges := shorter.FindDivergence(longerWithNothing); diverges {
		t.Fatalf("extension with only Nothing entries should not diverge")
	}
}

func TestWeight(t *testing.T) {
	m := FromEntries(Present, Absent, Present, Nothing, Present)
	if got := m.Weight(); got != 3 {
		t.Fatalf("expected weight 3, got %d", got)
	}
}

func TestLessTieBreak(t *testing.T) {
	a := FromEntries(Present, Absent)
	b := FromEntries(Absent, Present)
	// equal weight (1 Present each); lexicographic compare: cycle 0
	// Present(rank2) vs Absent(rank1) -> b < a
	if !b.Less(a) {
		t.Fatalf("expected b < a under weight tie-break")
	}
	if a.Less(b) {
		t.Fatalf("did not expect a < b")
	}
}

func TestPushPop(t *testing.T) {
	m := New()
	m = m.Push(Present).Push(Absent)
	if m.Len() != 2 || m.At(0) != Present || m.At(1) != Absent {
		t.Fatalf("unexpected map after pushes: %v", m)
	}
	m = m.Pop()
	if m.Len() != 1 || m.At(0) != Present {
		t.Fatalf("unexpected map after pop: %v", m)
	}
}

func TestAtOutOfRangeIsNothing(t *testing.T) {
	m := FromEntries(Present)
	if m.At(5) != Nothing {
		t.Fatalf("expected out-of-range index to read as Nothing")
	}
}
