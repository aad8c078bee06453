package bounds

import "testing"

// declVar registers a function-local declaration and returns its key. Tests
// across this package use it to build small registries by hand.
func declVar(bi *Info, fn, name string, line int, numeric, pointer bool) BoundsKey {
	k := bi.InsertVariable(Decl{
		Name:     name,
		File:     "test.c",
		Line:     line,
		Col:      1,
		Kind:     KindLocal,
		Function: fn,
		Numeric:  numeric,
		Pointer:  pointer,
	})
	if pointer {
		bi.MarkPointer(k)
	}
	return k
}

func TestMergeBoundsPriorityOrder(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)
	m := declVar(bi, "f", "m", 3, true, false)

	if !bi.MergeBounds(p, Heuristics, CountOf(m)) {
		t.Fatal("first merge reported no change")
	}
	if b, prio, ok := bi.GetBounds(p); !ok || prio != Heuristics || b != CountOf(m) {
		t.Fatalf("got %v at %v, want count(m) at heuristics", b, prio)
	}

	// A higher tier displaces the effective bound without touching the
	// lower one.
	bi.MergeBounds(p, Allocator, CountOf(n))
	if b, prio, ok := bi.GetBounds(p); !ok || prio != Allocator || b != CountOf(n) {
		t.Fatalf("got %v at %v, want count(n) at allocator", b, prio)
	}
	if b, ok := bi.BoundsAt(p, Heuristics); !ok || b != CountOf(m) {
		t.Fatalf("heuristics tier lost its entry, got %v, %v", b, ok)
	}

	bi.MergeBounds(p, Declared, ByteCountOf(n))
	if b, prio, _ := bi.GetBounds(p); prio != Declared || b != ByteCountOf(n) {
		t.Fatalf("got %v at %v, want byte_count(n) at declared", b, prio)
	}
}

func TestMergeBoundsIdempotent(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)

	if !bi.MergeBounds(p, FlowInferred, CountOf(n)) {
		t.Fatal("first merge reported no change")
	}
	if bi.MergeBounds(p, FlowInferred, CountOf(n)) {
		t.Fatal("repeated merge of an equal bound reported a change")
	}
	// A different bound at the same tier overwrites and reports change.
	if !bi.MergeBounds(p, FlowInferred, CountPlusOneOf(n)) {
		t.Fatal("overwriting merge reported no change")
	}
}

func TestRemoveBoundsExposesLowerTier(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)
	m := declVar(bi, "f", "m", 3, true, false)

	bi.MergeBounds(p, Declared, CountOf(n))
	bi.MergeBounds(p, Heuristics, CountOf(m))

	if !bi.RemoveBounds(p, Declared) {
		t.Fatal("removing the declared bound reported nothing removed")
	}
	if b, prio, ok := bi.GetBounds(p); !ok || prio != Heuristics || b != CountOf(m) {
		t.Fatalf("got %v at %v, want the heuristics bound to resurface", b, prio)
	}

	// InvalidPriority clears every tier.
	bi.MergeBounds(p, Declared, CountOf(n))
	if !bi.RemoveBounds(p, InvalidPriority) {
		t.Fatal("removing all tiers reported nothing removed")
	}
	if _, _, ok := bi.GetBounds(p); ok {
		t.Fatal("key still has a bound after removing all tiers")
	}
	if bi.RemoveBounds(p, InvalidPriority) {
		t.Fatal("removing from an empty key reported a removal")
	}
}

func TestReplaceBounds(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)
	m := declVar(bi, "f", "m", 3, true, false)

	bi.MergeBounds(p, FlowInferred, CountOf(n))
	bi.ReplaceBounds(p, FlowInferred, CountOf(m))
	if b, ok := bi.BoundsAt(p, FlowInferred); !ok || b != CountOf(m) {
		t.Fatalf("got %v, want count(m)", b)
	}
}

func TestKeepHighestPriorityBounds(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	q := declVar(bi, "f", "q", 2, false, true)
	n := declVar(bi, "f", "n", 3, true, false)
	m := declVar(bi, "f", "m", 4, true, false)

	bi.MergeBounds(p, Declared, CountOf(n))
	bi.MergeBounds(p, FlowInferred, CountOf(m))
	bi.MergeBounds(p, Heuristics, CountOf(m))
	bi.MergeBounds(q, Heuristics, CountOf(n))

	if !bi.KeepHighestPriorityBounds() {
		t.Fatal("pruning a multi-tier key reported no change")
	}
	if _, ok := bi.BoundsAt(p, FlowInferred); ok {
		t.Fatal("flow-inferred tier survived pruning")
	}
	if _, ok := bi.BoundsAt(p, Heuristics); ok {
		t.Fatal("heuristics tier survived pruning")
	}
	if b, prio, _ := bi.GetBounds(p); prio != Declared || b != CountOf(n) {
		t.Fatalf("got %v at %v, want declared count(n)", b, prio)
	}
	// A key holding a single tier is untouched.
	if b, prio, _ := bi.GetBounds(q); prio != Heuristics || b != CountOf(n) {
		t.Fatalf("got %v at %v, want heuristics count(n)", b, prio)
	}
	if bi.KeepHighestPriorityBounds() {
		t.Fatal("second pruning pass reported a change")
	}
}

func TestImpossibleBoundsAreTerminal(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)

	bi.MergeBounds(p, FlowInferred, CountOf(n))
	bi.MergeBounds(p, Heuristics, CountOf(n))
	bi.MarkImpossible(p)

	if _, _, ok := bi.GetBounds(p); ok {
		t.Fatal("inferred bounds survived the impossible classification")
	}
	if bi.MergeBounds(p, FlowInferred, CountOf(n)) {
		t.Fatal("flow-inferred bound accepted on an impossible key")
	}
	if bi.MergeBounds(p, Heuristics, CountOf(n)) {
		t.Fatal("heuristics bound accepted on an impossible key")
	}
	// Declared bounds still win: the user knows better.
	if !bi.MergeBounds(p, Declared, CountOf(n)) {
		t.Fatal("declared bound refused on an impossible key")
	}
	if got := bi.Status(p); got != StatusImpossible {
		t.Fatalf("status is %v, want impossible", got)
	}
}

func TestDeclareBoundsRecordsStat(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)

	bi.DeclareBounds(p, CountOf(n))
	if b, prio, _ := bi.GetBounds(p); prio != Declared || b != CountOf(n) {
		t.Fatalf("got %v at %v, want declared count(n)", b, prio)
	}
	if !bi.BStats().DeclaredBounds.Has(int(p)) {
		t.Fatal("declared-bounds stat not recorded")
	}
}
