package bounds

import (
	"strings"
	"testing"
)

func TestInsertVariableStableKeys(t *testing.T) {
	bi := NewInfo()
	d := Decl{Name: "buf", File: "a.c", Line: 10, Col: 5, Kind: KindLocal, Function: "f", Pointer: true}
	k1 := bi.InsertVariable(d)
	k2 := bi.InsertVariable(d)
	if k1 != k2 {
		t.Fatalf("same declaration got keys %d and %d", k1, k2)
	}
	if k1 == 0 {
		t.Fatal("key zero handed out")
	}

	// Parameters are keyed by position, not by location, so a prototype and
	// a definition share keys.
	proto := Decl{Name: "n", File: "a.c", Line: 3, Col: 20, Kind: KindParam, Function: "g", Index: 1, Numeric: true}
	def := Decl{Name: "len", File: "a.c", Line: 30, Col: 22, Kind: KindParam, Function: "g", Index: 1, Numeric: true}
	if bi.InsertVariable(proto) != bi.InsertVariable(def) {
		t.Fatal("prototype and definition of the same parameter got different keys")
	}

	// Return values are keyed per function.
	r1 := bi.InsertVariable(Decl{Kind: KindReturn, Function: "g", File: "a.c"})
	r2 := bi.InsertVariable(Decl{Kind: KindReturn, Function: "g", File: "a.c", Line: 99})
	if r1 != r2 {
		t.Fatal("same function return got two keys")
	}
	if !bi.IsFunctionReturn(r1) {
		t.Fatal("return key not recognized as a function return")
	}
}

func TestInsertVariableRejectsInvalidDecls(t *testing.T) {
	bi := NewInfo()
	defer func() {
		if recover() == nil {
			t.Fatal("registering an unnamed local did not panic")
		}
	}()
	bi.InsertVariable(Decl{File: "a.c", Line: 1, Col: 1, Kind: KindLocal, Function: "f"})
}

func TestTryGetVariable(t *testing.T) {
	bi := NewInfo()
	d := Decl{Name: "buf", File: "a.c", Line: 10, Col: 5, Kind: KindLocal, Function: "f", Pointer: true}
	if _, ok := bi.TryGetVariable(d); ok {
		t.Fatal("lookup succeeded before registration")
	}
	want := bi.InsertVariable(d)
	got, ok := bi.TryGetVariable(d)
	if !ok || got != want {
		t.Fatalf("got %d, %v, want %d", got, ok, want)
	}
	if _, ok := bi.TryGetVariable(Decl{Kind: KindConstant}); ok {
		t.Fatal("lookup of an unregistrable declaration succeeded")
	}
}

func TestConstKeyInterning(t *testing.T) {
	bi := NewInfo()
	k1 := bi.ConstKey(10)
	k2 := bi.ConstKey(10)
	k3 := bi.ConstKey(11)
	if k1 != k2 {
		t.Fatalf("constant 10 interned twice: %d and %d", k1, k2)
	}
	if k1 == k3 {
		t.Fatal("distinct constants share a key")
	}
	pv := bi.Var(k1)
	if !pv.Const || pv.ConstVal != 10 || !pv.Numeric {
		t.Fatalf("bad constant program var: %+v", pv)
	}
}

func TestTempKeys(t *testing.T) {
	bi := NewInfo()
	a := bi.TempKey()
	b := bi.TempKey()
	if a == b {
		t.Fatal("temp keys collide")
	}
	if bi.Var(a).Kind != KindTemp {
		t.Fatal("temp key not marked as temporary")
	}
}

func TestVarPanicsOnUnknownKey(t *testing.T) {
	bi := NewInfo()
	defer func() {
		if recover() == nil {
			t.Fatal("Var on an unregistered key did not panic")
		}
	}()
	bi.Var(BoundsKey(42))
}

func TestPointerClassification(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)

	bi.MarkArrayPointer(p)
	if !bi.IsArrayPointer(p) || bi.IsNtArrayPointer(p) {
		t.Fatal("array classification not recorded")
	}
	// Null-terminated displaces plain array.
	bi.MarkNtArrayPointer(p)
	if bi.IsArrayPointer(p) || !bi.IsNtArrayPointer(p) {
		t.Fatal("null-terminated classification did not displace array")
	}
	// And wins over later array marks.
	bi.MarkArrayPointer(p)
	if bi.IsArrayPointer(p) || !bi.IsNtArrayPointer(p) {
		t.Fatal("array classification displaced null-terminated")
	}
}

func TestInProgramArrPointers(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	q := declVar(bi, "f", "q", 2, false, true)
	s := declVar(bi, "f", "s", 3, false, true)

	bi.MarkArrayPointer(p)
	bi.MarkInProgram(p)
	bi.MarkNtArrayPointer(q)
	bi.MarkInProgram(q)
	bi.MarkArrayPointer(s) // external, never marked in-program

	set := bi.InProgramArrPointers()
	if !set.Has(int(p)) || !set.Has(int(q)) {
		t.Fatal("in-program array pointers missing from the set")
	}
	if set.Has(int(s)) {
		t.Fatal("external array pointer included")
	}
}

func TestCtxSensKey(t *testing.T) {
	bi := NewInfo()
	p := bi.InsertVariable(Decl{Name: "arr", File: "a.c", Kind: KindParam, Function: "use", Index: 0, Pointer: true})
	bi.MarkArrayPointer(p)
	bi.MarkInProgram(p)

	scope := CallSiteScope("caller", "a.c", "a.c:12:4")
	c1 := bi.CtxSensKey("a.c:12:4", scope, p)
	c2 := bi.CtxSensKey("a.c:12:4", scope, p)
	if c1 != c2 {
		t.Fatalf("same call site minted keys %d and %d", c1, c2)
	}
	other := bi.CtxSensKey("a.c:30:4", CallSiteScope("caller", "a.c", "a.c:30:4"), p)
	if other == c1 {
		t.Fatal("distinct call sites share a specialization")
	}

	// The specialization inherits the base's classifications and scope.
	if !bi.IsArrayPointer(c1) || !bi.IsInProgram(c1) {
		t.Fatal("specialization did not inherit classifications")
	}
	if got := bi.Var(c1).Scope; got != scope {
		t.Fatalf("specialization scope is %+v, want %+v", got, scope)
	}

	// Base and specialization are linked with context edges only.
	if ns := bi.Graph().Neighbours(p, EdgePlain); len(ns) != 0 {
		t.Fatalf("plain neighbours of base: %v, want none", ns)
	}
	found := false
	for _, n := range bi.Graph().Neighbours(p, EdgeCtxSens) {
		if n == c1 {
			found = true
		}
	}
	if !found {
		t.Fatal("specialization not reachable over context edges")
	}
}

func TestMergeKeys(t *testing.T) {
	bi := NewInfo()
	a := declVar(bi, "f", "a", 1, false, true)
	b := declVar(bi, "f", "b", 2, false, true)
	c := declVar(bi, "f", "c", 3, false, true)
	n := declVar(bi, "f", "n", 4, true, false)

	bi.MarkArrayPointer(b)
	bi.MarkInProgram(b)
	bi.RecordArithmetic(b)
	bi.AddAssignment(b, c) // c flows into b
	bi.MergeBounds(b, Declared, CountOf(n))

	bi.MergeKeys(a, b)

	if bi.tryVar(b) != nil {
		t.Fatal("merged-away key still registered")
	}
	if !bi.IsArrayPointer(a) || !bi.IsInProgram(a) || !bi.HasPointerArithmetic(a) {
		t.Fatal("classifications not transferred")
	}
	if got, _, ok := bi.GetBounds(a); !ok || got != CountOf(n) {
		t.Fatalf("bounds not transferred, got %v, %v", got, ok)
	}
	preds := bi.Graph().Preds(a, EdgePlain)
	if len(preds) != 1 || preds[0] != c {
		t.Fatalf("edges not redirected, preds of a: %v", preds)
	}

	// The registry now resolves b's declaration to a.
	got := bi.InsertVariable(Decl{Name: "b", File: "test.c", Line: 2, Col: 1, Kind: KindLocal, Function: "f", Pointer: true})
	if got != a {
		t.Fatalf("old declaration resolves to %d, want %d", got, a)
	}
}

func TestSameProgramVar(t *testing.T) {
	bi := NewInfo()
	n1 := bi.InsertVariable(Decl{Name: "n", File: "a.c", Line: 1, Col: 1, Kind: KindLocal, Function: "f", Numeric: true})
	n2 := bi.InsertVariable(Decl{Name: "n", File: "a.c", Line: 9, Col: 1, Kind: KindLocal, Function: "f", Numeric: true})
	m := bi.InsertVariable(Decl{Name: "m", File: "a.c", Line: 2, Col: 1, Kind: KindLocal, Function: "f", Numeric: true})
	if !bi.SameProgramVar(n1, n1) {
		t.Fatal("key not the same program var as itself")
	}
	if !bi.SameProgramVar(n1, n2) {
		t.Fatal("re-declared name in one scope not recognized")
	}
	if bi.SameProgramVar(n1, m) {
		t.Fatal("distinct names reported as the same var")
	}
}

func TestFormatBound(t *testing.T) {
	bi := NewInfo()
	n := declVar(bi, "f", "n", 1, true, false)
	lo := declVar(bi, "f", "lo", 2, true, false)
	hi := declVar(bi, "f", "hi", 3, true, false)

	cases := []struct {
		b    Bound
		want string
	}{
		{CountOf(n), "count(n)"},
		{CountPlusOneOf(n), "count(n + 1)"},
		{ByteCountOf(n), "byte_count(n)"},
		{RangeOf(lo, hi), "bounds(lo, hi)"},
	}
	for _, c := range cases {
		if got := bi.FormatBound(c.b); got != c.want {
			t.Errorf("FormatBound(%v) = %q, want %q", c.b, got, c.want)
		}
	}
}

func TestScopeVisibility(t *testing.T) {
	f := FunctionScope("f", "a.c")
	g := FunctionScope("g", "a.c")
	cs := CallSiteScope("f", "a.c", "a.c:5:2")
	st := StructScope("conn")

	cases := []struct {
		name     string
		src, dst Scope
		want     bool
	}{
		{"global anywhere", GlobalScope(), f, true},
		{"same function", f, f, true},
		{"other function", f, g, false},
		{"function into its call site", f, cs, true},
		{"other function into call site", g, cs, false},
		{"same struct", st, st, true},
		{"struct into function", st, f, false},
		{"call site into function", cs, f, false},
		{"same call site", cs, cs, true},
	}
	for _, c := range cases {
		if got := c.src.VisibleFrom(c.dst); got != c.want {
			t.Errorf("%s: VisibleFrom = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDumpAVarGraph(t *testing.T) {
	bi := NewInfo()
	p := declVar(bi, "f", "p", 1, false, true)
	n := declVar(bi, "f", "n", 2, true, false)
	bi.AddAssignment(p, n)

	var sb strings.Builder
	if err := bi.DumpAVarGraph(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "digraph") {
		t.Fatalf("dump is not a digraph:\n%s", out)
	}
	if !strings.Contains(out, "n") || !strings.Contains(out, "p") {
		t.Fatalf("dump misses node labels:\n%s", out)
	}
}
