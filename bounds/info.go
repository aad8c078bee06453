package bounds

import (
	"fmt"
	"io"
	"log"

	"golang.org/x/tools/container/intsets"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

// Decl identifies a declaration to the registry. The frontend constructs
// one Decl per declaration it encounters; the registry guarantees that the
// same Decl always maps to the same BoundsKey.
//
// Ordinary declarations are keyed by source location. Parameters and
// return values are keyed structurally by {function, file, index} instead,
// because the same signature may be redeclared across translation units.
type Decl struct {
	Name string
	File string
	Line int
	Col  int
	Kind VarKind
	// Function is the enclosing function for locals, parameters and
	// returns; empty for file-scope declarations.
	Function string
	// Struct is the owning struct for fields.
	Struct string
	// Index is the zero-based parameter position.
	Index int
	// Numeric marks integer-typed declarations.
	Numeric bool
	// Pointer marks pointer-typed declarations.
	Pointer bool
}

type declKey struct {
	file      string
	line, col int
}

type paramKey struct {
	function string
	file     string
	index    int
}

type funcKey struct {
	function string
	file     string
}

type ctxKey struct {
	callSite string
	base     BoundsKey
}

// Info owns all bounds-inference state for one analysis run: the variable
// registry, the dependency graph, the tiered bounds store, the potential
// bounds tracker and the stats. It is not safe for concurrent use; an
// analysis run is single-threaded by design.
type Info struct {
	nextKey BoundsKey

	vars      map[BoundsKey]*ProgramVar
	constKeys map[int64]BoundsKey

	declKeys  map[declKey]BoundsKey
	keyDecls  map[BoundsKey]declKey
	paramKeys map[paramKey]BoundsKey
	keyParams map[BoundsKey]paramKey
	funcKeys  map[funcKey]BoundsKey
	keyFuncs  map[BoundsKey]funcKey
	ctxKeys   map[ctxKey]BoundsKey

	// binfo holds, per key, at most one bound per priority tier.
	binfo map[BoundsKey]map[Priority]Bound

	pointers      intsets.Sparse
	arrPointers   intsets.Sparse
	ntArrPointers intsets.Sparse
	impossible    intsets.Sparse
	inProgram     intsets.Sparse
	arith         intsets.Sparse
	tmpKeys       intsets.Sparse

	graph     *VarGraph
	potential *PotentialBounds
	stats     Stats
	status    map[BoundsKey]Status
}

// NewInfo returns an empty analysis context.
func NewInfo() *Info {
	return &Info{
		nextKey:   1,
		vars:      map[BoundsKey]*ProgramVar{},
		constKeys: map[int64]BoundsKey{},
		declKeys:  map[declKey]BoundsKey{},
		keyDecls:  map[BoundsKey]declKey{},
		paramKeys: map[paramKey]BoundsKey{},
		keyParams: map[BoundsKey]paramKey{},
		funcKeys:  map[funcKey]BoundsKey{},
		keyFuncs:  map[BoundsKey]funcKey{},
		ctxKeys:   map[ctxKey]BoundsKey{},
		binfo:     map[BoundsKey]map[Priority]Bound{},
		graph:     newVarGraph(),
		potential: newPotentialBounds(),
		status:    map[BoundsKey]Status{},
	}
}

func (bi *Info) nextBoundsKey() BoundsKey {
	k := bi.nextKey
	bi.nextKey++
	return k
}

func (bi *Info) insertProgramVar(k BoundsKey, pv *ProgramVar) {
	pv.Key = k
	bi.vars[k] = pv
}

// Var returns the ProgramVar behind k. It panics when k was never
// registered, which indicates a caller bug.
func (bi *Info) Var(k BoundsKey) *ProgramVar {
	pv := bi.vars[k]
	if pv == nil {
		panic(fmt.Sprintf("no program variable registered for key %d", k))
	}
	return pv
}

func (bi *Info) tryVar(k BoundsKey) *ProgramVar {
	return bi.vars[k]
}

// SameProgramVar reports whether a and b denote the same program entity.
func (bi *Info) SameProgramVar(a, b BoundsKey) bool {
	if a == b {
		return true
	}
	va, vb := bi.vars[a], bi.vars[b]
	return va != nil && vb != nil && va.Name == vb.Name && va.Scope == vb.Scope && va.Kind == vb.Kind
}

// IsValidBoundDecl reports whether d can structurally carry a bounds key.
// Constants and temporaries are minted through ConstKey and TempKey, never
// registered as declarations, and locals need a name to be addressable in
// a bound.
func IsValidBoundDecl(d Decl) bool {
	switch d.Kind {
	case KindParam, KindReturn:
		return true
	case KindLocal, KindField:
		return d.Name != ""
	default:
		return false
	}
}

func (bi *Info) scopeOf(d Decl) Scope {
	switch d.Kind {
	case KindField:
		return StructScope(d.Struct)
	case KindParam, KindReturn:
		return FunctionScope(d.Function, d.File)
	case KindLocal:
		if d.Function == "" {
			return GlobalScope()
		}
		return FunctionScope(d.Function, d.File)
	default:
		panic(fmt.Sprintf("unhandled declaration kind %s", d.Kind))
	}
}

// InsertVariable registers d and returns its key, allocating one on first
// sight. Registering a declaration that cannot carry a bounds key is a
// fatal usage error.
func (bi *Info) InsertVariable(d Decl) BoundsKey {
	if !IsValidBoundDecl(d) {
		panic(fmt.Sprintf("declaration %q of kind %s cannot carry a bounds key", d.Name, d.Kind))
	}
	if k, ok := bi.lookupDecl(d); ok {
		return k
	}
	k := bi.nextBoundsKey()
	bi.insertProgramVar(k, &ProgramVar{
		Name:    d.Name,
		Scope:   bi.scopeOf(d),
		Kind:    d.Kind,
		Numeric: d.Numeric,
	})
	switch d.Kind {
	case KindParam:
		pk := paramKey{d.Function, d.File, d.Index}
		bi.paramKeys[pk] = k
		bi.keyParams[k] = pk
	case KindReturn:
		fk := funcKey{d.Function, d.File}
		bi.funcKeys[fk] = k
		bi.keyFuncs[k] = fk
	default:
		dk := declKey{d.File, d.Line, d.Col}
		bi.declKeys[dk] = k
		bi.keyDecls[k] = dk
	}
	debugf("registered %s as key %d", d.Name, k)
	return k
}

func (bi *Info) lookupDecl(d Decl) (BoundsKey, bool) {
	switch d.Kind {
	case KindParam:
		k, ok := bi.paramKeys[paramKey{d.Function, d.File, d.Index}]
		return k, ok
	case KindReturn:
		k, ok := bi.funcKeys[funcKey{d.Function, d.File}]
		return k, ok
	default:
		k, ok := bi.declKeys[declKey{d.File, d.Line, d.Col}]
		return k, ok
	}
}

// GetVariable returns the key for d, registering it if necessary. Like
// InsertVariable it is fatal on declarations that cannot carry a key; use
// TryGetVariable for the non-fatal variant.
func (bi *Info) GetVariable(d Decl) BoundsKey {
	return bi.InsertVariable(d)
}

// TryGetVariable returns the key already assigned to d, if any.
func (bi *Info) TryGetVariable(d Decl) (BoundsKey, bool) {
	if !IsValidBoundDecl(d) {
		return 0, false
	}
	return bi.lookupDecl(d)
}

// ConstKey interns the constant value v, returning the existing key when v
// was seen before.
func (bi *Info) ConstKey(v int64) BoundsKey {
	if k, ok := bi.constKeys[v]; ok {
		return k
	}
	k := bi.nextBoundsKey()
	bi.insertProgramVar(k, &ProgramVar{
		Name:     fmt.Sprintf("%d", v),
		Scope:    GlobalScope(),
		Kind:     KindConstant,
		Numeric:  true,
		Const:    true,
		ConstVal: v,
	})
	bi.constKeys[v] = k
	return k
}

// TempKey mints a fresh key with no backing declaration, for use during
// inference.
func (bi *Info) TempKey() BoundsKey {
	k := bi.nextBoundsKey()
	bi.insertProgramVar(k, &ProgramVar{
		Name:  fmt.Sprintf("$t%d", k),
		Scope: GlobalScope(),
		Kind:  KindTemp,
	})
	bi.tmpKeys.Insert(int(k))
	return k
}

// CtxSensKey returns the call-site specialization of base at callSite,
// minting it on first use. scope is the caller-side scope of the call
// site, so a call-site bound may name the caller's variables. The
// specialization is linked to its base key with context-sensitive edges so
// call-site bounds never pollute the plain flow graph, and it inherits the
// base's classifications so it takes part in inference itself.
func (bi *Info) CtxSensKey(callSite string, scope Scope, base BoundsKey) BoundsKey {
	ck := ctxKey{callSite, base}
	if k, ok := bi.ctxKeys[ck]; ok {
		return k
	}
	bpv := bi.Var(base)
	k := bi.nextBoundsKey()
	bi.insertProgramVar(k, &ProgramVar{
		Name:    bpv.Name,
		Scope:   scope,
		Kind:    bpv.Kind,
		Numeric: bpv.Numeric,
	})
	bi.ctxKeys[ck] = k
	for _, set := range [...]*intsets.Sparse{&bi.pointers, &bi.arrPointers, &bi.ntArrPointers, &bi.inProgram} {
		if set.Has(int(base)) {
			set.Insert(int(k))
		}
	}
	bi.graph.AddEdge(base, k, EdgeCtxSens)
	bi.graph.AddEdge(k, base, EdgeRevCtxSens)
	return k
}

// Classification.

// MarkPointer records that k is pointer-typed.
func (bi *Info) MarkPointer(k BoundsKey) {
	bi.pointers.Insert(int(k))
}

// MarkArrayPointer classifies k as an array pointer. A key already
// classified null-terminated keeps that classification; the two are
// mutually exclusive.
func (bi *Info) MarkArrayPointer(k BoundsKey) {
	bi.pointers.Insert(int(k))
	if !bi.ntArrPointers.Has(int(k)) {
		bi.arrPointers.Insert(int(k))
	}
}

// MarkNtArrayPointer classifies k as a null-terminated array pointer,
// displacing any plain array classification.
func (bi *Info) MarkNtArrayPointer(k BoundsKey) {
	bi.pointers.Insert(int(k))
	bi.arrPointers.Remove(int(k))
	bi.ntArrPointers.Insert(int(k))
}

// MarkInProgram records that k is declared in the unit being processed, as
// opposed to an external library signature.
func (bi *Info) MarkInProgram(k BoundsKey) {
	bi.inProgram.Insert(int(k))
}

// MarkImpossible classifies k as unable to ever carry a sound bound. The
// classification is terminal: any FlowInferred or Heuristics bounds are
// dropped and no later ones are accepted.
func (bi *Info) MarkImpossible(k BoundsKey) {
	bi.impossible.Insert(int(k))
	bi.RemoveBounds(k, FlowInferred)
	bi.RemoveBounds(k, Heuristics)
	bi.status[k] = StatusImpossible
}

// RecordArithmetic notes that pointer arithmetic is performed on k. A
// naive base-pointer bound is invalid for such keys.
func (bi *Info) RecordArithmetic(k BoundsKey) {
	bi.arith.Insert(int(k))
}

func (bi *Info) IsPointer(k BoundsKey) bool        { return bi.pointers.Has(int(k)) }
func (bi *Info) IsArrayPointer(k BoundsKey) bool   { return bi.arrPointers.Has(int(k)) }
func (bi *Info) IsNtArrayPointer(k BoundsKey) bool { return bi.ntArrPointers.Has(int(k)) }
func (bi *Info) HasImpossibleBounds(k BoundsKey) bool { return bi.impossible.Has(int(k)) }
func (bi *Info) IsInProgram(k BoundsKey) bool      { return bi.inProgram.Has(int(k)) }
func (bi *Info) HasPointerArithmetic(k BoundsKey) bool { return bi.arith.Has(int(k)) }

// IsFuncParam reports whether k is a function parameter and, if so, its
// index.
func (bi *Info) IsFuncParam(k BoundsKey) (int, bool) {
	pk, ok := bi.keyParams[k]
	return pk.index, ok
}

// IsFunctionReturn reports whether k is a function return value.
func (bi *Info) IsFunctionReturn(k BoundsKey) bool {
	_, ok := bi.keyFuncs[k]
	return ok
}

// InProgramArrPointers returns the set of array-like pointer keys declared
// in the program being processed.
func (bi *Info) InProgramArrPointers() *intsets.Sparse {
	var out intsets.Sparse
	out.Copy(&bi.arrPointers)
	out.UnionWith(&bi.ntArrPointers)
	out.IntersectionWith(&bi.inProgram)
	return &out
}

// Assignments.

// AddAssignment records that R's value may flow into L by inserting the
// edge R→L.
func (bi *Info) AddAssignment(l, r BoundsKey) {
	if l == r {
		return
	}
	bi.graph.AddEdge(r, l, EdgePlain)
}

// HandleAssignment records flow from every key resolved for the right-hand
// side into every key resolved for the left-hand side. The caller — the
// constraint-resolution layer — hands us the already-resolved key sets for
// both sides.
func (bi *Info) HandleAssignment(lks, rks []BoundsKey) {
	for _, l := range lks {
		for _, r := range rks {
			bi.AddAssignment(l, r)
		}
	}
}

// MergeKeys unifies two keys discovered to be aliases, redirecting all
// edges, bounds, classifications and registry entries from from to to, and
// discards from.
func (bi *Info) MergeKeys(to, from BoundsKey) {
	if to == from {
		return
	}
	bi.graph.MergeKeys(to, from)
	for _, p := range prioList {
		if b, ok := bi.BoundsAt(from, p); ok {
			if _, exists := bi.BoundsAt(to, p); !exists {
				bi.MergeBounds(to, p, b)
			}
		}
	}
	delete(bi.binfo, from)

	sets := []*intsets.Sparse{
		&bi.pointers, &bi.arrPointers, &bi.ntArrPointers,
		&bi.impossible, &bi.inProgram, &bi.arith, &bi.tmpKeys,
	}
	for _, set := range sets {
		if set.Remove(int(from)) {
			set.Insert(int(to))
		}
	}

	if dk, ok := bi.keyDecls[from]; ok {
		bi.declKeys[dk] = to
		delete(bi.keyDecls, from)
	}
	if pk, ok := bi.keyParams[from]; ok {
		bi.paramKeys[pk] = to
		delete(bi.keyParams, from)
	}
	if fk, ok := bi.keyFuncs[from]; ok {
		bi.funcKeys[fk] = to
		delete(bi.keyFuncs, from)
	}
	delete(bi.vars, from)
	delete(bi.status, from)
}

// Accessors for collaborators.

// Graph exposes the dependency graph, mainly for debugging dumps.
func (bi *Info) Graph() *VarGraph { return bi.graph }

// Potential exposes the potential-bounds tracker for the heuristic passes.
func (bi *Info) Potential() *PotentialBounds { return bi.potential }

// BStats returns the inference statistics.
func (bi *Info) BStats() *Stats { return &bi.stats }

// DumpAVarGraph writes the dependency graph in Graphviz format.
func (bi *Info) DumpAVarGraph(w io.Writer) error {
	return bi.graph.DumpDot(w, bi)
}

// PrintStats prints the per-heuristic stats restricted to in-program
// array pointers.
func (bi *Info) PrintStats(w io.Writer, jsonFormat bool) error {
	return bi.stats.Print(w, bi.InProgramArrPointers(), jsonFormat)
}

// FormatBound renders b using the names of the referenced program
// variables.
func (bi *Info) FormatBound(b Bound) string {
	name := func(k BoundsKey) string {
		if pv := bi.tryVar(k); pv != nil {
			return pv.Name
		}
		return fmt.Sprintf("k%d", k)
	}
	switch b.Kind {
	case CountBound:
		return fmt.Sprintf("count(%s)", name(b.K))
	case CountPlusOneBound:
		return fmt.Sprintf("count(%s + 1)", name(b.K))
	case ByteBound:
		return fmt.Sprintf("byte_count(%s)", name(b.K))
	case RangeBound:
		return fmt.Sprintf("bounds(%s, %s)", name(b.Lower), name(b.Upper))
	default:
		panic(fmt.Sprintf("unhandled bound kind %d", int(b.Kind)))
	}
}
