package bounds

import (
	"fmt"

	"golang.org/x/tools/container/intsets"
)

// Status tracks where a key stands in bounds resolution.
type Status int

const (
	StatusNoBoundNeeded Status = iota
	StatusNeedsBound
	StatusCandidateFound
	StatusConverged
	// StatusImpossible is terminal; a key never leaves it.
	StatusImpossible
)

func (s Status) String() string {
	switch s {
	case StatusNoBoundNeeded:
		return "no bound needed"
	case StatusNeedsBound:
		return "needs bound"
	case StatusCandidateFound:
		return "candidate found"
	case StatusConverged:
		return "converged"
	case StatusImpossible:
		return "impossible"
	default:
		panic(fmt.Sprintf("unhandled status %d", int(s)))
	}
}

// Status returns the bounds-resolution status of k.
func (bi *Info) Status(k BoundsKey) Status {
	return bi.status[k]
}

func (bi *Info) setStatus(k BoundsKey, s Status) {
	// Impossible and converged are terminal.
	switch bi.status[k] {
	case StatusImpossible:
		return
	case StatusConverged:
		if s != StatusImpossible {
			return
		}
	}
	bi.status[k] = s
}

// candidateVotes counts, per bound kind, how many neighbours proposed each
// candidate length key.
type candidateVotes map[BoundKind]map[BoundsKey]int

func (cv candidateVotes) add(kind BoundKind, k BoundsKey) {
	m := cv[kind]
	if m == nil {
		m = map[BoundsKey]int{}
		cv[kind] = m
	}
	m[k]++
}

func (cv candidateVotes) empty() bool {
	for _, m := range cv {
		if len(m) > 0 {
			return false
		}
	}
	return true
}

func equalVotes(a, b candidateVotes) bool {
	if len(a) != len(b) {
		return false
	}
	for kind, ma := range a {
		mb, ok := b[kind]
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, v := range ma {
			if mb[k] != v {
				return false
			}
		}
	}
	return true
}

// kindOrder ranks bound kinds for preferred-bound selection: a plain count
// beats a count+1, which beats a byte count.
var kindOrder = [...]BoundKind{CountBound, CountPlusOneBound, ByteBound}

// inference computes flow-based bounds for array pointers over one Info.
// It carries the per-pass candidate state and the per-iteration failure
// set.
type inference struct {
	bi *Info
	// curIter holds the candidates captured for each key during the
	// current pass.
	curIter map[BoundsKey]candidateVotes
	// viaPotential marks keys whose candidates came from the
	// potential-bounds tracker rather than the graph.
	viaPotential map[BoundsKey]bool
	// failed collects the keys that failed inference this pass.
	failed intsets.Sparse
}

func newInference(bi *Info) *inference {
	inf := &inference{bi: bi}
	inf.clearInferredBounds()
	return inf
}

// clearInferredBounds resets the per-pass inference state.
func (inf *inference) clearInferredBounds() {
	inf.curIter = map[BoundsKey]candidateVotes{}
	inf.viaPotential = map[BoundsKey]bool{}
	inf.failed.Clear()
}

// eligibleBoundVar reports whether c may appear as the length key of a
// bound: a constant or integer-typed variable that is not itself a pointer
// and not a synthetic temporary.
func (inf *inference) eligibleBoundVar(c BoundsKey) bool {
	pv := inf.bi.tryVar(c)
	if pv == nil || pv.Kind == KindTemp {
		return false
	}
	if !pv.Const && !pv.Numeric {
		return false
	}
	return !inf.bi.IsPointer(c) && !inf.bi.HasImpossibleBounds(c)
}

// reachableBoundKeys returns the keys flow-connected to src that are
// eligible bound variables visible in dst. When src itself qualifies, it is
// the sole result — the closer provider wins.
func (inf *inference) reachableBoundKeys(dst Scope, src BoundsKey, kind EdgeKind) []BoundsKey {
	if inf.eligibleBoundVar(src) && inf.bi.Var(src).Scope.VisibleFrom(dst) {
		return []BoundsKey{src}
	}
	var out []BoundsKey
	set := inf.bi.graph.Connected(src, EdgePlain|kind)
	for _, c := range appendKeys(nil, set) {
		if c == src {
			continue
		}
		if inf.eligibleBoundVar(c) && inf.bi.Var(c).Scope.VisibleFrom(dst) {
			out = append(out, c)
		}
	}
	return out
}

// relevantBounds gathers everything known or predicted about n's bound: the
// effective bound from the store plus the candidates captured for n during
// this pass.
func (inf *inference) relevantBounds(n BoundsKey) map[BoundKind][]BoundsKey {
	out := map[BoundKind][]BoundsKey{}
	if b, _, ok := inf.bi.GetBounds(n); ok {
		switch b.Kind {
		case CountBound, CountPlusOneBound, ByteBound:
			out[b.Kind] = append(out[b.Kind], b.K)
		case RangeBound:
			// A range bound names no single length variable; it does not
			// propagate across assignments.
		default:
			panic(fmt.Sprintf("unhandled bound kind %d", int(b.Kind)))
		}
	}
	for _, bk := range sortedKeys(inf.curIter[n]) {
		out[bk] = append(out[bk], sortedKeys(inf.curIter[n][bk])...)
	}
	return out
}

// predictBounds derives candidates for dst from the bounds of its
// neighbours: if a neighbour flows into dst unchanged and its count bound
// is C, then C (or a flow-equal variable visible at dst) is a candidate for
// dst too. Each neighbour votes at most once per kind and candidate.
func (inf *inference) predictBounds(dst BoundsKey, neighbours []BoundsKey, kind EdgeKind) candidateVotes {
	dstScope := inf.bi.Var(dst).Scope
	votes := candidateVotes{}
	for _, n := range neighbours {
		if n == dst {
			continue
		}
		nb := inf.relevantBounds(n)
		for _, bk := range sortedKeys(nb) {
			seen := map[BoundsKey]bool{}
			for _, src := range nb[bk] {
				for _, c := range inf.reachableBoundKeys(dstScope, src, kind) {
					if !seen[c] {
						seen[c] = true
						votes.add(bk, c)
					}
				}
			}
		}
	}
	return votes
}

// inferFromPotentialBounds falls back to the heuristic candidates recorded
// for k. Only candidates visible at k survive.
func (inf *inference) inferFromPotentialBounds(k BoundsKey, votes candidateVotes) {
	dstScope := inf.bi.Var(k).Scope
	for _, c := range inf.bi.potential.CountCandidates(k) {
		if inf.eligibleBoundVar(c) && inf.bi.Var(c).Scope.VisibleFrom(dstScope) {
			votes.add(CountBound, c)
		}
	}
	for _, c := range inf.bi.potential.CountPlusOneCandidates(k) {
		if inf.eligibleBoundVar(c) && inf.bi.Var(c).Scope.VisibleFrom(dstScope) {
			votes.add(CountPlusOneBound, c)
		}
	}
}

// inferBounds attempts to find bound candidates for k using the edges with
// the given label. With fromPB set, the potential-bounds tracker is
// consulted when the graph yields nothing. It reports whether the captured
// candidates for k changed.
func (inf *inference) inferBounds(k BoundsKey, kind EdgeKind, fromPB bool) bool {
	if inf.bi.HasImpossibleBounds(k) {
		return false
	}
	neighbours := inf.bi.graph.Neighbours(k, kind)
	votes := inf.predictBounds(k, neighbours, kind)
	if votes.empty() && fromPB {
		inf.inferFromPotentialBounds(k, votes)
		if !votes.empty() {
			inf.viaPotential[k] = true
		}
	}
	if votes.empty() {
		// A pointer that is perturbed by arithmetic and has no discoverable
		// length can never carry a sound bound.
		if inf.bi.HasPointerArithmetic(k) {
			inf.bi.MarkImpossible(k)
		}
		inf.failed.Insert(int(k))
		delete(inf.curIter, k)
		return false
	}
	if equalVotes(inf.curIter[k], votes) {
		return false
	}
	inf.curIter[k] = votes
	inf.bi.setStatus(k, StatusCandidateFound)
	return true
}

// preferredBound reduces captured candidates to one bound: the most
// preferred kind that has candidates, then the candidate with the most
// converging neighbours, with ties broken by earliest registration.
func preferredBound(votes candidateVotes) (Bound, bool) {
	for _, bk := range kindOrder {
		m := votes[bk]
		if len(m) == 0 {
			continue
		}
		best := BoundsKey(0)
		bestVotes := -1
		for _, c := range sortedKeys(m) {
			if m[c] > bestVotes {
				best, bestVotes = c, m[c]
			}
		}
		return Bound{Kind: bk, K: best}, true
	}
	return Bound{}, false
}

// convergeInferredBounds installs the preferred bound for every key with
// captured candidates at the FlowInferred tier. It reports whether the
// store changed.
func (inf *inference) convergeInferredBounds() bool {
	changed := false
	for _, k := range sortedKeys(inf.curIter) {
		b, ok := preferredBound(inf.curIter[k])
		if !ok {
			continue
		}
		if inf.bi.MergeBounds(k, FlowInferred, b) {
			changed = true
			if inf.viaPotential[k] {
				inf.bi.stats.recordHeuristic(k, inf.bi.potential.HeuristicFor(k, b.K))
			} else {
				inf.bi.stats.DataflowMatch.Insert(int(k))
			}
		}
	}
	return changed
}

// hasFlowOrHigherBound reports whether k holds a bound at the FlowInferred
// tier or above. Heuristics-tier guesses do not count; such keys still go
// through flow inference.
func (bi *Info) hasFlowOrHigherBound(k BoundsKey) bool {
	for _, p := range [...]Priority{Declared, Allocator, FlowInferred} {
		if _, ok := bi.binfo[k][p]; ok {
			return true
		}
	}
	return false
}

// boundsNeededArrPointers returns, in registration order, the in-program
// array pointers that still lack a FlowInferred-or-higher bound.
func (bi *Info) boundsNeededArrPointers() []BoundsKey {
	var out []BoundsKey
	for _, k := range appendKeys(nil, bi.InProgramArrPointers()) {
		if bi.impossible.Has(int(k)) {
			continue
		}
		if bi.hasFlowOrHigherBound(k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// performWorkListInference repeats inference over the needs-bound worklist
// until an iteration installs no new bound and no key changes tier. The
// worklist never grows: keys leave it by acquiring a bound or by becoming
// impossible, which guarantees termination.
func (bi *Info) performWorkListInference(kind EdgeKind, inf *inference, fromPB bool) {
	inf.clearInferredBounds()
	for {
		changed := false
		inf.failed.Clear()
		for _, k := range bi.boundsNeededArrPointers() {
			bi.setStatus(k, StatusNeedsBound)
			if inf.inferBounds(k, kind, fromPB) {
				changed = true
			}
		}
		if inf.convergeInferredBounds() {
			changed = true
		}
		if bi.KeepHighestPriorityBounds() {
			changed = true
		}
		if !changed {
			break
		}
	}
}

// PerformFlowAnalysis runs the whole inference pipeline: worklist
// propagation over the plain graph and both context-sensitive labelings,
// first graph-only, then with the potential-bounds fallback enabled for
// whatever remains unbounded. Keys that end without a bound are a normal
// outcome, surfaced through status and stats, never an error.
func (bi *Info) PerformFlowAnalysis() {
	inf := newInference(bi)
	for _, fromPB := range [...]bool{false, true} {
		bi.performWorkListInference(EdgePlain, inf, fromPB)
		bi.performWorkListInference(EdgeCtxSens, inf, fromPB)
		bi.performWorkListInference(EdgeRevCtxSens, inf, fromPB)
	}
	for _, k := range appendKeys(nil, bi.InProgramArrPointers()) {
		if bi.impossible.Has(int(k)) {
			continue
		}
		if _, _, ok := bi.GetBounds(k); ok {
			bi.setStatus(k, StatusConverged)
		}
	}
	bi.dumpBounds()
}
