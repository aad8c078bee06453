package frontend

import (
	"slices"
	"strings"

	"github.com/c2safe/arrbounds/bounds"
)

// Finish runs the naming heuristics over everything registered so far and
// records their candidates in the potential-bounds tracker. Call it once,
// after all files are processed and before Info.PerformFlowAnalysis.
//
// The heuristics are advisory: they only matter for pointers the graph
// passes leave unbounded, and the engine re-checks scope visibility before
// using any candidate.
func (fe *Frontend) Finish() {
	for _, name := range sortedStrings(fe.funcs) {
		fe.runFunctionHeuristics(fe.funcs[name])
	}
	fe.runNameHeuristics(fe.globals, nil)
	for _, structName := range sortedStrings(fe.structs) {
		fe.runNameHeuristics(fe.structs[structName], nil)
	}
}

func (fe *Frontend) runFunctionHeuristics(fi *funcInfo) {
	// A pointer parameter followed by a scalar parameter very often means
	// "buffer and its length".
	if fe.cfg.Heuristics.NeighbourParams {
		for i, pk := range fi.params {
			if !fe.isArrayLike(pk) {
				continue
			}
			if i+1 < len(fi.params) && fi.paramNumeric[i+1] {
				fe.bi.Potential().AddCount(pk, []bounds.BoundsKey{fi.params[i+1]}, bounds.HeuristicNeighbourParam)
			}
		}
	}
	fe.runNameHeuristics(fi.symtab, fe.globals)
}

// isArrayLike reports whether k is a pointer worth finding a length for.
func (fe *Frontend) isArrayLike(k bounds.BoundsKey) bool {
	return (fe.bi.IsArrayPointer(k) || fe.bi.IsNtArrayPointer(k)) && !fe.bi.HasImpossibleBounds(k)
}

// runNameHeuristics scans one name table (plus an optional outer table)
// for length companions of each array pointer in it.
func (fe *Frontend) runNameHeuristics(scope, outer map[string]bounds.BoundsKey) {
	for _, ptrName := range sortedStrings(scope) {
		pk := scope[ptrName]
		if !fe.isArrayLike(pk) {
			continue
		}
		fe.scanCandidates(pk, ptrName, scope)
		if outer != nil {
			fe.scanCandidates(pk, ptrName, outer)
		}
	}
}

func (fe *Frontend) scanCandidates(pk bounds.BoundsKey, ptrName string, table map[string]bounds.BoundsKey) {
	for _, candName := range sortedStrings(table) {
		ck := table[candName]
		if ck == pk || !fe.bi.Var(ck).Numeric {
			continue
		}
		if fe.matchesPrefix(ptrName, candName) {
			fe.bi.Potential().AddCount(pk, []bounds.BoundsKey{ck}, bounds.HeuristicNamePrefix)
			continue
		}
		if slices.Contains(fe.cfg.Heuristics.SizeWords, strings.ToLower(candName)) {
			fe.bi.Potential().AddCount(pk, []bounds.BoundsKey{ck}, bounds.HeuristicVariableName)
		}
	}
}

// matchesPrefix reports whether candName is ptrName plus one of the
// configured length suffixes, e.g. buf and buf_len.
func (fe *Frontend) matchesPrefix(ptrName, candName string) bool {
	lower := strings.ToLower(candName)
	base := strings.ToLower(ptrName)
	rest, ok := strings.CutPrefix(lower, base)
	if !ok || rest == "" {
		return false
	}
	return slices.Contains(fe.cfg.Heuristics.PrefixSuffixes, rest)
}
