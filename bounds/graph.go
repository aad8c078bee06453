package bounds

import (
	"fmt"
	"io"
	"slices"

	"golang.org/x/tools/container/intsets"
)

// EdgeKind labels the edges of the variable dependency graph. Instead of
// keeping three separate graphs for plain flow, context-sensitive
// specialization and its reverse, we keep a single graph with labeled edges
// and let queries select a label.
type EdgeKind uint8

const (
	// EdgePlain records ordinary value flow from assignments.
	EdgePlain EdgeKind = 1 << iota
	// EdgeCtxSens connects a base key to its call-site specialization.
	EdgeCtxSens
	// EdgeRevCtxSens connects a call-site specialization back to its base
	// key.
	EdgeRevCtxSens
)

func (e EdgeKind) is(o EdgeKind) bool {
	return e&o != 0
}

// VarGraph is the directed graph over bounds keys. An edge from R to L
// means a value can flow from R to L, so R's bound may determine L's.
type VarGraph struct {
	succs map[BoundsKey]map[BoundsKey]EdgeKind
	preds map[BoundsKey]map[BoundsKey]EdgeKind
}

func newVarGraph() *VarGraph {
	return &VarGraph{
		succs: map[BoundsKey]map[BoundsKey]EdgeKind{},
		preds: map[BoundsKey]map[BoundsKey]EdgeKind{},
	}
}

// AddEdge inserts an edge from from to to with the given label, merging
// labels if the edge already exists.
func (g *VarGraph) AddEdge(from, to BoundsKey, kind EdgeKind) {
	if from == 0 || to == 0 {
		panic("AddEdge called with the zero bounds key")
	}
	if g.succs[from] == nil {
		g.succs[from] = map[BoundsKey]EdgeKind{}
	}
	if g.preds[to] == nil {
		g.preds[to] = map[BoundsKey]EdgeKind{}
	}
	g.succs[from][to] |= kind
	g.preds[to][from] |= kind
}

func collectEdges(m map[BoundsKey]EdgeKind, kind EdgeKind) []BoundsKey {
	var out []BoundsKey
	for k, e := range m {
		if e.is(kind) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Succs returns the successors of k under the given edge label, in key
// order.
func (g *VarGraph) Succs(k BoundsKey, kind EdgeKind) []BoundsKey {
	return collectEdges(g.succs[k], kind)
}

// Preds returns the predecessors of k under the given edge label, in key
// order.
func (g *VarGraph) Preds(k BoundsKey, kind EdgeKind) []BoundsKey {
	return collectEdges(g.preds[k], kind)
}

// Neighbours returns the union of predecessors and successors of k under
// the given edge label, in key order. These are k's assignment partners.
func (g *VarGraph) Neighbours(k BoundsKey, kind EdgeKind) []BoundsKey {
	var set intsets.Sparse
	for n, e := range g.preds[k] {
		if e.is(kind) {
			set.Insert(int(n))
		}
	}
	for n, e := range g.succs[k] {
		if e.is(kind) {
			set.Insert(int(n))
		}
	}
	return appendKeys(nil, &set)
}

// Connected computes the set of keys transitively connected to from by
// edges with the given label, ignoring edge direction. The result includes
// from itself.
func (g *VarGraph) Connected(from BoundsKey, kind EdgeKind) *intsets.Sparse {
	var seen intsets.Sparse
	work := []BoundsKey{from}
	seen.Insert(int(from))
	for len(work) > 0 {
		k := work[len(work)-1]
		work = work[:len(work)-1]
		for _, n := range g.Neighbours(k, kind) {
			if seen.Insert(int(n)) {
				work = append(work, n)
			}
		}
	}
	return &seen
}

// MergeKeys redirects every edge incident to from onto to and removes from
// from the graph. Used when two keys are discovered to be aliases.
func (g *VarGraph) MergeKeys(to, from BoundsKey) {
	if to == from {
		return
	}
	for succ, e := range g.succs[from] {
		delete(g.preds[succ], from)
		if succ != to {
			g.AddEdge(to, succ, e)
		}
	}
	for pred, e := range g.preds[from] {
		delete(g.succs[pred], from)
		if pred != to {
			g.AddEdge(pred, to, e)
		}
	}
	delete(g.succs, from)
	delete(g.preds, from)
}

// appendKeys appends the contents of set to keys in ascending order, which
// for bounds keys is registration order.
func appendKeys(keys []BoundsKey, set *intsets.Sparse) []BoundsKey {
	var scratch []int
	for _, v := range set.AppendTo(scratch) {
		keys = append(keys, BoundsKey(v))
	}
	return keys
}

// DumpDot writes the graph in Graphviz format. Plain edges are solid,
// context-sensitive edges dashed, reverse context-sensitive edges dotted.
func (g *VarGraph) DumpDot(w io.Writer, bi *Info) error {
	if _, err := fmt.Fprintln(w, "digraph{"); err != nil {
		return err
	}
	var nodes []BoundsKey
	for k := range g.succs {
		nodes = append(nodes, k)
	}
	for k := range g.preds {
		if _, ok := g.succs[k]; !ok {
			nodes = append(nodes, k)
		}
	}
	slices.Sort(nodes)
	for _, k := range nodes {
		label := fmt.Sprintf("k%d", k)
		if pv := bi.tryVar(k); pv != nil {
			label = pv.String()
		}
		shape := "oval"
		if bi.IsPointer(k) {
			shape = "box"
		}
		fmt.Fprintf(w, "n%d [shape=%q, label=%q]\n", k, shape, label)
	}
	styles := []struct {
		kind  EdgeKind
		style string
	}{
		{EdgePlain, "solid"},
		{EdgeCtxSens, "dashed"},
		{EdgeRevCtxSens, "dotted"},
	}
	for _, from := range nodes {
		for _, st := range styles {
			for _, to := range g.Succs(from, st.kind) {
				fmt.Fprintf(w, "n%d -> n%d [style=%q]\n", from, to, st.style)
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
