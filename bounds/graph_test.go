package bounds

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGraphEdges(t *testing.T) {
	g := newVarGraph()
	g.AddEdge(1, 2, EdgePlain)
	g.AddEdge(1, 3, EdgePlain)
	g.AddEdge(4, 2, EdgeCtxSens)

	if diff := cmp.Diff([]BoundsKey{2, 3}, g.Succs(1, EdgePlain)); diff != "" {
		t.Errorf("succs of 1 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{1}, g.Preds(2, EdgePlain)); diff != "" {
		t.Errorf("plain preds of 2 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{4}, g.Preds(2, EdgeCtxSens)); diff != "" {
		t.Errorf("ctx preds of 2 (-want +got):\n%s", diff)
	}
	// Labels merge on repeated insertion.
	g.AddEdge(1, 2, EdgeCtxSens)
	if diff := cmp.Diff([]BoundsKey{1, 4}, g.Preds(2, EdgeCtxSens)); diff != "" {
		t.Errorf("ctx preds after label merge (-want +got):\n%s", diff)
	}
}

func TestGraphNeighbours(t *testing.T) {
	g := newVarGraph()
	g.AddEdge(2, 1, EdgePlain)
	g.AddEdge(1, 3, EdgePlain)
	g.AddEdge(1, 4, EdgeCtxSens)

	if diff := cmp.Diff([]BoundsKey{2, 3}, g.Neighbours(1, EdgePlain)); diff != "" {
		t.Errorf("plain neighbours (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{4}, g.Neighbours(1, EdgeCtxSens)); diff != "" {
		t.Errorf("ctx neighbours (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{2, 3, 4}, g.Neighbours(1, EdgePlain|EdgeCtxSens)); diff != "" {
		t.Errorf("combined neighbours (-want +got):\n%s", diff)
	}
}

func TestGraphConnected(t *testing.T) {
	g := newVarGraph()
	// 1 -> 2 -> 3 plain, 3 -> 4 ctx, 5 isolated.
	g.AddEdge(1, 2, EdgePlain)
	g.AddEdge(2, 3, EdgePlain)
	g.AddEdge(3, 4, EdgeCtxSens)
	g.AddEdge(5, 6, EdgePlain)

	set := g.Connected(3, EdgePlain)
	for _, k := range []int{1, 2, 3} {
		if !set.Has(k) {
			t.Errorf("key %d missing from the plain component of 3", k)
		}
	}
	if set.Has(4) {
		t.Error("ctx-linked key reached over plain edges")
	}
	if set.Has(5) {
		t.Error("disconnected key reached")
	}
	if !g.Connected(3, EdgePlain|EdgeCtxSens).Has(4) {
		t.Error("ctx-linked key not reached with the ctx label enabled")
	}
}

func TestGraphMergeKeys(t *testing.T) {
	g := newVarGraph()
	g.AddEdge(1, 2, EdgePlain)
	g.AddEdge(2, 3, EdgeCtxSens)
	g.AddEdge(2, 4, EdgePlain)

	g.MergeKeys(5, 2)

	if diff := cmp.Diff([]BoundsKey{1}, g.Preds(5, EdgePlain)); diff != "" {
		t.Errorf("preds not redirected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{3}, g.Succs(5, EdgeCtxSens)); diff != "" {
		t.Errorf("ctx succs not redirected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]BoundsKey{4}, g.Succs(5, EdgePlain)); diff != "" {
		t.Errorf("plain succs not redirected (-want +got):\n%s", diff)
	}
	if len(g.Neighbours(2, EdgePlain|EdgeCtxSens|EdgeRevCtxSens)) != 0 {
		t.Error("merged-away key still has edges")
	}
	// Self-edges are dropped rather than created.
	g.AddEdge(6, 7, EdgePlain)
	g.MergeKeys(6, 7)
	if len(g.Succs(6, EdgePlain)) != 0 {
		t.Error("merge created a self edge")
	}
}

func TestGraphAddEdgePanicsOnZeroKey(t *testing.T) {
	g := newVarGraph()
	defer func() {
		if recover() == nil {
			t.Fatal("AddEdge with key zero did not panic")
		}
	}()
	g.AddEdge(0, 1, EdgePlain)
}
