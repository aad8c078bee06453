package bounds

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/tools/container/intsets"
)

// Stats records which technique explained each key's bound. It exists for
// observability only and never influences inference.
type Stats struct {
	// Bounds found via variables sharing the array variable's name prefix.
	NamePrefixMatch intsets.Sparse
	// Bounds found at allocation sites.
	AllocatorMatch intsets.Sparse
	// Bounds found via size-related variable names.
	VariableNameMatch intsets.Sparse
	// Bounds found via the scalar parameter next to a pointer parameter.
	NeighbourParamMatch intsets.Sparse
	// Bounds found by dataflow propagation.
	DataflowMatch intsets.Sparse
	// Keys whose bounds were declared by the user.
	DeclaredBounds intsets.Sparse
	// Keys with declared bounds that inference could not handle.
	DeclaredButNotHandled intsets.Sparse
}

func (s *Stats) IsDataflowMatch(k BoundsKey) bool      { return s.DataflowMatch.Has(int(k)) }
func (s *Stats) IsNamePrefixMatch(k BoundsKey) bool    { return s.NamePrefixMatch.Has(int(k)) }
func (s *Stats) IsAllocatorMatch(k BoundsKey) bool     { return s.AllocatorMatch.Has(int(k)) }
func (s *Stats) IsVariableNameMatch(k BoundsKey) bool  { return s.VariableNameMatch.Has(int(k)) }
func (s *Stats) IsNeighbourParamMatch(k BoundsKey) bool { return s.NeighbourParamMatch.Has(int(k)) }

// recordHeuristic files k under the stat set matching the heuristic that
// supplied its bound.
func (s *Stats) recordHeuristic(k BoundsKey, h Heuristic) {
	switch h {
	case HeuristicNamePrefix:
		s.NamePrefixMatch.Insert(int(k))
	case HeuristicVariableName:
		s.VariableNameMatch.Insert(int(k))
	case HeuristicNeighbourParam:
		s.NeighbourParamMatch.Insert(int(k))
	case HeuristicNone:
		s.DataflowMatch.Insert(int(k))
	default:
		panic(fmt.Sprintf("unhandled heuristic %d", int(h)))
	}
}

func restrict(set *intsets.Sparse, to *intsets.Sparse) []int {
	var tmp intsets.Sparse
	tmp.Copy(set)
	if to != nil {
		tmp.IntersectionWith(to)
	}
	return tmp.AppendTo(nil)
}

// statCounts is the JSON shape of the stats summary.
type statCounts struct {
	NamePrefix            []int `json:"name_prefix"`
	Allocator             []int `json:"allocator"`
	VariableName          []int `json:"variable_name"`
	NeighbourParam        []int `json:"neighbour_param"`
	Dataflow              []int `json:"dataflow"`
	Declared              []int `json:"declared"`
	DeclaredButNotHandled []int `json:"declared_but_not_handled"`
}

// Print writes the stats, restricted to the keys in inSrcArrs when it is
// non-nil. With jsonFormat set, the output is one JSON object.
func (s *Stats) Print(w io.Writer, inSrcArrs *intsets.Sparse, jsonFormat bool) error {
	counts := statCounts{
		NamePrefix:            restrict(&s.NamePrefixMatch, inSrcArrs),
		Allocator:             restrict(&s.AllocatorMatch, inSrcArrs),
		VariableName:          restrict(&s.VariableNameMatch, inSrcArrs),
		NeighbourParam:        restrict(&s.NeighbourParamMatch, inSrcArrs),
		Dataflow:              restrict(&s.DataflowMatch, inSrcArrs),
		Declared:              restrict(&s.DeclaredBounds, inSrcArrs),
		DeclaredButNotHandled: restrict(&s.DeclaredButNotHandled, inSrcArrs),
	}
	if jsonFormat {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	rows := []struct {
		name string
		keys []int
	}{
		{"name prefix", counts.NamePrefix},
		{"allocator", counts.Allocator},
		{"variable name", counts.VariableName},
		{"neighbour param", counts.NeighbourParam},
		{"dataflow", counts.Dataflow},
		{"declared", counts.Declared},
		{"declared but not handled", counts.DeclaredButNotHandled},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s: %d %v\n", row.name, len(row.keys), row.keys); err != nil {
			return err
		}
	}
	return nil
}
