package bounds

import (
	"encoding/json"
	"strings"
	"testing"

	"golang.org/x/tools/container/intsets"

	"github.com/google/go-cmp/cmp"
)

func TestStatsPrintJSON(t *testing.T) {
	var s Stats
	s.AllocatorMatch.Insert(3)
	s.AllocatorMatch.Insert(7)
	s.DataflowMatch.Insert(5)
	s.DeclaredBounds.Insert(9)

	// Restrict to keys 3 and 5; key 7 and 9 are filtered out.
	var in intsets.Sparse
	in.Insert(3)
	in.Insert(5)

	var sb strings.Builder
	if err := s.Print(&sb, &in, true); err != nil {
		t.Fatal(err)
	}
	var got statCounts
	if err := json.Unmarshal([]byte(sb.String()), &got); err != nil {
		t.Fatalf("stats output is not valid JSON: %v\n%s", err, sb.String())
	}
	want := statCounts{
		Allocator: []int{3},
		Dataflow:  []int{5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("restricted stats (-want +got):\n%s", diff)
	}
}

func TestStatsPrintText(t *testing.T) {
	var s Stats
	s.NeighbourParamMatch.Insert(4)

	var sb strings.Builder
	if err := s.Print(&sb, nil, false); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "neighbour param: 1 [4]") {
		t.Fatalf("unexpected text output:\n%s", out)
	}
}

func TestRecordHeuristic(t *testing.T) {
	var s Stats
	s.recordHeuristic(1, HeuristicNamePrefix)
	s.recordHeuristic(2, HeuristicVariableName)
	s.recordHeuristic(3, HeuristicNeighbourParam)
	s.recordHeuristic(4, HeuristicNone)

	if !s.IsNamePrefixMatch(1) || !s.IsVariableNameMatch(2) || !s.IsNeighbourParamMatch(3) || !s.IsDataflowMatch(4) {
		t.Fatal("heuristics filed under the wrong stat sets")
	}
}
