package bounds

// Heuristic identifies the naming heuristic that proposed a potential
// bound.
type Heuristic int

const (
	HeuristicNone Heuristic = iota
	// HeuristicNamePrefix matched a variable sharing the pointer's name
	// prefix, e.g. buf and buf_len.
	HeuristicNamePrefix
	// HeuristicVariableName matched a variable with a size-related name,
	// e.g. len, size, count.
	HeuristicVariableName
	// HeuristicNeighbourParam matched the scalar parameter declared right
	// after a pointer parameter.
	HeuristicNeighbourParam
)

// PotentialBounds records, per pointer key, the candidate keys that could
// serve as its count or count+1 bound. The sets are advisory and
// append-only; the engine consults them only when graph inference alone is
// inconclusive.
type PotentialBounds struct {
	count map[BoundsKey]map[BoundsKey]Heuristic
	pOne  map[BoundsKey]map[BoundsKey]Heuristic
}

func newPotentialBounds() *PotentialBounds {
	return &PotentialBounds{
		count: map[BoundsKey]map[BoundsKey]Heuristic{},
		pOne:  map[BoundsKey]map[BoundsKey]Heuristic{},
	}
}

func addPotential(m map[BoundsKey]map[BoundsKey]Heuristic, ptr BoundsKey, cands []BoundsKey, h Heuristic) {
	if len(cands) == 0 {
		return
	}
	set := m[ptr]
	if set == nil {
		set = map[BoundsKey]Heuristic{}
		m[ptr] = set
	}
	for _, c := range cands {
		// First heuristic to propose a candidate keeps the credit.
		if _, ok := set[c]; !ok {
			set[c] = h
		}
	}
}

// AddCount unions cands into the potential count-bound candidates of ptr.
func (pb *PotentialBounds) AddCount(ptr BoundsKey, cands []BoundsKey, h Heuristic) {
	addPotential(pb.count, ptr, cands, h)
}

// AddCountPlusOne unions cands into the potential count+1 candidates of
// ptr.
func (pb *PotentialBounds) AddCountPlusOne(ptr BoundsKey, cands []BoundsKey, h Heuristic) {
	addPotential(pb.pOne, ptr, cands, h)
}

// HasCount reports whether ptr has any potential count-bound candidate.
func (pb *PotentialBounds) HasCount(ptr BoundsKey) bool {
	return len(pb.count[ptr]) > 0
}

// HasCountPlusOne reports whether ptr has any potential count+1 candidate.
func (pb *PotentialBounds) HasCountPlusOne(ptr BoundsKey) bool {
	return len(pb.pOne[ptr]) > 0
}

// CountCandidates returns ptr's potential count-bound candidates in key
// order.
func (pb *PotentialBounds) CountCandidates(ptr BoundsKey) []BoundsKey {
	return sortedKeys(pb.count[ptr])
}

// CountPlusOneCandidates returns ptr's potential count+1 candidates in key
// order.
func (pb *PotentialBounds) CountPlusOneCandidates(ptr BoundsKey) []BoundsKey {
	return sortedKeys(pb.pOne[ptr])
}

// HeuristicFor returns the heuristic that proposed cand as a bound for ptr,
// or HeuristicNone.
func (pb *PotentialBounds) HeuristicFor(ptr, cand BoundsKey) Heuristic {
	if h, ok := pb.count[ptr][cand]; ok {
		return h
	}
	if h, ok := pb.pOne[ptr][cand]; ok {
		return h
	}
	return HeuristicNone
}
