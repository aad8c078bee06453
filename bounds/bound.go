// Package bounds infers array bounds for C pointers. Given the variables of
// a program, the assignment edges between them, and a handful of seeded
// facts (declared annotations, allocation sites, naming heuristics), it
// computes for every array-like pointer a bound expression describing how
// many elements the pointer validly points to.
//
// All state for one analysis run is owned by an Info. Registration of
// variables and edges happens in a single linear pass over the program;
// PerformFlowAnalysis then runs a deterministic worklist fixed point over
// the variable dependency graph.
package bounds

import "fmt"

// BoundKind is the shape of a bound expression.
type BoundKind int

const (
	// CountBound is count(k): the pointer points to k elements.
	CountBound BoundKind = iota
	// CountPlusOneBound is count(k + 1), used for null-terminated arrays
	// whose length variable excludes the terminator.
	CountPlusOneBound
	// ByteBound is byte_count(k).
	ByteBound
	// RangeBound is bounds(lower, upper).
	RangeBound
)

func (k BoundKind) String() string {
	switch k {
	case CountBound:
		return "count"
	case CountPlusOneBound:
		return "count+1"
	case ByteBound:
		return "byte_count"
	case RangeBound:
		return "range"
	default:
		panic(fmt.Sprintf("unhandled bound kind %d", int(k)))
	}
}

// A Bound describes a pointer's valid extent in terms of other bounds keys.
// Bounds are plain values; two bounds are the same iff their kind and
// referenced keys are equal.
type Bound struct {
	Kind BoundKind
	// K is the length key for count, count+1 and byte_count bounds.
	K BoundsKey
	// Lower and Upper delimit range bounds.
	Lower, Upper BoundsKey
}

// CountOf returns the bound count(k).
func CountOf(k BoundsKey) Bound {
	return Bound{Kind: CountBound, K: k}
}

// CountPlusOneOf returns the bound count(k + 1).
func CountPlusOneOf(k BoundsKey) Bound {
	return Bound{Kind: CountPlusOneBound, K: k}
}

// ByteCountOf returns the bound byte_count(k).
func ByteCountOf(k BoundsKey) Bound {
	return Bound{Kind: ByteBound, K: k}
}

// RangeOf returns the bound bounds(lower, upper).
func RangeOf(lower, upper BoundsKey) Bound {
	return Bound{Kind: RangeBound, Lower: lower, Upper: upper}
}

// Priority ranks the sources a bound can come from. When a key holds bounds
// at several tiers, the bound at the highest tier (lowest Priority value)
// is the effective one.
type Priority int

const (
	// Declared bounds were written by the user.
	Declared Priority = iota + 1
	// Allocator bounds come from allocation sites.
	Allocator
	// FlowInferred bounds come from dataflow propagation.
	FlowInferred
	// Heuristics bounds come from naming heuristics.
	Heuristics
	// InvalidPriority is the "no priority" sentinel; passing it where a
	// specific tier is expected selects all tiers.
	InvalidPriority
)

// prioList lists the real tiers in descending order of priority.
var prioList = [...]Priority{Declared, Allocator, FlowInferred, Heuristics}

func (p Priority) String() string {
	switch p {
	case Declared:
		return "declared"
	case Allocator:
		return "allocator"
	case FlowInferred:
		return "flow"
	case Heuristics:
		return "heuristics"
	case InvalidPriority:
		return "invalid"
	default:
		panic(fmt.Sprintf("unhandled priority %d", int(p)))
	}
}
