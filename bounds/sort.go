package bounds

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// sortedKeys returns m's keys in ascending order. Iterating maps in key
// order keeps inference deterministic, which is a correctness requirement
// for the tie-breaking rules.
func sortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
