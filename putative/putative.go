// Package putative holds the pairwise feature correspondence table produced
// by descriptor matching.
//
// A correspondence is putative: it passed the distance ratio filter but has
// not been verified geometrically. Downstream stages (geometric filtering,
// incremental reconstruction) consume the table and prune it further.
package putative

import (
	"slices"

	"github.com/hupe1980/matchgo/pairs"
)

// IndMatch links a feature index in the pair's left view to a feature index
// in its right view.
type IndMatch struct {
	I uint32
	J uint32
}

// Matches maps every evaluated view pair to its correspondences. A pair that
// was evaluated but produced no correspondence keeps its entry with an empty
// list, so the table records which pairs were tried.
type Matches map[pairs.Pair][]IndMatch

// Pairs returns the evaluated pairs ordered by (I, J).
func (m Matches) Pairs() []pairs.Pair {
	out := make([]pairs.Pair, 0, len(m))
	for p := range m {
		out = append(out, p)
	}

	pairs.Sort(out)

	return out
}

// Count returns the total number of correspondences across all pairs.
func (m Matches) Count() int {
	var n int
	for _, ms := range m {
		n += len(ms)
	}

	return n
}

// Equal reports whether both tables hold the same pairs with the same
// correspondences in the same order. Empty and nil lists compare equal.
func (m Matches) Equal(other Matches) bool {
	if len(m) != len(other) {
		return false
	}

	for p, ms := range m {
		theirs, ok := other[p]
		if !ok || !slices.Equal(ms, theirs) {
			return false
		}
	}

	return true
}
