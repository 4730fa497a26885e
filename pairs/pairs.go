// Package pairs represents the set of view pairs the matcher evaluates.
//
// Pair lists are produced upstream (exhaustive, spatial, or retrieval-based
// pair selection) and stored as text: one line per source view, the first
// token the source id, every following token a destination id. Pairs are
// unordered: (I, J) and (J, I) name the same pair and are normalized so
// I < J. A valid list forms a simple graph over the catalog's views: no
// self loops, no duplicates, every id below the view count.
package pairs

import (
	"cmp"
	"slices"
)

// Pair is an unordered pair of distinct view ids, normalized so I < J.
type Pair struct {
	I uint32
	J uint32
}

// New returns the normalized pair of two view ids.
func New(a, b uint32) Pair {
	if a > b {
		a, b = b, a
	}

	return Pair{I: a, J: b}
}

// Sort orders pairs in place by (I, J).
func Sort(ps []Pair) {
	slices.SortFunc(ps, func(a, b Pair) int {
		if c := cmp.Compare(a.I, b.I); c != 0 {
			return c
		}

		return cmp.Compare(a.J, b.J)
	})
}

// Set is a duplicate-free collection of pairs.
type Set map[Pair]struct{}

// NewSet creates a set holding the given pairs.
func NewSet(ps ...Pair) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s.Add(p)
	}

	return s
}

// Add inserts a pair into the set.
func (s Set) Add(p Pair) { s[p] = struct{}{} }

// Contains reports whether the set holds p.
func (s Set) Contains(p Pair) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of pairs.
func (s Set) Len() int { return len(s) }

// Sorted returns the pairs ordered by (I, J) for deterministic iteration.
func (s Set) Sorted() []Pair {
	out := make([]Pair, 0, len(s))
	for p := range s {
		out = append(out, p)
	}

	Sort(out)

	return out
}

// ViewIDs returns the distinct view ids the set references, ascending.
func (s Set) ViewIDs() []uint32 {
	seen := make(map[uint32]struct{}, 2*len(s))
	for p := range s {
		seen[p.I] = struct{}{}
		seen[p.J] = struct{}{}
	}

	out := make([]uint32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}
