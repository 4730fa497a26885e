package export

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/matchgo/putative"
)

// Stats summarizes the structure of the putative match graph.
type Stats struct {
	// Nodes is the number of views.
	Nodes int

	// Edges is the number of pairs with at least one correspondence.
	Edges int

	// MatchedViews is the number of views on at least one edge.
	MatchedViews int

	// IsolatedViews is the number of views on no edge.
	IsolatedViews int

	// Components is the number of connected components, isolated views
	// counted as singletons.
	Components int

	// LargestComponent is the view count of the biggest component.
	LargestComponent int
}

// ComputeStats summarizes the match graph spanned by the table over the
// given views.
func ComputeStats(viewIDs []uint32, m putative.Matches) Stats {
	nodes := roaring.New()
	for _, id := range viewIDs {
		nodes.Add(id)
	}

	adjacency := make(map[uint32]*roaring.Bitmap)
	matched := roaring.New()

	edges := 0

	for p, ms := range m {
		if len(ms) == 0 {
			continue
		}

		edges++

		nodes.Add(p.I)
		nodes.Add(p.J)
		matched.Add(p.I)
		matched.Add(p.J)

		addEdge(adjacency, p.I, p.J)
		addEdge(adjacency, p.J, p.I)
	}

	s := Stats{
		Nodes:        int(nodes.GetCardinality()),
		Edges:        edges,
		MatchedViews: int(matched.GetCardinality()),
	}
	s.IsolatedViews = s.Nodes - s.MatchedViews

	visited := roaring.New()

	it := nodes.Iterator()
	for it.HasNext() {
		id := it.Next()
		if visited.Contains(id) {
			continue
		}

		size := componentSize(adjacency, visited, id)

		s.Components++
		if size > s.LargestComponent {
			s.LargestComponent = size
		}
	}

	return s
}

func addEdge(adjacency map[uint32]*roaring.Bitmap, from, to uint32) {
	b, ok := adjacency[from]
	if !ok {
		b = roaring.New()
		adjacency[from] = b
	}

	b.Add(to)
}

// componentSize walks one connected component depth-first and returns how
// many views it spans.
func componentSize(adjacency map[uint32]*roaring.Bitmap, visited *roaring.Bitmap, start uint32) int {
	stack := []uint32{start}
	visited.Add(start)

	size := 0

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		size++

		neighbors, ok := adjacency[cur]
		if !ok {
			continue
		}

		nit := neighbors.Iterator()
		for nit.HasNext() {
			next := nit.Next()
			if visited.Contains(next) {
				continue
			}

			visited.Add(next)
			stack = append(stack, next)
		}
	}

	return size
}
