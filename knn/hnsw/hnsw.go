// Package hnsw provides approximate nearest-neighbor search over scalar
// descriptors with a hierarchical navigable small world graph.
//
// The graph is built once from a fixed descriptor population and is read-only
// afterwards, so searches may run concurrently. Level assignment is driven by
// a seeded generator: the same descriptors and options always produce the
// same graph.
package hnsw

import (
	"math"
	"math/rand"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/matchgo/distance"
	"github.com/hupe1980/matchgo/knn"
	"github.com/hupe1980/matchgo/queue"
)

// Options represents the options for configuring the graph.
type Options struct {
	// M specifies the number of established connections for every new element
	// during construction. Higher M works better on datasets with high
	// intrinsic dimensionality and/or high recall, at the cost of memory and
	// construction time. The range 12-48 is ok for most use cases.
	M int

	// EFConstruction specifies the size of the dynamic candidate list during
	// construction. Larger values build a better graph, slower.
	EFConstruction int

	// EFSearch specifies the size of the dynamic candidate list during
	// search. Larger values improve recall at the cost of search time. It is
	// raised to k when a search asks for more neighbors.
	EFSearch int

	// Seed drives level assignment. Equal seeds build equal graphs.
	Seed int64
}

// DefaultOptions holds the defaults used by New.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       64,
	Seed:           1,
}

var _ knn.Finder = (*Graph)(nil)

type node struct {
	vector []float32
	level  int
	conns  [][]uint32 // one neighbor list per level, 0..level
}

// Graph is a hierarchical navigable small world graph over a fixed
// descriptor population.
type Graph struct {
	mmax     int     // max connections per node per layer
	mmax0    int     // max for the bottom layer
	ml       float64 // normalization factor for level generation
	ep       uint32  // entry point, a node on the top layer
	maxLevel int
	nodes    []node
	opts     Options
}

// New builds a graph over the given descriptors. The descriptor slices are
// referenced, not copied, and must not be mutated afterwards.
func New(descs [][]float32, optFns ...func(o *Options)) *Graph {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	// M < 2 would make ml a division by zero.
	if opts.M < 2 {
		opts.M = 2
	}

	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	g := &Graph{
		mmax:  opts.M,
		mmax0: 2 * opts.M,
		ml:    1 / math.Log(float64(opts.M)),
		nodes: make([]node, 0, len(descs)),
		opts:  opts,
	}

	rng := rand.New(rand.NewSource(opts.Seed)) // nolint gosec

	for _, v := range descs {
		level := int(math.Floor(-math.Log(rng.Float64()) * g.ml))
		g.insert(v, level)
	}

	return g
}

// Len returns the number of indexed descriptors.
func (g *Graph) Len() int { return len(g.nodes) }

// Search returns up to k approximate nearest neighbors, ascending by squared
// L2 distance.
func (g *Graph) Search(query []float32, k int) []knn.Neighbor {
	if k <= 0 || len(g.nodes) == 0 {
		return nil
	}

	// Greedy descent from the entry point down to layer 1.
	ep := g.ep
	epDist := distance.SquaredL2(query, g.nodes[ep].vector)

	for level := g.maxLevel; level > 0; level-- {
		changed := true
		for changed {
			changed = false

			for _, nb := range g.nodes[ep].conns[level] {
				if d := distance.SquaredL2(query, g.nodes[nb].vector); d < epDist {
					ep = nb
					epDist = d
					changed = true
				}
			}
		}
	}

	ef := g.opts.EFSearch
	if ef < k {
		ef = k
	}

	results := g.searchLayer(query, ep, epDist, ef, 0)
	for results.Len() > k {
		results.Pop()
	}

	items := results.Sorted()

	out := make([]knn.Neighbor, len(items))
	for i, it := range items {
		out[i] = knn.Neighbor{Index: it.Index, Distance: it.Distance}
	}

	return out
}

func (g *Graph) insert(v []float32, level int) {
	id := uint32(len(g.nodes))

	n := node{
		vector: v,
		level:  level,
		conns:  make([][]uint32, level+1),
	}

	if len(g.nodes) == 0 {
		g.nodes = append(g.nodes, n)
		g.ep = id
		g.maxLevel = level

		return
	}

	// Greedy descent through the layers above the new node's level.
	ep := g.ep
	epDist := distance.SquaredL2(v, g.nodes[ep].vector)

	for l := g.maxLevel; l > level; l-- {
		changed := true
		for changed {
			changed = false

			for _, nb := range g.nodes[ep].conns[l] {
				if d := distance.SquaredL2(v, g.nodes[nb].vector); d < epDist {
					ep = nb
					epDist = d
					changed = true
				}
			}
		}
	}

	// Link into every layer the new node participates in.
	for l := min(level, g.maxLevel); l >= 0; l-- {
		found := g.searchLayer(v, ep, epDist, g.opts.EFConstruction, l).Sorted()

		n.conns[l] = g.selectNeighbors(found, g.opts.M)

		// The next layer starts the descent from this layer's best match.
		ep, epDist = found[0].Index, found[0].Distance
	}

	g.nodes = append(g.nodes, n)

	for l := min(level, g.maxLevel); l >= 0; l-- {
		for _, nb := range n.conns[l] {
			g.link(nb, id, l)
		}
	}

	if level > g.maxLevel {
		g.ep = id
		g.maxLevel = level
	}
}

// searchLayer explores one layer with a dynamic candidate list of size ef and
// returns the matches found, entry point included.
func (g *Graph) searchLayer(q []float32, ep uint32, epDist float32, ef, level int) *queue.Max {
	var visited bitset.BitSet

	visited.Set(uint(ep))

	candidates := queue.NewMin(ef)
	candidates.Push(queue.Item{Index: ep, Distance: epDist})

	results := queue.NewMax(ef)
	results.Push(queue.Item{Index: ep, Distance: epDist})

	for candidates.Len() > 0 {
		c := candidates.Pop()
		if c.Distance > results.Top().Distance {
			break
		}

		n := &g.nodes[c.Index]
		if level > n.level {
			continue
		}

		for _, nb := range n.conns[level] {
			if visited.Test(uint(nb)) {
				continue
			}

			visited.Set(uint(nb))

			d := distance.SquaredL2(q, g.nodes[nb].vector)

			if results.Len() < ef {
				results.Push(queue.Item{Index: nb, Distance: d})
				candidates.Push(queue.Item{Index: nb, Distance: d})
			} else if d < results.Top().Distance {
				results.Pop()
				results.Push(queue.Item{Index: nb, Distance: d})
				candidates.Push(queue.Item{Index: nb, Distance: d})
			}
		}
	}

	return results
}

// selectNeighbors keeps at most m candidates, preferring diverse directions:
// a candidate that sits closer to an already kept neighbor than to the
// element being linked is deferred, and only fills remaining slots.
// Candidates must be ordered by ascending distance.
func (g *Graph) selectNeighbors(asc []queue.Item, m int) []uint32 {
	if len(asc) <= m {
		return indices(asc)
	}

	kept := make([]queue.Item, 0, m)
	deferred := make([]queue.Item, 0, len(asc)-m)

	for _, it := range asc {
		if len(kept) >= m {
			break
		}

		diverse := true

		for _, kp := range kept {
			if distance.SquaredL2(g.nodes[kp.Index].vector, g.nodes[it.Index].vector) < it.Distance {
				diverse = false
				break
			}
		}

		if diverse {
			kept = append(kept, it)
		} else {
			deferred = append(deferred, it)
		}
	}

	for _, it := range deferred {
		if len(kept) >= m {
			break
		}

		kept = append(kept, it)
	}

	return indices(kept)
}

// link adds a back edge and shrinks the neighbor list when it overflows the
// layer's connection budget.
func (g *Graph) link(from, to uint32, level int) {
	maxConns := g.mmax
	if level == 0 {
		maxConns = g.mmax0
	}

	n := &g.nodes[from]
	n.conns[level] = append(n.conns[level], to)

	if len(n.conns[level]) <= maxConns {
		return
	}

	results := queue.NewMax(len(n.conns[level]))
	for _, id := range n.conns[level] {
		results.Push(queue.Item{Index: id, Distance: distance.SquaredL2(n.vector, g.nodes[id].vector)})
	}

	n.conns[level] = g.selectNeighbors(results.Sorted(), maxConns)
}

func indices(items []queue.Item) []uint32 {
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.Index
	}

	return out
}
