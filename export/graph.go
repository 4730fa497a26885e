package export

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/matchgo/internal/fs"
	"github.com/hupe1980/matchgo/putative"
)

// WriteGraphDot encodes the view graph in graphviz DOT form: one node per
// view, one undirected edge per pair with at least one correspondence.
// Views without matches stay in the output as isolated nodes.
func WriteGraphDot(w io.Writer, viewIDs []uint32, m putative.Matches) error {
	ids := append([]uint32(nil), viewIDs...)
	slices.Sort(ids)

	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "graph putative_matches {")
	fmt.Fprintln(bw, "\tnode [shape=circle]")

	for _, id := range ids {
		fmt.Fprintf(bw, "\t%d;\n", id)
	}

	for _, p := range m.Pairs() {
		if len(m[p]) == 0 {
			continue
		}

		fmt.Fprintf(bw, "\t%d -- %d;\n", p.I, p.J)
	}

	fmt.Fprintln(bw, "}")

	return bw.Flush()
}

// SaveGraphDot writes the view graph to path atomically.
func SaveGraphDot(path string, viewIDs []uint32, m putative.Matches) error {
	return fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		return WriteGraphDot(w, viewIDs, m)
	})
}
