// Package export writes the diagnostic artifacts of a matching run.
//
// Two views of the putative table are rendered next to the match output: the
// pairwise adjacency matrix as SVG and the view graph in graphviz DOT form.
// Both are derived data; they can be regenerated from the match table at any
// time.
package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hupe1980/matchgo/internal/fs"
	"github.com/hupe1980/matchgo/putative"
)

const (
	// AdjacencyFileName is the adjacency matrix artifact, written into the
	// match output directory.
	AdjacencyFileName = "PutativeAdjacencyMatrix.svg"

	// GraphFileName is the view graph artifact.
	GraphFileName = "putative_matches.dot"

	// cellSize is the side of one adjacency matrix cell in SVG units.
	cellSize = 5
)

// WriteAdjacencySVG renders the view-pair adjacency matrix: an n-by-n grid
// with a filled cell at (i, j) and its mirror (j, i) for every pair holding
// at least one correspondence, plus a frame marking the axis ranges. Output
// is deterministic for a given table.
func WriteAdjacencySVG(w io.Writer, viewCount int, m putative.Matches) error {
	bw := bufio.NewWriter(w)

	size := (viewCount + 3) * cellSize
	fmt.Fprintf(bw, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\">\n", size, size)

	for _, p := range m.Pairs() {
		count := len(m[p])
		if count == 0 {
			continue
		}

		if int(p.I) >= viewCount || int(p.J) >= viewCount {
			continue
		}

		writeCell(bw, p.J, p.I, p.I, p.J, count)
		writeCell(bw, p.I, p.J, p.I, p.J, count)
	}

	writeAxes(bw, viewCount)

	fmt.Fprintln(bw, "</svg>")

	return bw.Flush()
}

// writeCell fills the cell at column col, row row. The title carries the
// pair and its match count as a hover tooltip.
func writeCell(w io.Writer, col, row, i, j uint32, count int) {
	fmt.Fprintf(w, "\t<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"blue\"><title>(%d,%d) %d</title></rect>\n",
		int(col)*cellSize, int(row)*cellSize, cellSize, cellSize, i, j, count)
}

func writeAxes(w io.Writer, viewCount int) {
	n := viewCount * cellSize
	edge := (viewCount + 1) * cellSize

	// Right edge: the row axis, labeled 0 at the top.
	fmt.Fprintf(w, "\t<text x=\"%d\" y=\"%d\" font-size=\"%d\">0</text>\n", edge, cellSize, cellSize)
	fmt.Fprintf(w, "\t<text x=\"%d\" y=\"%d\" font-size=\"%d\">%d</text>\n", edge, n-cellSize, cellSize, viewCount)
	fmt.Fprintf(w, "\t<line x1=\"%d\" y1=\"%d\" x2=\"%d\" y2=\"%d\" stroke=\"black\"/>\n",
		edge, 2*cellSize, edge, n-2*cellSize)

	// Bottom edge: the column axis, labeled 0 at the left.
	fmt.Fprintf(w, "\t<text x=\"%d\" y=\"%d\" font-size=\"%d\">0</text>\n", cellSize, edge, cellSize)
	fmt.Fprintf(w, "\t<text x=\"%d\" y=\"%d\" font-size=\"%d\">%d</text>\n", n-cellSize, edge, cellSize, viewCount)
	fmt.Fprintf(w, "\t<line x1=\"%d\" y1=\"%d\" x2=\"%d\" y2=\"%d\" stroke=\"black\"/>\n",
		2*cellSize, edge, n-2*cellSize, edge)
}

// SaveAdjacencySVG writes the adjacency matrix to path atomically.
func SaveAdjacencySVG(path string, viewCount int, m putative.Matches) error {
	return fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		return WriteAdjacencySVG(w, viewCount, m)
	})
}
