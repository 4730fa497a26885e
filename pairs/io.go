package pairs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/matchgo/internal/fs"
)

var (
	// ErrNoPairs is returned when a pair list yields no pairs.
	ErrNoPairs = errors.New("pairs: list contains no pairs")

	// ErrSelfPair is returned when a line pairs a view with itself.
	ErrSelfPair = errors.New("pairs: view paired with itself")

	// ErrViewOutOfRange is returned when a pair references a view id at or
	// above the catalog's view count.
	ErrViewOutOfRange = errors.New("pairs: view id out of range")
)

// Load reads a pair list from path. viewCount bounds the valid view ids:
// any id at or above it fails the load.
func Load(path string, viewCount int) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pairs: open list: %w", err)
	}
	defer f.Close()

	s, err := Read(f, viewCount)
	if err != nil {
		return nil, fmt.Errorf("pairs: read list %s: %w", path, err)
	}

	return s, nil
}

// Read decodes a pair list from r. Each non-empty line holds a source view
// id followed by one or more destination ids, whitespace separated. Pairs
// appearing more than once collapse into a single entry.
func Read(r io.Reader, viewCount int) (Set, error) {
	s := make(Set)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: source view %s has no destinations", line, fields[0])
		}

		src, err := parseViewID(fields[0], viewCount)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for _, field := range fields[1:] {
			dst, err := parseViewID(field, viewCount)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}

			if src == dst {
				return nil, fmt.Errorf("line %d: %w: %d", line, ErrSelfPair, src)
			}

			s.Add(New(src, dst))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(s) == 0 {
		return nil, ErrNoPairs
	}

	return s, nil
}

// Save writes the pair list to path atomically.
func Save(path string, s Set) error {
	return fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		return Write(w, s)
	})
}

// Write encodes the pair list to w, one pair per line, ordered by (I, J) so
// repeated saves of the same set are byte-identical.
func Write(w io.Writer, s Set) error {
	bw := bufio.NewWriter(w)

	for _, p := range s.Sorted() {
		if _, err := fmt.Fprintf(bw, "%d %d\n", p.I, p.J); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func parseViewID(field string, viewCount int) (uint32, error) {
	id, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid view id %q: %w", field, err)
	}

	if id >= uint64(viewCount) {
		return 0, fmt.Errorf("%w: %d (catalog has %d views)", ErrViewOutOfRange, id, viewCount)
	}

	return uint32(id), nil
}
