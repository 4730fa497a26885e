package putative

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/matchgo/internal/fs"
	"github.com/hupe1980/matchgo/pairs"
)

const (
	// TextExt marks the plain-text match table format.
	TextExt = ".txt"
	// BinExt marks the compressed binary match table format.
	BinExt = ".bin"

	binVersion = 1

	// maxMatchesPerPair bounds the correspondence count a record may
	// declare, so a corrupt record cannot trigger a huge allocation.
	maxMatchesPerPair = 1 << 24
)

var binMagic = [4]byte{'M', 'G', 'P', 'M'}

var (
	// ErrUnknownFormat is returned when a table path carries an extension
	// that names no supported format.
	ErrUnknownFormat = errors.New("putative: unknown match table format")

	// ErrCorrupt is returned when a match table fails structural validation.
	ErrCorrupt = errors.New("putative: corrupt match table")
)

// Save writes the match table to path atomically, in the format named by the
// path's extension: .txt or .bin. A failed save leaves any prior table at
// path untouched.
func Save(path string, m Matches) error {
	var write func(w io.Writer, m Matches) error

	switch filepath.Ext(path) {
	case TextExt:
		write = WriteText
	case BinExt:
		write = WriteBinary
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}

	if err := fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		return write(w, m)
	}); err != nil {
		return fmt.Errorf("putative: write %s: %w", path, err)
	}

	return nil
}

// Load reads a match table from path, in the format named by the path's
// extension.
func Load(path string) (Matches, error) {
	var read func(r io.Reader) (Matches, error)

	switch filepath.Ext(path) {
	case TextExt:
		read = ReadText
	case BinExt:
		read = ReadBinary
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("putative: open table: %w", err)
	}
	defer f.Close()

	m, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("putative: read table %s: %w", path, err)
	}

	return m, nil
}

// WriteText encodes the table as text: per pair a "I J" line, a line holding
// the correspondence count, then one "i j" line per correspondence. Pairs are
// emitted in (I, J) order so repeated saves of the same table are
// byte-identical.
func WriteText(w io.Writer, m Matches) error {
	bw := bufio.NewWriter(w)

	for _, p := range m.Pairs() {
		if _, err := fmt.Fprintf(bw, "%d %d\n%d\n", p.I, p.J, len(m[p])); err != nil {
			return err
		}

		for _, match := range m[p] {
			if _, err := fmt.Fprintf(bw, "%d %d\n", match.I, match.J); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// ReadText decodes a text match table.
func ReadText(r io.Reader) (Matches, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	next := func() (uint32, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}

			return 0, fmt.Errorf("%w: truncated table", ErrCorrupt)
		}

		v, err := strconv.ParseUint(sc.Text(), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid token %q", ErrCorrupt, sc.Text())
		}

		return uint32(v), nil
	}

	m := make(Matches)

	for sc.Scan() {
		i, err := strconv.ParseUint(sc.Text(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid token %q", ErrCorrupt, sc.Text())
		}

		j, err := next()
		if err != nil {
			return nil, err
		}

		p := pairs.Pair{I: uint32(i), J: j}
		if err := checkPairKey(m, p); err != nil {
			return nil, err
		}

		count, err := next()
		if err != nil {
			return nil, err
		}

		if count > maxMatchesPerPair {
			return nil, fmt.Errorf("%w: pair (%d, %d) declares %d matches", ErrCorrupt, p.I, p.J, count)
		}

		matches := make([]IndMatch, 0, count)

		for n := uint32(0); n < count; n++ {
			mi, err := next()
			if err != nil {
				return nil, err
			}

			mj, err := next()
			if err != nil {
				return nil, err
			}

			matches = append(matches, IndMatch{I: mi, J: mj})
		}

		m[p] = matches
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// WriteBinary encodes the table as a fixed header followed by a zstd stream
// of per-pair records, pairs in (I, J) order. The header stays outside the
// stream so a reader can reject a foreign file before decompressing.
func WriteBinary(w io.Writer, m Matches) error {
	var header [12]byte

	copy(header[:4], binMagic[:])
	header[4] = binVersion
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(m)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}

	var rec [12]byte

	for _, p := range m.Pairs() {
		binary.LittleEndian.PutUint32(rec[0:4], p.I)
		binary.LittleEndian.PutUint32(rec[4:8], p.J)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(m[p])))

		if _, err := zw.Write(rec[:]); err != nil {
			zw.Close()
			return err
		}

		for _, match := range m[p] {
			binary.LittleEndian.PutUint32(rec[0:4], match.I)
			binary.LittleEndian.PutUint32(rec[4:8], match.J)

			if _, err := zw.Write(rec[:8]); err != nil {
				zw.Close()
				return err
			}
		}
	}

	return zw.Close()
}

// ReadBinary decodes a binary match table.
func ReadBinary(r io.Reader) (Matches, error) {
	var header [12]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	if [4]byte(header[:4]) != binMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	if header[4] != binVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header[4])
	}

	pairCount := binary.LittleEndian.Uint32(header[8:12])

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("putative: zstd reader: %w", err)
	}
	defer zr.Close()

	m := make(Matches, pairCount)

	var rec [12]byte

	for n := uint32(0); n < pairCount; n++ {
		if _, err := io.ReadFull(zr, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated table: %v", ErrCorrupt, err)
		}

		p := pairs.Pair{
			I: binary.LittleEndian.Uint32(rec[0:4]),
			J: binary.LittleEndian.Uint32(rec[4:8]),
		}
		if err := checkPairKey(m, p); err != nil {
			return nil, err
		}

		count := binary.LittleEndian.Uint32(rec[8:12])
		if count > maxMatchesPerPair {
			return nil, fmt.Errorf("%w: pair (%d, %d) declares %d matches", ErrCorrupt, p.I, p.J, count)
		}

		matches := make([]IndMatch, 0, count)

		for k := uint32(0); k < count; k++ {
			if _, err := io.ReadFull(zr, rec[:8]); err != nil {
				return nil, fmt.Errorf("%w: truncated table: %v", ErrCorrupt, err)
			}

			matches = append(matches, IndMatch{
				I: binary.LittleEndian.Uint32(rec[0:4]),
				J: binary.LittleEndian.Uint32(rec[4:8]),
			})
		}

		m[p] = matches
	}

	var trailer [1]byte
	if n, err := zr.Read(trailer[:]); n != 0 || !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrCorrupt)
	}

	return m, nil
}

func checkPairKey(m Matches, p pairs.Pair) error {
	if p.I >= p.J {
		return fmt.Errorf("%w: pair (%d, %d) not normalized", ErrCorrupt, p.I, p.J)
	}

	if _, ok := m[p]; ok {
		return fmt.Errorf("%w: duplicate pair (%d, %d)", ErrCorrupt, p.I, p.J)
	}

	return nil
}
