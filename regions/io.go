package regions

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/matchgo/internal/fs"
)

const (
	// FeatExt is the extension of the keypoint text file.
	FeatExt = ".feat"
	// DescExt is the extension of the descriptor block file.
	DescExt = ".desc"

	descVersion = 1

	// maxRegionsPerView bounds the descriptor count a .desc header may
	// declare, so a corrupt header cannot trigger a huge allocation.
	maxRegionsPerView = 1 << 24
)

var descMagic = [4]byte{'M', 'G', 'R', 'D'}

// ErrCorrupt is returned when a region file fails structural validation.
var ErrCorrupt = errors.New("regions: corrupt region file")

// FilePaths returns the keypoint and descriptor file paths of a view inside
// dir, derived from the image filename with its extension stripped.
func FilePaths(dir, imageFilename string) (featPath, descPath string) {
	base := filepath.Base(imageFilename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(dir, base+FeatExt), filepath.Join(dir, base+DescExt)
}

// Write stores the regions of one view, both files written atomically.
func Write(featPath, descPath string, r *Regions) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := fs.WriteAtomic(fs.Default, featPath, func(w io.Writer) error {
		return writeFeatures(w, r.Features)
	}); err != nil {
		return fmt.Errorf("regions: write %s: %w", featPath, err)
	}

	if err := fs.WriteAtomic(fs.Default, descPath, func(w io.Writer) error {
		return writeDescriptors(w, r)
	}); err != nil {
		return fmt.Errorf("regions: write %s: %w", descPath, err)
	}

	return nil
}

// Read loads the regions of one view and validates them against the
// dataset describer.
func Read(featPath, descPath string, d Describer) (*Regions, error) {
	feats, err := readFeatures(featPath)
	if err != nil {
		return nil, err
	}

	r, err := readDescriptors(descPath, d)
	if err != nil {
		return nil, err
	}

	if descCount := descriptorCount(r); descCount != len(feats) {
		return nil, fmt.Errorf("%w: %s: %d keypoints but %d descriptors", ErrCorrupt, descPath, len(feats), descCount)
	}

	r.Features = feats

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

func descriptorCount(r *Regions) int {
	if r.Kind == KindBinary {
		return len(r.Binary)
	}

	return len(r.Scalar)
}

func writeFeatures(w io.Writer, feats []PointFeature) error {
	bw := bufio.NewWriter(w)

	for _, f := range feats {
		if _, err := fmt.Fprintf(bw, "%g %g %g %g\n", f.X, f.Y, f.Scale, f.Orientation); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func readFeatures(path string) ([]PointFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("regions: open %s: %w", path, err)
	}
	defer f.Close()

	var feats []PointFeature

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %s: line %d has %d fields, want 4", ErrCorrupt, path, line, len(fields))
		}

		var vals [4]float32

		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: line %d: %v", ErrCorrupt, path, line, err)
			}

			vals[i] = float32(v)
		}

		feats = append(feats, PointFeature{X: vals[0], Y: vals[1], Scale: vals[2], Orientation: vals[3]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("regions: read %s: %w", path, err)
	}

	return feats, nil
}

func writeDescriptors(w io.Writer, r *Regions) error {
	var header [16]byte

	copy(header[:4], descMagic[:])
	header[4] = descVersion
	header[5] = byte(r.Kind)
	binary.LittleEndian.PutUint32(header[8:12], uint32(r.Dimension))
	binary.LittleEndian.PutUint32(header[12:16], uint32(r.Len()))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	zw := lz4.NewWriter(w)

	if r.Kind == KindBinary {
		for _, desc := range r.Binary {
			if _, err := zw.Write(desc); err != nil {
				return err
			}
		}
	} else {
		row := make([]byte, 4*r.Dimension)

		for _, desc := range r.Scalar {
			for i, v := range desc {
				binary.LittleEndian.PutUint32(row[4*i:], math.Float32bits(v))
			}

			if _, err := zw.Write(row); err != nil {
				return err
			}
		}
	}

	return zw.Close()
}

func readDescriptors(path string, d Describer) (*Regions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("regions: open %s: %w", path, err)
	}
	defer f.Close()

	var header [16]byte

	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %s: short header", ErrCorrupt, path)
	}

	if [4]byte(header[:4]) != descMagic {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorrupt, path)
	}

	if header[4] != descVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, header[4])
	}

	kind := Kind(header[5])
	if kind != d.Kind {
		return nil, fmt.Errorf("%w: %s: descriptor kind %s, describer declares %s", ErrCorrupt, path, kind, d.Kind)
	}

	dim := binary.LittleEndian.Uint32(header[8:12])
	if int(dim) != d.Dimension {
		return nil, fmt.Errorf("%w: %s: dimension %d, describer declares %d", ErrCorrupt, path, dim, d.Dimension)
	}

	count := binary.LittleEndian.Uint32(header[12:16])
	if count > maxRegionsPerView {
		return nil, fmt.Errorf("%w: %s: descriptor count %d exceeds limit", ErrCorrupt, path, count)
	}

	elemSize := 4
	if kind == KindBinary {
		elemSize = 1
	}

	payload := make([]byte, int(count)*d.Dimension*elemSize)

	zr := lz4.NewReader(f)
	if _, err := io.ReadFull(zr, payload); err != nil {
		return nil, fmt.Errorf("%w: %s: short payload: %v", ErrCorrupt, path, err)
	}

	var trailer [1]byte
	if n, err := zr.Read(trailer[:]); n != 0 || !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: trailing descriptor data", ErrCorrupt, path)
	}

	r := &Regions{Kind: kind, Dimension: d.Dimension}

	if kind == KindBinary {
		r.Binary = make([][]byte, count)
		for i := range r.Binary {
			r.Binary[i] = payload[i*d.Dimension : (i+1)*d.Dimension : (i+1)*d.Dimension]
		}
	} else {
		r.Scalar = make([][]float32, count)
		rowLen := 4 * d.Dimension

		for i := range r.Scalar {
			row := payload[i*rowLen : (i+1)*rowLen]
			desc := make([]float32, d.Dimension)

			for j := range desc {
				desc[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
			}

			r.Scalar[i] = desc
		}
	}

	return r, nil
}
