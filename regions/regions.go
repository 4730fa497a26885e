// Package regions stores the detected features and descriptors of each view.
//
// A region is a keypoint (position, scale, orientation) plus its descriptor.
// Descriptors come in two kinds: scalar (float32 vectors, compared with
// squared L2) and binary (byte strings, compared with Hamming distance). The
// kind and dimensionality of a dataset are declared once in its describer
// document and every region file must agree with it.
//
// Region files live next to the match artifacts: <image>.feat holds the
// keypoints as text, <image>.desc holds the descriptor block. Providers load
// them either eagerly ([Store]) or through a bounded LRU cache ([CacheStore]).
package regions

import (
	"errors"
	"fmt"
)

// Kind discriminates scalar from binary descriptors.
type Kind uint8

const (
	// KindScalar marks float32 descriptors compared with squared L2.
	KindScalar Kind = iota
	// KindBinary marks byte-string descriptors compared with Hamming distance.
	KindBinary
)

// ErrUnknownKind is returned when parsing an unrecognized descriptor kind.
var ErrUnknownKind = errors.New("regions: unknown descriptor kind")

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseKind parses the describer representation of a descriptor kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "scalar":
		return KindScalar, nil
	case "binary":
		return KindBinary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindScalar, KindBinary:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// PointFeature is a detected keypoint.
type PointFeature struct {
	X           float32
	Y           float32
	Scale       float32
	Orientation float32
}

// Regions holds the features and descriptors of one view. Depending on Kind,
// exactly one of Scalar or Binary is populated, index-aligned with Features.
// A loaded Regions value is shared between goroutines and must be treated as
// read-only.
type Regions struct {
	Kind      Kind
	Dimension int

	Features []PointFeature
	Scalar   [][]float32
	Binary   [][]byte
}

// Len returns the number of regions.
func (r *Regions) Len() int { return len(r.Features) }

// Validate checks that descriptor counts and dimensions line up with the
// declared kind.
func (r *Regions) Validate() error {
	if r.Dimension <= 0 {
		return fmt.Errorf("regions: dimension %d", r.Dimension)
	}

	switch r.Kind {
	case KindScalar:
		if r.Binary != nil {
			return errors.New("regions: scalar regions carry binary descriptors")
		}

		if len(r.Scalar) != len(r.Features) {
			return fmt.Errorf("regions: %d features but %d descriptors", len(r.Features), len(r.Scalar))
		}

		for i, d := range r.Scalar {
			if len(d) != r.Dimension {
				return fmt.Errorf("regions: descriptor %d has dimension %d, want %d", i, len(d), r.Dimension)
			}
		}
	case KindBinary:
		if r.Scalar != nil {
			return errors.New("regions: binary regions carry scalar descriptors")
		}

		if len(r.Binary) != len(r.Features) {
			return fmt.Errorf("regions: %d features but %d descriptors", len(r.Features), len(r.Binary))
		}

		for i, d := range r.Binary {
			if len(d) != r.Dimension {
				return fmt.Errorf("regions: descriptor %d has dimension %d, want %d", i, len(d), r.Dimension)
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(r.Kind))
	}

	return nil
}
