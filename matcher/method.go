package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/matchgo/regions"
)

// Method selects the nearest-neighbor backend used for pairwise matching.
type Method uint8

const (
	// MethodAuto resolves to a backend fitting the run's descriptor kind:
	// cascade hashing with precomputed tables for scalar descriptors,
	// exhaustive Hamming for binary ones.
	MethodAuto Method = iota
	// MethodExactL2 is the exhaustive squared-L2 scan.
	MethodExactL2
	// MethodExactHamming is the exhaustive Hamming scan.
	MethodExactHamming
	// MethodApproxTreeL2 searches a kd-tree with a bounded leaf budget.
	MethodApproxTreeL2
	// MethodApproxGraphL2 searches a navigable small world graph.
	MethodApproxGraphL2
	// MethodCascadeHashL2 hashes each target view with its own mean.
	MethodCascadeHashL2
	// MethodCascadeHashPrecomputedL2 hashes every view once with a shared
	// run-wide mean and reuses the tables on both sides of each pair.
	MethodCascadeHashPrecomputedL2
)

var (
	// ErrUnknownMethod is returned when a method token names no backend.
	ErrUnknownMethod = errors.New("matcher: unknown matching method")

	// ErrKindMismatch is returned when a method's metric does not fit the
	// run's descriptor kind.
	ErrKindMismatch = errors.New("matcher: method does not fit descriptor kind")
)

func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "AUTO"
	case MethodExactL2:
		return "exact-L2"
	case MethodExactHamming:
		return "exact-Hamming"
	case MethodApproxTreeL2:
		return "approx-tree-L2"
	case MethodApproxGraphL2:
		return "approx-graph-L2"
	case MethodCascadeHashL2:
		return "cascade-hash-L2"
	case MethodCascadeHashPrecomputedL2:
		return "cascade-hash-precomputed-L2"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseMethod parses a configuration token, case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "auto":
		return MethodAuto, nil
	case "exact-l2":
		return MethodExactL2, nil
	case "exact-hamming":
		return MethodExactHamming, nil
	case "approx-tree-l2":
		return MethodApproxTreeL2, nil
	case "approx-graph-l2":
		return MethodApproxGraphL2, nil
	case "cascade-hash-l2":
		return MethodCascadeHashL2, nil
	case "cascade-hash-precomputed-l2":
		return MethodCascadeHashPrecomputedL2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Resolve maps the method to the concrete backend for the given descriptor
// kind. Explicit methods fail when their metric does not fit the kind.
func (m Method) Resolve(kind regions.Kind) (Method, error) {
	if m == MethodAuto {
		if kind == regions.KindBinary {
			return MethodExactHamming, nil
		}

		return MethodCascadeHashPrecomputedL2, nil
	}

	if wantBinary := m == MethodExactHamming; wantBinary != (kind == regions.KindBinary) {
		return 0, fmt.Errorf("%w: %s on %s descriptors", ErrKindMismatch, m, kind)
	}

	return m, nil
}
