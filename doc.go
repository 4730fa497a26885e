// Package matchgo computes putative feature correspondences between image
// pairs of a multi-view reconstruction dataset.
//
// Given a scene catalog, the per-view region files produced by feature
// extraction, and a pair list, the pipeline searches each pair for
// two-nearest-neighbor descriptor matches, filters ambiguous ones with the
// distance-ratio test, and persists the resulting table for downstream
// geometric verification.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	p, err := matchgo.New("scene.json", "matches/matches.putative.bin", "pairs.txt",
//	    matchgo.WithRatio(0.8),
//	    matchgo.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := p.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(result.State, result.TotalMatches)
//
// A run whose output file already exists is loaded instead of recomputed;
// pass matchgo.WithForce(true) to recompute unconditionally.
//
// # Matching Methods
//
// The nearest-neighbor backend is selected with matchgo.WithMethod:
//
//   - exact-L2, exact-Hamming: exhaustive scan, exact
//   - approx-tree-L2: bounded best-first kd-tree, approximate
//   - approx-graph-L2: hierarchical navigable small world graph, approximate
//   - cascade-hash-L2, cascade-hash-precomputed-L2: cascade hashing; the
//     precomputed variant hashes every view once per run and reuses the
//     tables on both sides of every pair
//   - AUTO (default): cascade-hash-precomputed-L2 for scalar descriptors,
//     exact-Hamming for binary ones
//
// # Memory
//
// By default every view's regions are loaded up front. On datasets too large
// for that, matchgo.WithCacheSize(n) bounds residency to n views with
// least-recently-used eviction.
package matchgo
