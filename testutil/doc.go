// Package testutil builds small on-disk matching datasets for tests.
//
// A dataset is a scene catalog, a describer declaration, per-view region
// files, and a pair list, all written through the production IO paths.
// Every view observes the same planted landmarks with a little noise, so
// matching a generated dataset yields dense, predictable correspondences:
//
//	d := testutil.Build(t, func(o *testutil.Options) {
//		o.Views = 4
//	})
//	table, err := matcher.Match(ctx, provider, d.Pairs, nil)
package testutil
