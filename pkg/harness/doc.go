// Package harness generates allocation workloads and replays them against any
// alloc.Allocator.
//
// A Harness keeps a bounded set of live allocations. Each Request allocates,
// frees or reallocates one of them, so random or fuzzed byte streams become
// valid allocator traffic:
//
//	h := harness.New(a, 128)
//	h.GenerateRequests(rand.New(rand.NewPCG(1, 2)), 1024, 10000)
//
// Allocated memory is stamped with the request number and size followed by a
// fill pattern, which makes overlapping allocations visible when an arena is
// inspected.
package harness
