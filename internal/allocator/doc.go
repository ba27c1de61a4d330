// Package allocator implements a segregated-free-list memory allocator
// over a single, monotonically growable heap region. It exposes the
// classical allocate/free/reallocate/zero-allocate surface used by a
// trace-driven harness (see cmd/segheap).
//
// The heap is bracketed by synthetic prologue/epilogue sentinel blocks
// and threaded by a fixed set of size-classed doubly linked free lists.
// Blocks carry a bit-packed header (size plus a two-bit state: this
// block's allocation flag and the previous block's free flag) so that
// allocated blocks need no footer; free blocks carry a footer duplicate
// of their header for backward coalescing.
//
// The allocator is single-threaded and synchronous: no operation
// blocks, retries, or supports concurrent access to one Heap.
package allocator
