package allocator

import "github.com/segheap/segheap/internal/errors"

// Host is the memory-backing contract the heap consumes: a single
// monotonically growable region. Grow never shrinks, never relocates
// a logical offset (callers address the heap by offset, not by raw
// pointer, so a Host implementation is free to relocate the backing
// storage internally on growth — see mmapHost).
type Host interface {
	// Grow appends delta bytes (always a positive multiple of 16) to
	// the heap and returns the offset of the first new byte, which is
	// always the prior length. ok is false if the host refused.
	Grow(delta uint64) (offset Ptr, ok bool)

	// Bytes returns the full backing storage. len(Bytes()) is the
	// current heap size; Bytes()[:n] aliases storage returned by
	// earlier Grow calls.
	Bytes() []byte
}

// sliceHost is the default Host: a Go slice that grows by append,
// managing its own []byte arena with a high-water mark instead of
// calling into the OS.
type sliceHost struct {
	buf []byte
	cap uint64 // 0 means unbounded
}

// newSliceHost creates a slice-backed host. A nonzero capBytes caps
// total heap growth (0 = unbounded), letting tests exercise out-of-
// memory behavior deterministically.
func newSliceHost(capBytes uint64) *sliceHost {
	return &sliceHost{cap: capBytes}
}

func (h *sliceHost) Grow(delta uint64) (Ptr, bool) {
	off := uint64(len(h.buf))
	if h.cap != 0 && off+delta > h.cap {
		return NilPtr, false
	}

	h.buf = append(h.buf, make([]byte, delta)...)

	return Ptr(off), true
}

func (h *sliceHost) Bytes() []byte { return h.buf }

// errHostGrowFailed is returned by NewHeap/NewHeapWithHost when the
// initial growth fails (and so reaches the CLI), never on the allocate
// hot path: growth failure there is communicated as a nil payload
// return, not an error.
var errHostGrowFailed = errors.NewStandardError(
	errors.CategorySystem, "host_grow_failed",
	"host refused to grow the heap",
)
