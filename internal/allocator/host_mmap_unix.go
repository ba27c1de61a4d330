//go:build unix

package allocator

import "golang.org/x/sys/unix"

// mmapHost backs the heap with an anonymous mmap mapping instead of a
// Go slice, reaching for golang.org/x/sys/unix to drive raw OS
// memory/file primitives directly rather than through higher-level
// stdlib APIs.
//
// mmap has no portable "grow in place" primitive (Linux's mremap is
// Linux-only), so growth here maps a fresh, larger anonymous region,
// copies the live bytes across, and unmaps the old one. That is the
// natural translation of a heap that only grows, never shrinks, and
// never returns memory to the host, onto mmap.
type mmapHost struct {
	region []byte // mapped region; region[:length] is the logical heap
	length uint64
}

// NewMmapHost creates an mmap-backed host with an initial mapping of
// at least minCapacity bytes (rounded up to the system page size by
// the kernel).
func NewMmapHost(minCapacity uint64) (Host, error) {
	if minCapacity == 0 {
		minCapacity = unixPageSize()
	}

	region, err := unix.Mmap(-1, 0, int(minCapacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	return &mmapHost{region: region}, nil
}

func unixPageSize() uint64 {
	return uint64(unix.Getpagesize())
}

func (h *mmapHost) Grow(delta uint64) (Ptr, bool) {
	off := h.length
	need := h.length + delta

	if need > uint64(len(h.region)) {
		newCap := uint64(len(h.region)) * 2
		if newCap < need {
			newCap = need
		}

		region, err := unix.Mmap(-1, 0, int(newCap), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return NilPtr, false
		}

		copy(region, h.region[:h.length])
		_ = unix.Munmap(h.region)
		h.region = region
	}

	h.length = need

	return Ptr(off), true
}

func (h *mmapHost) Bytes() []byte { return h.region[:h.length] }

// Close releases the mapping. Callers that use an mmapHost directly
// (outside of NewHeap's default sliceHost) are responsible for calling
// this when done with the Heap.
func (h *mmapHost) Close() error {
	return unix.Munmap(h.region)
}
