package allocator

import "github.com/segheap/segheap/internal/errors"

// Heap is an allocator handle: the heap region (via Host) plus the 13
// free-list heads. The free-list heads and heap region are process-wide
// globals in the original C malloc lab this design descends from; here
// they're held on a struct instead so a process can run more than one
// Heap, though nothing about a single Heap's operations is safe for
// concurrent use.
type Heap struct {
	host   Host
	fl     freeList
	config *Config

	allocCount uint64
	freeCount  uint64
	bytesLive  uint64
}

// NewHeap creates and initializes a Heap backed by a fresh, unbounded
// sliceHost. It fails only if the initial 32-byte growth fails; a
// sliceHost refuses growth only when it was created with a nonzero cap
// smaller than the requested total, which NewHeap never does.
func NewHeap(opts ...Option) (*Heap, error) {
	return NewHeapWithHost(newSliceHost(0), opts...)
}

// NewHeapWithHost creates a Heap over a caller-supplied Host (e.g. an
// mmap-backed one from NewMmapHost), selecting a backing strategy
// independently of the allocator logic itself.
func NewHeapWithHost(host Host, opts ...Option) (*Heap, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Heap{host: host, config: cfg}
	if err := h.init(); err != nil {
		return nil, err
	}

	return h, nil
}

// init lays out the padding, prologue, and epilogue sentinels and
// clears all 13 free-list heads.
func (h *Heap) init() error {
	off, ok := h.host.Grow(initialHeapBytes)
	if !ok {
		return errHostGrowFailed
	}

	buf := h.host.Bytes()
	// off == 0 always, for the very first growth.
	_ = off

	// Padding word at [0,8) is left zeroed.
	prologueHdr := Ptr(8)
	prologueFtr := Ptr(16)
	epilogue := Ptr(24)

	setHeader(buf, prologueHdr, DefaultAlignment, true, false)
	setHeader(buf, prologueFtr, DefaultAlignment, true, false)
	setHeader(buf, epilogue, 0, true, false)

	h.fl = freeList{}

	return nil
}

// heapLo is the offset of the first heap byte.
func (h *Heap) heapLo() Ptr { return 0 }

// heapHi is the offset of the last byte currently mapped.
func (h *Heap) heapHi() Ptr { return Ptr(len(h.host.Bytes())) - 1 }

// firstBlockHeader is the offset of the first real (non-sentinel) block.
func (h *Heap) firstBlockHeader() Ptr { return 24 }

// grow extends the heap by exactly deltaBytes (a multiple of 16),
// turning the old epilogue word into the header of a new block that
// inherits the old epilogue's prev-free bit, then writes a fresh
// epilogue after it. Returns the new block's header offset.
func (h *Heap) grow(deltaBytes uint64) (Ptr, bool) {
	bufBefore := h.host.Bytes()
	oldEpilogueOff := Ptr(len(bufBefore)) - WordSize
	oldEpilogue := headerAt(bufBefore, oldEpilogueOff)

	if _, ok := h.host.Grow(deltaBytes); !ok {
		return NilPtr, false
	}

	buf := h.host.Bytes()
	newBlockHeader := oldEpilogueOff
	newEpilogue := newBlockHeader + Ptr(deltaBytes)

	setHeader(buf, newEpilogue, 0, true, false)
	setHeader(buf, newBlockHeader, deltaBytes, true, oldEpilogue.PrevFree)

	return newBlockHeader, true
}

// Allocate returns a payload pointer to a live block of at least
// reqBytes, first-fitting against the free lists before growing the
// heap, or NilPtr if the heap could not grow. reqBytes == 0 is not an
// error: per §9's clamp rule, it computes align(0+8)=16, which clamps
// up to the 32-byte minimum block, and succeeds like any other request.
func (h *Heap) Allocate(reqBytes uint64) Ptr {
	needed := neededBytes(reqBytes)

	if headerOff, ok := h.fl.firstFit(h.host.Bytes(), needed); ok {
		return h.allocateFromFree(headerOff, needed)
	}

	headerOff, ok := h.grow(needed)
	if !ok {
		return NilPtr
	}

	h.allocCount++
	h.bytesLive += needed

	return payloadOf(headerOff)
}

// allocateFromFree consumes or splits a free block found by firstFit.
func (h *Heap) allocateFromFree(headerOff Ptr, needed uint64) Ptr {
	buf := h.host.Bytes()
	found := headerAt(buf, headerOff)
	class := classOf(found.Size)

	// Near-exact fit: the remainder would be under 32 bytes and thus
	// unsplittable, so the whole block is consumed. The allocation
	// silently widens by 16 bytes in the "needed+16" case to absorb
	// the otherwise-stranded tail.
	if found.Size == needed || found.Size == needed+DefaultAlignment {
		h.fl.remove(buf, headerOff, class)

		actual := found.Size
		setHeader(buf, headerOff, actual, true, found.PrevFree)

		next := nextHeaderOf(headerOff, actual)
		nh := headerAt(buf, next)
		setHeader(buf, next, nh.Size, nh.ThisAlloc, false)

		h.allocCount++
		h.bytesLive += actual

		return payloadOf(headerOff)
	}

	// Splittable: carve `needed` bytes off the front, leave the
	// remainder as a new free block.
	h.fl.remove(buf, headerOff, class)

	remainderBytes := found.Size - needed
	setHeader(buf, headerOff, needed, true, found.PrevFree)

	remainderHeader := nextHeaderOf(headerOff, needed)
	setHeader(buf, remainderHeader, remainderBytes, false, false)
	setFooter(buf, remainderHeader, remainderBytes, false, false)

	h.fl.insert(buf, remainderHeader, classOf(remainderBytes))

	h.allocCount++
	h.bytesLive += needed

	return payloadOf(headerOff)
}

// Free releases the block at payload pointer p, immediately coalescing
// with any free neighbor on either side. Freeing NilPtr is a no-op.
func (h *Heap) Free(p Ptr) {
	if p == NilPtr {
		return
	}

	buf := h.host.Bytes()
	headerOff := headerOf(p)
	hdr := headerAt(buf, headerOff)

	prevFree := hdr.PrevFree
	size := hdr.Size
	start := headerOff

	if prevFree {
		predFooter := headerAt(buf, prevFooterOf(headerOff))
		predHeaderOff := headerOff - Ptr(predFooter.Size)
		h.fl.remove(buf, predHeaderOff, classOf(predFooter.Size))
		start = predHeaderOff
		size += predFooter.Size
	}

	next := nextHeaderOf(headerOff, hdr.Size)
	nextHdr := headerAt(buf, next)

	if !nextHdr.ThisAlloc {
		h.fl.remove(buf, next, classOf(nextHdr.Size))
		size += nextHdr.Size
	}

	setHeader(buf, start, size, false, headerAt(buf, start).PrevFree)
	setFooter(buf, start, size, false, headerAt(buf, start).PrevFree)

	beyond := nextHeaderOf(start, size)
	beyondHdr := headerAt(buf, beyond)
	setHeader(buf, beyond, beyondHdr.Size, beyondHdr.ThisAlloc, true)

	h.fl.insert(buf, start, classOf(size))

	h.freeCount++
	if h.bytesLive >= hdr.Size {
		h.bytesLive -= hdr.Size
	}
}

// Reallocate resizes the block at old to reqBytes, preserving as many
// of its leading bytes as fit in the new size. old==NilPtr behaves as
// Allocate; reqBytes==0 behaves as Free and returns NilPtr. If the new
// allocation fails, old is left untouched and NilPtr is returned.
func (h *Heap) Reallocate(old Ptr, reqBytes uint64) Ptr {
	if old == NilPtr {
		return h.Allocate(reqBytes)
	}

	if reqBytes == 0 {
		h.Free(old)
		return NilPtr
	}

	newPtr := h.Allocate(reqBytes)
	if newPtr == NilPtr {
		return NilPtr
	}

	buf := h.host.Bytes()
	oldHeader := headerAt(buf, headerOf(old))
	oldCapacity := oldHeader.Size - WordSize

	copySize := oldCapacity
	if reqBytes < copySize {
		copySize = reqBytes
	}

	copy(buf[newPtr:uint64(newPtr)+copySize], buf[old:uint64(old)+copySize])
	h.Free(old)

	return newPtr
}

// Calloc allocates space for n elements of sz bytes each and zeroes it.
// No overflow check is performed on n*sz, matching the original C
// implementation's documented behavior.
func (h *Heap) Calloc(n, sz uint64) Ptr {
	total := n * sz

	p := h.Allocate(total)
	if p == NilPtr {
		return NilPtr
	}

	buf := h.host.Bytes()
	region := buf[p : uint64(p)+total]

	for i := range region {
		region[i] = 0
	}

	return p
}

// Stats is a lightweight summary used by the CLI and snapshot output.
type Stats struct {
	AllocationCount uint64
	FreeCount       uint64
	BytesLive       uint64
	HeapBytes       uint64
}

func (h *Heap) Stats() Stats {
	return Stats{
		AllocationCount: h.allocCount,
		FreeCount:       h.freeCount,
		BytesLive:       h.bytesLive,
		HeapBytes:       uint64(len(h.host.Bytes())),
	}
}

// errInvalidPayload is never returned from Free (which has undefined
// behavior on a bad pointer); no code path in this module returns it.
var errInvalidPayload = errors.NewStandardError(
	errors.CategoryMemory, "invalid_payload",
	"payload pointer does not reference a live allocation",
)
