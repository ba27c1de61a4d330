package allocator

import "testing"

func newTestHeap(t *testing.T) *Heap {
	t.Helper()

	h, err := NewHeap()
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	return h
}

func TestAllocateBasic(t *testing.T) {
	h := newTestHeap(t)

	p := h.Allocate(100)
	if p == NilPtr {
		t.Fatal("Allocate(100) returned NilPtr")
	}

	stats := h.Stats()
	if stats.AllocationCount != 1 {
		t.Errorf("AllocationCount = %d, want 1", stats.AllocationCount)
	}

	wantLive := neededBytes(100)
	if stats.BytesLive != wantLive {
		t.Errorf("BytesLive = %d, want %d", stats.BytesLive, wantLive)
	}

	if stats.HeapBytes != initialHeapBytes+wantLive {
		t.Errorf("HeapBytes = %d, want %d", stats.HeapBytes, initialHeapBytes+wantLive)
	}

	if !h.Check(1) {
		t.Fatalf("Check failed: %v", h.Describe(1))
	}
}

func TestAllocateZeroReturnsLiveMinimumBlock(t *testing.T) {
	h := newTestHeap(t)

	// Per §9's Open Question, a zero-size request is not special-cased:
	// align(0+8)=16 clamps up to the 32-byte minimum block and succeeds
	// like any other request, exactly as the original malloc(0) does.
	p := h.Allocate(0)
	if p == NilPtr {
		t.Fatal("Allocate(0) returned NilPtr, want a live 32-byte block")
	}

	if got := h.Stats().BytesLive; got != MinBlockSize {
		t.Errorf("BytesLive after Allocate(0) = %d, want %d", got, uint64(MinBlockSize))
	}

	if !h.Check(1) {
		t.Fatalf("Check after Allocate(0) failed: %v", h.Describe(1))
	}
}

func TestFreeThenReuseSameSize(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(100)
	h.Free(p1)

	if !h.Check(1) {
		t.Fatalf("Check after free failed: %v", h.Describe(1))
	}

	p2 := h.Allocate(100)
	if p2 != p1 {
		t.Errorf("Allocate after Free reused a different block: p1=%d p2=%d", p1, p2)
	}

	if !h.Check(2) {
		t.Fatalf("Check after reuse failed: %v", h.Describe(2))
	}
}

func TestSplitOnLargeFreeBlock(t *testing.T) {
	h := newTestHeap(t)

	big := h.Allocate(1000)
	if big == NilPtr {
		t.Fatal("Allocate(1000) failed")
	}

	heapAfterGrow := h.Stats().HeapBytes

	h.Free(big)
	if !h.Check(1) {
		t.Fatalf("Check after freeing big block failed: %v", h.Describe(1))
	}

	small := h.Allocate(64)
	if small == NilPtr {
		t.Fatal("Allocate(64) failed")
	}

	stats := h.Stats()

	if stats.HeapBytes != heapAfterGrow {
		t.Errorf("heap grew on a split-satisfiable request: before=%d after=%d", heapAfterGrow, stats.HeapBytes)
	}

	wantLive := neededBytes(64)
	if stats.BytesLive != wantLive {
		t.Errorf("BytesLive = %d, want %d", stats.BytesLive, wantLive)
	}

	if !h.Check(2) {
		t.Fatalf("Check after split failed: %v", h.Describe(2))
	}
}

func TestNearExactFitConsumesWholeBlock(t *testing.T) {
	h := newTestHeap(t)

	needed := neededBytes(64)

	p1 := h.Allocate(64)
	h.Free(p1)

	// A request whose neededBytes exactly matches the free block's size
	// must reuse it whole rather than leaving a zero-byte remainder.
	p2 := h.Allocate(needed - WordSize) // reqBytes chosen so neededBytes(req) == needed
	if p2 != p1 {
		t.Errorf("near-exact fit did not reuse the block: p1=%d p2=%d", p1, p2)
	}

	if !h.Check(1) {
		t.Fatalf("Check after near-exact fit failed: %v", h.Describe(1))
	}
}

func TestCoalesceForwardAndBackward(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(64)
	p2 := h.Allocate(64)
	p3 := h.Allocate(64)

	unit := neededBytes(64)

	// Free the middle block: no coalescing possible yet, both
	// neighbors are still allocated.
	h.Free(p2)
	if !h.Check(1) {
		t.Fatalf("Check after freeing middle block failed: %v", h.Describe(1))
	}

	// Free p1: its successor (the freed p2) is free, so this forward-
	// coalesces into one 2*unit free block.
	h.Free(p1)
	if !h.Check(2) {
		t.Fatalf("Check after forward coalesce failed: %v", h.Describe(2))
	}

	// Free p3: its predecessor is now free, so this backward-coalesces
	// into one 3*unit free block covering everything this test allocated.
	h.Free(p3)
	if !h.Check(3) {
		t.Fatalf("Check after backward coalesce failed: %v", h.Describe(3))
	}

	stats := h.Stats()
	if stats.BytesLive != 0 {
		t.Errorf("BytesLive = %d after freeing every allocation, want 0", stats.BytesLive)
	}

	// A single fully-coalesced free block should satisfy a request
	// for up to 3*unit-8 bytes without growing the heap.
	heapBefore := stats.HeapBytes

	p4 := h.Allocate(3*unit - 2*WordSize)
	if p4 == NilPtr {
		t.Fatal("Allocate after full coalesce failed")
	}

	if h.Stats().HeapBytes != heapBefore {
		t.Errorf("heap grew even though the coalesced block was large enough")
	}
}

func TestGrowOnExhaustedFreeList(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(64)
	afterFirst := h.Stats().HeapBytes

	p2 := h.Allocate(64)
	afterSecond := h.Stats().HeapBytes

	if p1 == p2 {
		t.Fatalf("two live allocations returned the same pointer")
	}

	if afterSecond <= afterFirst {
		t.Errorf("heap did not grow for the second allocation: first=%d second=%d", afterFirst, afterSecond)
	}

	if !h.Check(1) {
		t.Fatalf("Check after growth failed: %v", h.Describe(1))
	}
}

func TestReallocatePreservesLeadingBytes(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(50)
	buf := h.host.Bytes()

	pattern := make([]byte, 50)
	for i := range pattern {
		pattern[i] = byte(i + 1)
	}

	copy(buf[p1:uint64(p1)+50], pattern)

	p2 := h.Reallocate(p1, 200)
	if p2 == NilPtr {
		t.Fatal("Reallocate to a larger size failed")
	}

	buf = h.host.Bytes()
	for i := range pattern {
		if buf[uint64(p2)+uint64(i)] != pattern[i] {
			t.Fatalf("byte %d not preserved across Reallocate: got %d, want %d", i, buf[uint64(p2)+uint64(i)], pattern[i])
		}
	}

	if !h.Check(1) {
		t.Fatalf("Check after Reallocate failed: %v", h.Describe(1))
	}
}

func TestReallocateNilActsAsAllocate(t *testing.T) {
	h := newTestHeap(t)

	p := h.Reallocate(NilPtr, 100)
	if p == NilPtr {
		t.Fatal("Reallocate(NilPtr, 100) returned NilPtr")
	}
}

func TestReallocateToZeroFreesAndReturnsNil(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(64)

	p2 := h.Reallocate(p1, 0)
	if p2 != NilPtr {
		t.Errorf("Reallocate(p, 0) = %d, want NilPtr", p2)
	}

	if h.Stats().BytesLive != 0 {
		t.Errorf("BytesLive = %d after Reallocate-to-zero, want 0", h.Stats().BytesLive)
	}

	if !h.Check(1) {
		t.Fatalf("Check after Reallocate-to-zero failed: %v", h.Describe(1))
	}
}

func TestCallocZeroesReusedMemory(t *testing.T) {
	h := newTestHeap(t)

	p1 := h.Allocate(64)
	buf := h.host.Bytes()

	for i := uint64(0); i < 64; i++ {
		buf[uint64(p1)+i] = 0xFF
	}

	h.Free(p1)

	p2 := h.Calloc(4, 16)
	if p2 != p1 {
		t.Fatalf("Calloc did not reuse the freed block: p1=%d p2=%d", p1, p2)
	}

	buf = h.host.Bytes()
	for i := uint64(0); i < 64; i++ {
		if buf[uint64(p2)+i] != 0 {
			t.Fatalf("byte %d not zeroed by Calloc", i)
		}
	}
}

func TestFreeOfNilPtrIsNoOp(t *testing.T) {
	h := newTestHeap(t)

	before := h.Stats()
	h.Free(NilPtr)
	after := h.Stats()

	if before != after {
		t.Errorf("Free(NilPtr) changed stats: before=%+v after=%+v", before, after)
	}
}

func TestHeapGrowthHonorsSliceHostCapacity(t *testing.T) {
	h, err := NewHeapWithHost(newSliceHost(initialHeapBytes + 16))
	if err != nil {
		t.Fatalf("NewHeapWithHost: %v", err)
	}

	// The host has only 16 bytes of headroom beyond init, too little
	// for even the smallest block, so any real request must fail by
	// returning NilPtr rather than growing past the cap.
	if p := h.Allocate(1000); p != NilPtr {
		t.Errorf("Allocate(1000) against a capped host = %d, want NilPtr", p)
	}
}
