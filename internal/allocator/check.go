package allocator

import "fmt"

// Check walks the heap header-by-header and independently walks every
// free list, verifying every structural invariant in one pass: block
// size validity, no two adjacent free blocks, footer/header agreement,
// accurate prev-free bits, and free-list reciprocity and class
// agreement. marker is an arbitrary caller-supplied tag (conventionally
// a line number, per the original mm_checkheap(__LINE__) convention)
// included in any failure message.
//
// Check is a read-only diagnostic: it never repairs the heap.
func (h *Heap) Check(marker int) bool {
	ok, _, _ := h.check(marker)
	return ok
}

// Describe runs Check and returns its findings. On failure it always
// returns them; on success it returns an empty slice unless the Heap
// was configured with WithVerbose, in which case it returns a
// printf-style dump of every block instead, mirroring mm_checkheap's
// DEBUG-only trail of every block it walked.
func (h *Heap) Describe(marker int) []string {
	_, findings, dump := h.check(marker)
	if len(findings) > 0 {
		return findings
	}

	if h.config.Verbose {
		return dump
	}

	return nil
}

func (h *Heap) check(marker int) (bool, []string, []string) {
	buf := h.host.Bytes()
	var findings []string
	var dump []string

	fail := func(format string, args ...interface{}) {
		findings = append(findings, fmt.Sprintf("[check@%d] "+format, append([]interface{}{marker}, args...)...))
	}

	prologueHdr := headerAt(buf, 8)
	prologueFtr := headerAt(buf, 16)

	if !prologueHdr.ThisAlloc || prologueHdr.Size != DefaultAlignment {
		fail("prologue header corrupt")
	}

	if !prologueFtr.ThisAlloc || prologueFtr.Size != DefaultAlignment {
		fail("prologue footer corrupt")
	}

	epilogueOff := Ptr(len(buf)) - WordSize
	epilogue := headerAt(buf, epilogueOff)

	if epilogue.Size != 0 || !epilogue.ThisAlloc {
		fail("epilogue corrupt: size=%d alloc=%v", epilogue.Size, epilogue.ThisAlloc)
	}

	// seenFree maps every free-block header offset this pass reaches
	// by walking the heap to its size class, so it can be cross-checked
	// against what walking the free lists finds.
	seenFree := make(map[Ptr]int)

	prevWasFree := false
	off := h.firstBlockHeader()

	for off < epilogueOff {
		hdr := headerAt(buf, off)

		if hdr.Size < MinBlockSize || hdr.Size%DefaultAlignment != 0 {
			fail("block at %d has invalid size %d", off, hdr.Size)
			break
		}

		if h.config.Debug {
			// The allocation-bit validation: decode the raw state
			// nibble directly (bypassing the ThisAlloc/PrevFree
			// helpers) and assert it is one of the three legal values.
			// State 2 (this free, previous free) must never appear in
			// a steady-state heap (§9) because a free predecessor is
			// always coalesced away; this reads the bits mm_checkheap
			// validated only under #ifdef DEBUG.
			if state := readWord(buf, off) & stateMask; state == stateFreeFreePrev {
				fail("block at %d carries reserved state value 2 (this free, previous free)", off)
			}
		}

		if prevWasFree != hdr.PrevFree {
			fail("block at %d: prev_free bit %v does not match predecessor's actual state %v", off, hdr.PrevFree, prevWasFree)
		}

		if !hdr.ThisAlloc {
			if prevWasFree {
				fail("two adjacent free blocks at %d (invariant 4 violated)", off)
			}

			footer := headerAt(buf, off+Ptr(hdr.Size)-WordSize)
			if footer != hdr {
				fail("free block at %d: footer does not match header", off)
			}

			seenFree[off] = classOf(hdr.Size)
			dump = append(dump, fmt.Sprintf("[block@%d] size=%d free class=%d prev_free=%v", off, hdr.Size, classOf(hdr.Size), hdr.PrevFree))
		} else {
			payload := payloadOf(off)
			if uint64(payload)%uint64(h.config.Alignment) != 0 {
				fail("payload at %d is not %d-aligned", payload, h.config.Alignment)
			}

			if payload < h.firstBlockHeader()+WordSize || Ptr(payload) > h.heapHi() {
				fail("payload at %d lies outside [heap_lo+24, heap_hi]", payload)
			}

			dump = append(dump, fmt.Sprintf("[block@%d] size=%d allocated prev_free=%v", off, hdr.Size, hdr.PrevFree))
		}

		prevWasFree = !hdr.ThisAlloc
		off = nextHeaderOf(off, hdr.Size)
	}

	if off != epilogueOff {
		fail("heap walk overran the epilogue: stopped at %d, epilogue at %d", off, epilogueOff)
	}

	// Walk every free list, checking reciprocity and class agreement,
	// and that every block seenFree reports is visited exactly once.
	visitedViaList := make(map[Ptr]bool)

	for class := 0; class < NumSizeClasses; class++ {
		var prev Ptr = NilPtr

		for payload := h.fl.heads[class]; payload != NilPtr; {
			headerOff := headerOf(payload)

			if declaredClass, ok := seenFree[headerOff]; !ok {
				fail("free list %d references block at %d not found allocated-free during heap walk", class, headerOff)
			} else if declaredClass != class {
				fail("block at %d belongs in class %d but was found in list %d", headerOff, declaredClass, class)
			}

			if visitedViaList[payload] {
				fail("block at payload %d appears in more than one free list", payload)
			}

			visitedViaList[payload] = true

			back := h.fl.back(buf, payload)
			if back != prev {
				fail("free list %d: back pointer at %d (%d) does not match predecessor (%d)", class, payload, back, prev)
			}

			if Ptr(payload) < h.heapLo() || Ptr(payload) > h.heapHi() {
				fail("free list %d: pointer %d lies outside the heap", class, payload)
			}

			prev = payload
			payload = h.fl.fwd(buf, payload)
		}
	}

	for headerOff := range seenFree {
		if !visitedViaList[payloadOf(headerOff)] {
			fail("free block at %d found during heap walk but absent from every free list", headerOff)
		}
	}

	return len(findings) == 0, findings, dump
}
