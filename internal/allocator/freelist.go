package allocator

// freeList is the segregated free-list index: a fixed array of 13
// class heads. Each head is the offset of the first free block's
// payload position (header+8), or NilPtr if the class is empty.
// Free-block links live at payload+0 (forward) and payload+8 (back),
// not at the block header: they point at the payload positions of
// other free blocks, not at their headers.
type freeList struct {
	heads [NumSizeClasses]Ptr
}

func fwdLinkOff(payload Ptr) Ptr { return payload }
func backLinkOff(payload Ptr) Ptr { return payload + WordSize }

func (fl *freeList) fwd(buf []byte, payload Ptr) Ptr {
	return Ptr(readWord(buf, fwdLinkOff(payload)))
}

func (fl *freeList) back(buf []byte, payload Ptr) Ptr {
	return Ptr(readWord(buf, backLinkOff(payload)))
}

func (fl *freeList) setFwd(buf []byte, payload, v Ptr) {
	writeWord(buf, fwdLinkOff(payload), uint64(v))
}

func (fl *freeList) setBack(buf []byte, payload, v Ptr) {
	writeWord(buf, backLinkOff(payload), uint64(v))
}

// insert pushes headerOff's block at the head of the class list, LIFO.
func (fl *freeList) insert(buf []byte, headerOff Ptr, class int) {
	payload := payloadOf(headerOff)
	oldHead := fl.heads[class]

	fl.setBack(buf, payload, NilPtr)
	fl.setFwd(buf, payload, oldHead)

	if oldHead != NilPtr {
		fl.setBack(buf, oldHead, payload)
	}

	fl.heads[class] = payload
}

// remove unlinks headerOff's block from the class list.
func (fl *freeList) remove(buf []byte, headerOff Ptr, class int) {
	payload := payloadOf(headerOff)
	prev := fl.back(buf, payload)
	next := fl.fwd(buf, payload)

	if prev != NilPtr {
		fl.setFwd(buf, prev, next)
	} else {
		fl.heads[class] = next
	}

	if next != NilPtr {
		fl.setBack(buf, next, prev)
	}
}

// firstFit scans classes from classOf(neededBytes) upward, and within
// each class walks list order (no sorting), returning the header
// offset of the first block whose size is at least neededBytes. A
// class's lower bound doesn't guarantee every member is large enough
// — a class is an upper-bounded bucket, so the scan checks each
// candidate's actual size, not just its class.
func (fl *freeList) firstFit(buf []byte, neededBytes uint64) (Ptr, bool) {
	startClass := classOf(neededBytes)

	for class := startClass; class < NumSizeClasses; class++ {
		for payload := fl.heads[class]; payload != NilPtr; payload = fl.fwd(buf, payload) {
			headerOff := headerOf(payload)
			if headerAt(buf, headerOff).Size >= neededBytes {
				return headerOff, true
			}
		}
	}

	return NilPtr, false
}
