package allocator

import (
	"encoding/json"
	"fmt"

	semver "github.com/Masterminds/semver/v3"

	segerrors "github.com/segheap/segheap/internal/errors"
)

// snapshotFormatVersion is bumped whenever BlockView's fields change
// in a way that would break an older loader.
const snapshotFormatVersion = "1.0.0"

// snapshotConstraint is what LoadSnapshot requires of a snapshot's
// FormatVersion before trusting its payload, the same gate the
// teacher's packagemanager applies to a lockfile's pinned versions
// before resolving against them.
var snapshotConstraint = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}

	return c
}

// BlockView is the serializable view of one block, exactly the fields
// Check already derives while walking the heap.
type BlockView struct {
	HeaderOffset uint64 `json:"header_offset"`
	SizeBytes    uint64 `json:"size_bytes"`
	Allocated    bool   `json:"allocated"`
	PrevFree     bool   `json:"prev_free"`
	SizeClass    int    `json:"size_class,omitempty"`
}

// Snapshot is a point-in-time, versioned dump of heap structure for
// offline debugging of a checker failure. It never participates in
// allocate/free.
type Snapshot struct {
	FormatVersion string      `json:"format_version"`
	HeapBytes     uint64      `json:"heap_bytes"`
	Blocks        []BlockView `json:"blocks"`
	Stats         Stats       `json:"stats"`
}

// Snapshot walks the heap (same traversal as Check) and captures every
// block's structural fields.
func (h *Heap) Snapshot() Snapshot {
	buf := h.host.Bytes()
	epilogueOff := Ptr(len(buf)) - WordSize

	snap := Snapshot{
		FormatVersion: snapshotFormatVersion,
		HeapBytes:     uint64(len(buf)),
		Stats:         h.Stats(),
	}

	off := h.firstBlockHeader()
	for off < epilogueOff {
		hdr := headerAt(buf, off)

		bv := BlockView{
			HeaderOffset: uint64(off),
			SizeBytes:    hdr.Size,
			Allocated:    hdr.ThisAlloc,
			PrevFree:     hdr.PrevFree,
		}

		if !hdr.ThisAlloc {
			bv.SizeClass = classOf(hdr.Size)
		}

		snap.Blocks = append(snap.Blocks, bv)

		off = nextHeaderOf(off, hdr.Size)
	}

	return snap
}

// MarshalSnapshot serializes a Snapshot to indented JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// LoadSnapshot parses a serialized Snapshot and checks its
// FormatVersion against snapshotConstraint before returning it. A
// snapshot from an incompatible future format is rejected rather than
// silently misread.
func LoadSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("allocator: malformed snapshot: %w", err)
	}

	v, err := semver.NewVersion(s.FormatVersion)
	if err != nil {
		return Snapshot{}, fmt.Errorf("allocator: snapshot has invalid format_version %q: %w", s.FormatVersion, err)
	}

	if !snapshotConstraint.Check(v) {
		return Snapshot{}, fmt.Errorf("allocator: snapshot format_version %s does not satisfy %s", s.FormatVersion, snapshotConstraint.String())
	}

	if s.HeapBytes == 0 || s.HeapBytes%DefaultAlignment != 0 {
		return Snapshot{}, segerrors.InvalidSize(s.HeapBytes, "snapshot.heap_bytes")
	}

	return s, nil
}
