//go:build !unix

package allocator

import "fmt"

// NewMmapHost is unavailable on non-unix platforms and always returns
// an error there; cmd/segheap reports that error for -host=mmap, and
// only its default -host=slice works on those platforms.
func NewMmapHost(minCapacity uint64) (Host, error) {
	return nil, fmt.Errorf("allocator: mmap-backed host is not supported on this platform")
}
