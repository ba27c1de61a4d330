package allocator

// Compile-time layout constants, fixed by the block format. Config only
// lets a caller override alignment, the debug flag and the verbose
// flag, matching the
// teacher's own Option pattern (see internal/allocator's Config in the
// original Orizon source).
const (
	// WordSize is the width of a header, footer, or free-list link.
	WordSize = 8

	// DefaultAlignment is the payload alignment in bytes.
	DefaultAlignment = 16

	// MinBlockSize is the smallest legal block, in bytes: header + fwd
	// + back + footer.
	MinBlockSize = 32

	// NumSizeClasses is the number of segregated free-list heads.
	NumSizeClasses = 13

	// initialHeapBytes is what Init asks the host to grow by: 8 bytes
	// of padding, a 16-byte prologue (two sentinel words), and an
	// 8-byte epilogue.
	initialHeapBytes = 32
)

// Config holds the compile-time-ish knobs the allocator allows to vary.
// There is no runtime reconfiguration of a live Heap: a Config is
// fixed at Init and applies for the Heap's lifetime.
type Config struct {
	Alignment uintptr
	Debug     bool
	Verbose   bool
}

// Option configures a Config, a functional-options style used
// throughout this package.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Alignment: DefaultAlignment,
		Debug:     false,
		Verbose:   false,
	}
}

// WithDebug enables the allocation-bit assertions the original
// mm_checkheap only ran when compiled with DEBUG defined.
func WithDebug(enabled bool) Option {
	return func(c *Config) { c.Debug = enabled }
}

// WithVerbose enables Heap.Describe-style diagnostic dumps from Check.
func WithVerbose(enabled bool) Option {
	return func(c *Config) { c.Verbose = enabled }
}

// WithAlignment overrides the payload alignment. The block format only
// supports 16-byte alignment, so a caller asking for anything else gets
// 16 back unchanged.
func WithAlignment(n uintptr) Option {
	return func(c *Config) {
		if n == DefaultAlignment {
			c.Alignment = n
		}
	}
}
