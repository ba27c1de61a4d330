// Command segheap is a trace-driven harness for the allocator package:
// it replays a line-oriented allocation trace against a Heap and
// reports utilization and throughput.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/segheap/segheap/internal/allocator"
	segerrors "github.com/segheap/segheap/internal/errors"
)

func main() {
	var (
		tracePath string
		hostKind  string
		capBytes  uint64
		check     bool
		verbose   bool
		watch     bool
		dumpPath  string
	)

	flag.StringVar(&tracePath, "trace", "", "path to a trace file (required)")
	flag.StringVar(&hostKind, "host", "slice", "backing host: slice|mmap")
	flag.Uint64Var(&capBytes, "cap", 0, "initial mapping size in bytes for the mmap host (0 = one page); the slice host ignores it and is unbounded")
	flag.BoolVar(&check, "check", false, "run the consistency checker after every operation")
	flag.BoolVar(&verbose, "v", false, "print a line per trace operation")
	flag.BoolVar(&watch, "watch", false, "re-run the trace whenever it changes on disk")
	flag.StringVar(&dumpPath, "dump", "", "write a versioned heap snapshot (JSON) here after the run")
	flag.Parse()

	if tracePath == "" {
		fmt.Fprintln(os.Stderr, "segheap: -trace is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "segheap: ", 0)

	if err := runOnce(tracePath, hostKind, capBytes, check, verbose, dumpPath, logger); err != nil {
		logger.Fatal(err)
	}

	if !watch {
		return
	}

	if err := watchAndRerun(tracePath, hostKind, capBytes, check, verbose, dumpPath, logger); err != nil {
		logger.Fatal(err)
	}
}

// watchAndRerun re-runs the trace whenever fsnotify reports a write to
// it, draining the Events and Errors channels from one goroutine.
func watchAndRerun(tracePath, hostKind string, capBytes uint64, check, verbose bool, dumpPath string, logger *log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("segheap: starting watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(tracePath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("segheap: watching %s: %w", dir, err)
	}

	logger.Printf("watching %s for changes to %s", dir, filepath.Base(tracePath))

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != filepath.Clean(tracePath) {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			logger.Printf("trace changed, replaying")

			if err := runOnce(tracePath, hostKind, capBytes, check, verbose, dumpPath, logger); err != nil {
				logger.Printf("replay failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Printf("watch error: %v", err)
		}
	}
}

func newHost(kind string, capBytes uint64) (allocator.Host, error) {
	switch kind {
	case "slice", "":
		return nil, nil // signal "use NewHeap's default"
	case "mmap":
		return allocator.NewMmapHost(capBytes)
	default:
		return nil, fmt.Errorf("unknown -host %q (want slice|mmap)", kind)
	}
}

func newHeap(kind string, capBytes uint64, check, verbose bool) (*allocator.Heap, error) {
	host, err := newHost(kind, capBytes)
	if err != nil {
		return nil, err
	}

	opts := []allocator.Option{allocator.WithDebug(check), allocator.WithVerbose(verbose)}

	if host == nil {
		return allocator.NewHeap(opts...)
	}

	return allocator.NewHeapWithHost(host, opts...)
}

func runOnce(tracePath, hostKind string, capBytes uint64, check, verbose bool, dumpPath string, logger *log.Logger) error {
	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	heap, err := newHeap(hostKind, capBytes, check, verbose)
	if err != nil {
		return fmt.Errorf("creating heap: %w", err)
	}

	live := map[string]allocator.Ptr{}

	start := time.Now()
	ops := 0

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := applyOp(heap, live, line, verbose, logger); err != nil {
			return fmt.Errorf("trace line %d: %w", lineNo, err)
		}

		ops++

		if check && !heap.Check(lineNo) {
			findings := heap.Describe(lineNo)
			for _, finding := range findings {
				logger.Println(finding)
			}

			first := "no finding reported"
			if len(findings) > 0 {
				first = findings[0]
			}

			return segerrors.HeapCorruption(lineNo, first)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}

	elapsed := time.Since(start)
	stats := heap.Stats()

	fmt.Printf("ops=%d heap_bytes=%d bytes_live=%d utilization=%.2f%% elapsed=%s\n",
		ops, stats.HeapBytes, stats.BytesLive, utilization(stats), elapsed)

	if dumpPath != "" {
		return writeSnapshot(heap, dumpPath)
	}

	return nil
}

func utilization(s allocator.Stats) float64 {
	if s.HeapBytes == 0 {
		return 0
	}

	return 100 * float64(s.BytesLive) / float64(s.HeapBytes)
}

func writeSnapshot(heap *allocator.Heap, path string) error {
	data, err := allocator.MarshalSnapshot(heap.Snapshot())
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// applyOp parses and executes one trace line:
//
//	a <id> <size>     allocate
//	f <id>            free
//	r <id> <size>     reallocate
//	c <id> <n> <size> zero-allocate
func applyOp(heap *allocator.Heap, live map[string]allocator.Ptr, line string, verbose bool, logger *log.Logger) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	op := fields[0]

	switch op {
	case "a":
		if len(fields) != 3 {
			return fmt.Errorf("want 'a <id> <size>', got %q", line)
		}

		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return err
		}

		p := heap.Allocate(size)
		live[fields[1]] = p

		if verbose {
			logger.Printf("allocate(%d) id=%s -> %d", size, fields[1], p)
		}
	case "f":
		if len(fields) != 2 {
			return fmt.Errorf("want 'f <id>', got %q", line)
		}

		p := live[fields[1]]
		heap.Free(p)
		delete(live, fields[1])

		if verbose {
			logger.Printf("free(id=%s, %d)", fields[1], p)
		}
	case "r":
		if len(fields) != 3 {
			return fmt.Errorf("want 'r <id> <size>', got %q", line)
		}

		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return err
		}

		np := heap.Reallocate(live[fields[1]], size)
		live[fields[1]] = np

		if verbose {
			logger.Printf("reallocate(id=%s, %d) -> %d", fields[1], size, np)
		}
	case "c":
		if len(fields) != 4 {
			return fmt.Errorf("want 'c <id> <n> <size>', got %q", line)
		}

		n, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return err
		}

		sz, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return err
		}

		p := heap.Calloc(n, sz)
		live[fields[1]] = p

		if verbose {
			logger.Printf("calloc(%d, %d) id=%s -> %d", n, sz, fields[1], p)
		}
	default:
		return fmt.Errorf("unknown op %q", op)
	}

	return nil
}
