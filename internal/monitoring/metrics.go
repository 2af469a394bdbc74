package monitoring

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds the counters of a hashing run
type Metrics struct {
	FilesHashed atomic.Uint64
	FilesFailed atomic.Uint64
	BytesHashed atomic.Uint64

	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	HashDuration *DurationHistogram
}

// DurationHistogram tracks duration distributions
type DurationHistogram struct {
	mu      sync.RWMutex
	buckets map[string]uint64
	sum     time.Duration
	count   uint64
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		HashDuration: NewDurationHistogram(),
	}
}

// NewDurationHistogram creates a new duration histogram
func NewDurationHistogram() *DurationHistogram {
	return &DurationHistogram{
		buckets: make(map[string]uint64),
	}
}

// Observe records a duration observation
func (h *DurationHistogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += d
	h.count++
	h.buckets[bucketFor(d)]++
}

var bucketOrder = []string{"0-100ms", "100ms-1s", "1-5s", "5-30s", "30s+"}

func bucketFor(d time.Duration) string {
	switch {
	case d < 100*time.Millisecond:
		return "0-100ms"
	case d < time.Second:
		return "100ms-1s"
	case d < 5*time.Second:
		return "1-5s"
	case d < 30*time.Second:
		return "5-30s"
	default:
		return "30s+"
	}
}

// Average returns the average duration
func (h *DurationHistogram) Average() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0
	}
	return h.sum / time.Duration(h.count)
}

// Count returns the number of observations
func (h *DurationHistogram) Count() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Snapshot returns a copy of the bucket counts
func (h *DurationHistogram) Snapshot() map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := make(map[string]uint64, len(h.buckets))
	for k, v := range h.buckets {
		snapshot[k] = v
	}
	return snapshot
}

// RecordFileHashed records a successfully hashed (not cached) file
func (m *Metrics) RecordFileHashed(bytes uint64, duration time.Duration) {
	m.FilesHashed.Add(1)
	m.BytesHashed.Add(bytes)
	m.HashDuration.Observe(duration)
}

// RecordFileFailed records a file that could not be hashed
func (m *Metrics) RecordFileFailed() {
	m.FilesFailed.Add(1)
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// WriteSummary writes a human readable run summary to w.
func (m *Metrics) WriteSummary(w io.Writer, elapsed time.Duration) {
	bytes := m.BytesHashed.Load()
	fmt.Fprintf(w, "files hashed:  %d\n", m.FilesHashed.Load())
	fmt.Fprintf(w, "files failed:  %d\n", m.FilesFailed.Load())
	fmt.Fprintf(w, "cache hits:    %d (misses %d)\n", m.CacheHits.Load(), m.CacheMisses.Load())
	fmt.Fprintf(w, "bytes hashed:  %d\n", bytes)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "throughput:    %.2f MiB/s\n", float64(bytes)/secs/(1<<20))
	}
	fmt.Fprintf(w, "elapsed:       %s\n", elapsed.Round(time.Millisecond))
	if m.HashDuration.Count() > 0 {
		fmt.Fprintf(w, "avg per file:  %s\n", m.HashDuration.Average().Round(time.Millisecond))
		snap := m.HashDuration.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return bucketIndex(keys[i]) < bucketIndex(keys[j]) })
		for _, k := range keys {
			fmt.Fprintf(w, "  %-9s %d\n", k, snap[k])
		}
	}
}

func bucketIndex(name string) int {
	for i, b := range bucketOrder {
		if b == name {
			return i
		}
	}
	return len(bucketOrder)
}

// Global metrics instance
var globalMetrics = NewMetrics()

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
