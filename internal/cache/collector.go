package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/hoangsonww/ed2k/internal/monitoring"
)

// PruneStats describes the outcome of a prune pass
type PruneStats struct {
	Scanned  int
	Missing  int // file no longer exists
	Stale    int // file changed since it was hashed
	Expired  int // hashed longer ago than the retention period
	Corrupt  int
	Failures int // entries that could not be deleted
}

// Removed returns the number of entries deleted
func (p PruneStats) Removed() int {
	return p.Missing + p.Stale + p.Expired + p.Corrupt
}

// Collector removes cache entries that can no longer produce hits
type Collector struct {
	store         *Store
	retentionDays int
	now           func() time.Time
}

// NewCollector creates a collector. retentionDays <= 0 disables expiry.
func NewCollector(store *Store, retentionDays int) *Collector {
	return &Collector{
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run performs a prune pass
func (c *Collector) Run() (PruneStats, error) {
	logger := monitoring.GetLogger()
	startTime := c.now()
	var stats PruneStats

	entries, err := c.store.List()
	if err != nil {
		return stats, fmt.Errorf("failed to list cache entries: %w", err)
	}

	var cutoff time.Time
	if c.retentionDays > 0 {
		cutoff = startTime.AddDate(0, 0, -c.retentionDays)
	}

	for _, e := range entries {
		stats.Scanned++
		reason := c.reason(e, cutoff)
		if reason == "" {
			continue
		}

		if err := c.store.Delete(e.Key); err != nil {
			logger.WithError(err).Warnf("Failed to delete cache entry: %s", e.Key)
			stats.Failures++
			continue
		}
		logger.WithFields(map[string]interface{}{
			"key":    e.Key,
			"path":   e.Path,
			"reason": reason,
		}).Debug("Pruned cache entry")

		switch reason {
		case "missing":
			stats.Missing++
		case "stale":
			stats.Stale++
		case "expired":
			stats.Expired++
		case "corrupt":
			stats.Corrupt++
		}
	}

	logger.WithFields(map[string]interface{}{
		"scanned":  stats.Scanned,
		"removed":  stats.Removed(),
		"duration": time.Since(startTime).Seconds(),
	}).Info("Cache prune completed")

	return stats, nil
}

func (c *Collector) reason(e Entry, cutoff time.Time) string {
	if e.Path == "" {
		return "corrupt"
	}
	info, err := os.Stat(e.Path)
	if os.IsNotExist(err) {
		return "missing"
	}
	if err == nil && !e.Matches(info) {
		return "stale"
	}
	if !cutoff.IsZero() && e.HashedAt.Before(cutoff) {
		return "expired"
	}
	return ""
}
