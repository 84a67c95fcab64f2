package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quickmod/quickmod/internal/platform"
)

const (
	// freshnessFile is the name of the timestamp marker file.
	freshnessFile = ".synced"

	// DefaultMaxAge is the default staleness threshold (7 days).
	DefaultMaxAge = 7 * 24 * time.Hour
)

// WriteFreshnessMarker writes the current Unix timestamp to the freshness file.
func WriteFreshnessMarker(dir string) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return platform.WriteBytesAtomic(filepath.Join(dir, freshnessFile), []byte(ts), platform.FilePermNormal)
}

// ReadFreshnessMarker reads the timestamp from the freshness file.
// Returns zero time if the file doesn't exist or can't be parsed.
func ReadFreshnessMarker(dir string) time.Time {
	data, err := os.ReadFile(filepath.Join(dir, freshnessFile))
	if err != nil {
		return time.Time{}
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// IsStale returns true if the last sync ran more than maxAge ago, or never.
func IsStale(dir string, maxAge time.Duration) bool {
	last := ReadFreshnessMarker(dir)
	if last.IsZero() {
		return true
	}
	return time.Since(last) > maxAge
}
