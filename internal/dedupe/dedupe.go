// Package dedupe detects duplicate downloads by content fingerprint.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// fingerprint files in bounded chunks so large audio never loads fully
const chunkSize = 4096

// Fingerprint computes the hex MD5 digest of the file at path. MD5 is used
// for duplicate detection only, not for security.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Tracker maps content fingerprints to the first file seen with that
// content. Lifecycle is a single run; entries are never removed.
// Not safe for concurrent use: the pipeline processes one item at a time.
type Tracker struct {
	index map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[string]string)}
}

// CheckAndRecord returns true and records path if fingerprint is new,
// false without mutating the index if it was seen before.
func (t *Tracker) CheckAndRecord(fingerprint, path string) bool {
	if _, seen := t.index[fingerprint]; seen {
		return false
	}
	t.index[fingerprint] = path
	return true
}

// FirstSeen returns the path first recorded for fingerprint.
func (t *Tracker) FirstSeen(fingerprint string) (string, bool) {
	path, ok := t.index[fingerprint]
	return path, ok
}

// Len returns the number of distinct fingerprints recorded.
func (t *Tracker) Len() int {
	return len(t.index)
}
