package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var invalidFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// CleanFilename replaces every filesystem-unsafe character with an
// underscore, one for one.
func CleanFilename(name string) string {
	return invalidFilenameChars.ReplaceAllString(name, "_")
}

// AudioFilename derives the normalized download name for a media item:
// <channel>_<seq>_<original base>_<YYYYMMDD><ext>. When the message has no
// original filename a deterministic placeholder based on the message ID is
// used. Same inputs always yield the same name.
func AudioFilename(channel string, seq int, originalName string, messageID int, date time.Time) string {
	if originalName == "" {
		originalName = fmt.Sprintf("audio_%d.mp3", messageID)
	}
	originalName = CleanFilename(originalName)

	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(originalName, ext)
	if ext == "" {
		ext = ".mp3"
	}

	return fmt.Sprintf("%s_%03d_%s_%s%s",
		CleanFilename(channel), seq, base, date.Format("20060102"), ext)
}
