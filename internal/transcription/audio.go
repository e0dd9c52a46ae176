package transcription

import (
	"path/filepath"
	"strings"
)

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".oga", ".opus", ".flac", ".aac", ".wma"}

// IsAudio reports whether a message attachment is an audio file worth
// transcribing, by MIME type or, when the MIME type is unhelpful, by
// filename extension.
func IsAudio(mimeType, filename string) bool {
	if strings.Contains(strings.ToLower(mimeType), "audio") {
		return true
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range audioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
