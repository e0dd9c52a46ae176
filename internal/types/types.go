package types

import "time"

// Item status constants, recorded per processed media item
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusDuplicate = "DUPLICATE"
)

// Channel is a resolved Telegram channel. Read-only for the pipeline;
// resolved once per run.
type Channel struct {
	ID    int64
	Title string
}

// MediaItem is an audio-bearing document attached to a channel message.
// Immutable once observed. The document fields carry the Telegram file
// reference needed to download the bytes.
type MediaItem struct {
	MessageID  int
	FileName   string // original filename, may be empty
	MimeType   string
	Date       time.Time
	Size       int64
	DocumentID int64
	AccessHash int64
	FileRef    []byte
}

// DownloadedFile is a MediaItem persisted to local storage.
type DownloadedFile struct {
	Path        string
	Sequence    int
	Name        string
	Fingerprint string // empty when hashing failed (file kept, not deduped)
}

// TranscriptionResult is the terminal output of one transcription job.
type TranscriptionResult struct {
	JobID       string
	Text        string
	Status      string
	ProcessedAt time.Time
}
