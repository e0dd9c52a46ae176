// Package storage handles the local download/transcript directories and
// the run metadata database.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage handles the local filesystem layout: downloaded audio under
// the download dir, transcript text under the transcription dir.
type LocalStorage struct {
	downloadDir      string
	transcriptionDir string
}

// NewLocalStorage creates a local storage handler.
func NewLocalStorage(downloadDir, transcriptionDir string) *LocalStorage {
	return &LocalStorage{
		downloadDir:      downloadDir,
		transcriptionDir: transcriptionDir,
	}
}

// EnsureDirs creates both directories if they do not exist.
func (ls *LocalStorage) EnsureDirs() error {
	for _, dir := range []string{ls.downloadDir, ls.transcriptionDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AudioPath returns the download destination for a normalized filename.
func (ls *LocalStorage) AudioPath(name string) string {
	return filepath.Join(ls.downloadDir, name)
}

// SaveTranscript writes transcript text as <transcription_dir>/<name>.txt
// and returns the written path.
func (ls *LocalStorage) SaveTranscript(name, text string) (string, error) {
	path := filepath.Join(ls.transcriptionDir, name+".txt")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("save transcript %s: %w", path, err)
	}
	return path, nil
}

// RemoveAudio deletes a downloaded file. Missing files are not an error.
func (ls *LocalStorage) RemoveAudio(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
