package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sylverboss/telegram-audio-transcriber/internal/storage"
	"github.com/sylverboss/telegram-audio-transcriber/internal/types"
)

type fakeSource struct {
	channel    types.Channel
	items      []types.MediaItem
	payloads   map[int][]byte // message ID -> file content
	iterErr    error
	downloaded []string
}

func (f *fakeSource) Channel(ctx context.Context) (types.Channel, error) {
	return f.channel, nil
}

func (f *fakeSource) IterAudioMessages(ctx context.Context, fn func(types.MediaItem) error) error {
	for _, item := range f.items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return f.iterErr
}

func (f *fakeSource) Download(ctx context.Context, item types.MediaItem, path string) error {
	payload, ok := f.payloads[item.MessageID]
	if !ok {
		return fmt.Errorf("no payload for message %d", item.MessageID)
	}
	f.downloaded = append(f.downloaded, path)
	return os.WriteFile(path, payload, 0644)
}

type fakeTranscriber struct {
	failSubstr string // fail for any file whose path contains this
	calls      []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (*types.TranscriptionResult, error) {
	f.calls = append(f.calls, path)
	if f.failSubstr != "" && strings.Contains(path, f.failSubstr) {
		return nil, errors.New("transcription failed")
	}
	return &types.TranscriptionResult{
		JobID:  "job",
		Text:   "transcript of " + filepath.Base(path),
		Status: types.StatusCompleted,
	}, nil
}

type publishCall struct {
	channel, item, text string
}

type fakePublisher struct {
	err   error
	calls []publishCall
}

func (f *fakePublisher) Publish(ctx context.Context, channelName, itemName, text string) (string, error) {
	f.calls = append(f.calls, publishCall{channelName, itemName, text})
	if f.err != nil {
		return "", f.err
	}
	return "doc-1", nil
}

type fakeRecorder struct {
	records []storage.ItemRecord
}

func (f *fakeRecorder) SaveItem(rec storage.ItemRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func mediaItem(id int, name string) types.MediaItem {
	return types.MediaItem{
		MessageID: id,
		FileName:  name,
		MimeType:  "audio/mpeg",
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestController(t *testing.T, src *fakeSource, tr *fakeTranscriber, pub *fakePublisher, rec *fakeRecorder) (*Controller, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewLocalStorage(filepath.Join(dir, "dl"), filepath.Join(dir, "tx"))
	if err := store.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	var recorder Recorder
	if rec != nil {
		recorder = rec
	}
	return NewController(src, tr, pub, recorder, store, time.Millisecond, log), store
}

// Two identical files and one unique file: one duplicate discarded, two
// transcriptions published, counter ends at 3.
func TestRunDeduplicatesAndPublishes(t *testing.T) {
	src := &fakeSource{
		channel: types.Channel{ID: 1, Title: "My Channel"},
		items: []types.MediaItem{
			mediaItem(10, "first.mp3"),
			mediaItem(11, "copy.mp3"),
			mediaItem(12, "other.mp3"),
		},
		payloads: map[int][]byte{
			10: []byte("same bytes"),
			11: []byte("same bytes"),
			12: []byte("unique bytes"),
		},
	}
	tr := &fakeTranscriber{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	c, _ := newTestController(t, src, tr, pub, rec)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tr.calls) != 2 {
		t.Errorf("expected 2 transcriptions, got %d", len(tr.calls))
	}
	if len(pub.calls) != 2 {
		t.Errorf("expected 2 published blocks, got %d", len(pub.calls))
	}

	if len(rec.records) != 3 {
		t.Fatalf("expected 3 item records, got %d", len(rec.records))
	}
	for i, want := range []int{1, 2, 3} {
		if rec.records[i].Sequence != want {
			t.Errorf("record %d: sequence %d, want %d", i, rec.records[i].Sequence, want)
		}
	}
	wantStatuses := []string{types.StatusCompleted, types.StatusDuplicate, types.StatusCompleted}
	for i, want := range wantStatuses {
		if rec.records[i].Status != want {
			t.Errorf("record %d: status %q, want %q", i, rec.records[i].Status, want)
		}
	}

	// the duplicate download is deleted, the others are retained
	if _, err := os.Stat(src.downloaded[1]); !os.IsNotExist(err) {
		t.Error("duplicate file should be removed")
	}
	for _, i := range []int{0, 2} {
		if _, err := os.Stat(src.downloaded[i]); err != nil {
			t.Errorf("retained file missing: %v", err)
		}
	}

	// transcripts persisted under the transcription dir
	txt, err := os.ReadFile(rec.records[0].TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(txt), "transcript of") {
		t.Errorf("unexpected transcript content: %q", txt)
	}
}

func TestRunFailedTranscriptionNeverPublished(t *testing.T) {
	src := &fakeSource{
		channel:  types.Channel{ID: 1, Title: "Chan"},
		items:    []types.MediaItem{mediaItem(10, "bad.mp3"), mediaItem(11, "good.mp3")},
		payloads: map[int][]byte{10: []byte("bad bytes"), 11: []byte("good bytes")},
	}
	tr := &fakeTranscriber{failSubstr: "bad"}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	c, _ := newTestController(t, src, tr, pub, rec)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("expected only the good file published, got %d calls", len(pub.calls))
	}
	if !strings.Contains(pub.calls[0].item, "good") {
		t.Errorf("wrong item published: %q", pub.calls[0].item)
	}
	if rec.records[0].Status != types.StatusFailed {
		t.Errorf("failed item recorded as %q", rec.records[0].Status)
	}
	// the failed item still consumed a sequence number
	if rec.records[1].Sequence != 2 {
		t.Errorf("sequence not advanced past failure: %d", rec.records[1].Sequence)
	}
}

func TestRunPublishFailureKeepsTranscript(t *testing.T) {
	src := &fakeSource{
		channel:  types.Channel{ID: 1, Title: "Chan"},
		items:    []types.MediaItem{mediaItem(10, "a.mp3")},
		payloads: map[int][]byte{10: []byte("bytes")},
	}
	tr := &fakeTranscriber{}
	pub := &fakePublisher{err: errors.New("docs unavailable")}
	rec := &fakeRecorder{}

	c, _ := newTestController(t, src, tr, pub, rec)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	record := rec.records[0]
	if record.Status != types.StatusCompleted {
		t.Errorf("publish failure should not fail the item: %q", record.Status)
	}
	if record.DocumentID != "" {
		t.Errorf("no document id expected, got %q", record.DocumentID)
	}
	if _, err := os.Stat(record.TranscriptPath); err != nil {
		t.Errorf("transcript should be retained locally: %v", err)
	}
}

func TestRunDownloadFailureContained(t *testing.T) {
	src := &fakeSource{
		channel: types.Channel{ID: 1, Title: "Chan"},
		items:   []types.MediaItem{mediaItem(10, "gone.mp3"), mediaItem(11, "ok.mp3")},
		payloads: map[int][]byte{
			// no payload for 10: download fails
			11: []byte("ok bytes"),
		},
	}
	tr := &fakeTranscriber{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	c, _ := newTestController(t, src, tr, pub, rec)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("a single download failure must not abort the run: %v", err)
	}

	if len(pub.calls) != 1 {
		t.Errorf("expected the second item to be published, got %d calls", len(pub.calls))
	}
	if rec.records[0].Status != types.StatusFailed {
		t.Errorf("download failure recorded as %q", rec.records[0].Status)
	}
}

func TestRunIterationErrorIsFatal(t *testing.T) {
	src := &fakeSource{
		channel: types.Channel{ID: 1, Title: "Chan"},
		iterErr: errors.New("connection lost"),
	}

	c, _ := newTestController(t, src, &fakeTranscriber{}, &fakePublisher{}, nil)
	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection lost") {
		t.Fatalf("stream-level failure must propagate, got %v", err)
	}
}

func TestRunSanitizesChannelName(t *testing.T) {
	src := &fakeSource{
		channel:  types.Channel{ID: 1, Title: `Weird/Chan:Name`},
		items:    []types.MediaItem{mediaItem(10, "a.mp3")},
		payloads: map[int][]byte{10: []byte("bytes")},
	}
	pub := &fakePublisher{}

	c, _ := newTestController(t, src, &fakeTranscriber{}, pub, nil)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	if strings.ContainsAny(pub.calls[0].channel, `\/*?:"<>|`) {
		t.Errorf("channel name not sanitized: %q", pub.calls[0].channel)
	}
}
