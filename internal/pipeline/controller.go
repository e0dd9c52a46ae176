// Package pipeline sequences download, dedupe, transcription, persistence
// and publishing for one pass over a channel's message history.
package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sylverboss/telegram-audio-transcriber/internal/dedupe"
	"github.com/sylverboss/telegram-audio-transcriber/internal/storage"
	"github.com/sylverboss/telegram-audio-transcriber/internal/types"
)

// Source yields a channel's audio-bearing messages and their bytes.
type Source interface {
	Channel(ctx context.Context) (types.Channel, error)
	IterAudioMessages(ctx context.Context, fn func(types.MediaItem) error) error
	Download(ctx context.Context, item types.MediaItem, path string) error
}

// Transcriber converts a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*types.TranscriptionResult, error)
}

// Publisher appends a transcription block to the channel's document.
type Publisher interface {
	Publish(ctx context.Context, channelName, itemName, text string) (string, error)
}

// Recorder persists per-item outcomes. May be nil (metadata disabled).
type Recorder interface {
	SaveItem(rec storage.ItemRecord) error
}

// Controller drives the pipeline. Failures inside a single item are logged
// and contained; only source iteration errors abort the run.
type Controller struct {
	source      Source
	transcriber Transcriber
	publisher   Publisher
	recorder    Recorder
	store       *storage.LocalStorage
	itemDelay   time.Duration
	log         *logrus.Entry
}

// NewController wires the pipeline collaborators.
func NewController(
	source Source,
	transcriber Transcriber,
	publisher Publisher,
	recorder Recorder,
	store *storage.LocalStorage,
	itemDelay time.Duration,
	log *logrus.Logger,
) *Controller {
	return &Controller{
		source:      source,
		transcriber: transcriber,
		publisher:   publisher,
		recorder:    recorder,
		store:       store,
		itemDelay:   itemDelay,
		log:         log.WithField("component", "pipeline"),
	}
}

// runState is the explicit per-run mutable state: sequence counter,
// fingerprint index and tallies. Reset on every invocation, never shared.
type runState struct {
	runID      string
	seq        int
	tracker    *dedupe.Tracker
	completed  int
	duplicates int
	failures   int
}

// nextSeq advances the counter. Sequence numbers are assigned before the
// dedupe check and never reused, so duplicate discards leave gaps.
func (s *runState) nextSeq() int {
	s.seq++
	return s.seq
}

// Run performs one full pass over the channel history. The returned error
// is nil unless channel resolution or history iteration failed.
func (c *Controller) Run(ctx context.Context) error {
	channel, err := c.source.Channel(ctx)
	if err != nil {
		return err
	}
	channelName := storage.CleanFilename(channel.Title)

	state := &runState{
		runID:   uuid.New().String(),
		tracker: dedupe.NewTracker(),
	}

	log := c.log.WithFields(logrus.Fields{
		"run_id":  state.runID,
		"channel": channelName,
	})
	log.Info("processing channel")

	err = c.source.IterAudioMessages(ctx, func(item types.MediaItem) error {
		c.processItem(ctx, channelName, state, item)

		// fixed inter-item delay to respect external rate limits
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.itemDelay):
		}
		return nil
	})

	log.WithFields(logrus.Fields{
		"completed":  state.completed,
		"duplicates": state.duplicates,
		"failures":   state.failures,
	}).Info("run finished")

	return err
}

// processItem runs the per-item pipeline body. It never returns an error:
// every failure is logged with its stage and swallowed here so the next
// item still gets processed.
func (c *Controller) processItem(ctx context.Context, channelName string, state *runState, item types.MediaItem) {
	seq := state.nextSeq()
	name := storage.AudioFilename(channelName, seq, item.FileName, item.MessageID, item.Date)

	log := c.log.WithFields(logrus.Fields{
		"run_id":     state.runID,
		"file":       name,
		"message_id": item.MessageID,
		"sequence":   seq,
	})

	defer func() {
		if r := recover(); r != nil {
			state.failures++
			log.WithField("panic", r).Errorf("panic processing item\n%s", debug.Stack())
		}
	}()

	rec := storage.ItemRecord{
		RunID:     state.runID,
		Channel:   channelName,
		MessageID: item.MessageID,
		Sequence:  seq,
		FileName:  name,
	}

	path := c.store.AudioPath(name)
	log.Info("downloading")
	if err := c.source.Download(ctx, item, path); err != nil {
		state.failures++
		log.WithError(err).Error("download failed")
		rec.Status = types.StatusFailed
		c.record(log, rec)
		return
	}

	fingerprint, err := dedupe.Fingerprint(path)
	if err != nil {
		// cannot dedupe, keep the file and carry on
		log.WithError(err).Warn("fingerprint failed, keeping file")
		fingerprint = ""
	}
	rec.Fingerprint = fingerprint

	if fingerprint != "" && !state.tracker.CheckAndRecord(fingerprint, path) {
		state.duplicates++
		log.Info("duplicate content, discarding")
		if err := c.store.RemoveAudio(path); err != nil {
			log.WithError(err).Warn("failed to remove duplicate file")
		}
		rec.Status = types.StatusDuplicate
		c.record(log, rec)
		return
	}

	result, err := c.transcriber.Transcribe(ctx, path)
	if err != nil {
		state.failures++
		log.WithError(err).Error("transcription failed")
		rec.Status = types.StatusFailed
		c.record(log, rec)
		return
	}

	txtPath, err := c.store.SaveTranscript(name, result.Text)
	if err != nil {
		state.failures++
		log.WithError(err).Error("saving transcript failed")
		rec.Status = types.StatusFailed
		c.record(log, rec)
		return
	}
	rec.TranscriptPath = txtPath

	docID, err := c.publisher.Publish(ctx, channelName, name, result.Text)
	if err != nil {
		// transcript is already on disk, publishing is best effort
		log.WithError(err).Error("publishing failed, transcript kept locally")
	} else {
		rec.DocumentID = docID
	}

	state.completed++
	rec.Status = types.StatusCompleted
	c.record(log, rec)
	log.Info("item completed")
}

// record persists the item outcome when a recorder is configured. Metadata
// failures never affect the pipeline.
func (c *Controller) record(log *logrus.Entry, rec storage.ItemRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveItem(rec); err != nil {
		log.WithError(err).Warn("failed to save item record")
	}
}
