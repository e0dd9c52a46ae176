// Package cleanup prunes stale downloads left behind by previous runs.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically deletes files older than maxAge from the download
// directory. Disabled when maxAge or interval is zero.
type Scheduler struct {
	downloadDir string
	interval    time.Duration
	maxAge      time.Duration
	stopChan    chan struct{}
	log         *logrus.Entry
}

// NewScheduler creates a cleanup scheduler.
func NewScheduler(downloadDir string, interval, maxAge time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		downloadDir: downloadDir,
		interval:    interval,
		maxAge:      maxAge,
		stopChan:    make(chan struct{}),
		log:         log.WithField("component", "cleanup"),
	}
}

// Start runs an initial sweep and then sweeps on the configured interval.
func (s *Scheduler) Start() {
	if s.interval <= 0 || s.maxAge <= 0 {
		s.log.Debug("cleanup disabled")
		return
	}

	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{
		"interval": s.interval,
		"max_age":  s.maxAge,
	}).Info("cleanup scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	if s.interval <= 0 || s.maxAge <= 0 {
		return
	}
	close(s.stopChan)
}

// sweep deletes stale files under the download directory.
func (s *Scheduler) sweep() {
	now := time.Now()
	var deleted int

	err := filepath.Walk(s.downloadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if now.Sub(info.ModTime()) > s.maxAge {
			if err := os.Remove(path); err != nil {
				s.log.WithError(err).WithField("file", path).Warn("failed to delete stale file")
			} else {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("cleanup sweep failed")
	}

	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("stale downloads removed")
	}
}
