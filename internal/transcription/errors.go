package transcription

import (
	"errors"
	"fmt"
)

// ErrPollTimeout reports that a job did not reach a terminal status within
// the configured polling deadline. Distinct from a vendor-side failure.
var ErrPollTimeout = errors.New("transcription polling deadline exceeded")

// UploadError is a failure streaming audio bytes to the upload endpoint.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload audio: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// SubmitError is a failure submitting the transcription job.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return fmt.Sprintf("submit transcription job: %v", e.Err) }
func (e *SubmitError) Unwrap() error { return e.Err }

// PollError is a failure while polling the job, including a terminal
// "error" status reported by the service.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string { return fmt.Sprintf("poll transcription %s: %v", e.JobID, e.Err) }
func (e *PollError) Unwrap() error { return e.Err }
