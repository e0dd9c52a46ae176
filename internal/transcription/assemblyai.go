// Package transcription drives the AssemblyAI speech-to-text protocol:
// upload the audio bytes, submit a job, poll it to completion.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/sylverboss/telegram-audio-transcriber/internal/types"
)

const DefaultBaseURL = "https://api.assemblyai.com/v2"

// Job status values returned by GET /transcript/{id}
const (
	jobQueued     = "queued"
	jobProcessing = "processing"
	jobCompleted  = "completed"
	jobError      = "error"
)

// Client is an AssemblyAI API client. One Transcribe call drives one job
// through Uploading -> Submitted -> Polling -> {Completed | Failed}.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	languageCode string
	pollInterval time.Duration
	pollTimeout  time.Duration
	log          *logrus.Entry
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	LanguageCode string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPClient   *http.Client
}

// NewClient creates a transcription client.
func NewClient(apiKey string, opts Options, log *logrus.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = "fr"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 30 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Client{
		httpClient:   opts.HTTPClient,
		baseURL:      opts.BaseURL,
		apiKey:       apiKey,
		languageCode: opts.LanguageCode,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		log:          log.WithField("component", "transcription"),
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe runs the full three-phase protocol for one local file and
// returns the finished text. Failures are typed per phase (*UploadError,
// *SubmitError, *PollError); a polling deadline surfaces ErrPollTimeout.
func (c *Client) Transcribe(ctx context.Context, path string) (*types.TranscriptionResult, error) {
	log := c.log.WithField("file", path)
	log.Info("starting transcription")

	audioURL, err := c.upload(ctx, path)
	if err != nil {
		return nil, &UploadError{Err: err}
	}

	jobID, err := c.submit(ctx, audioURL)
	if err != nil {
		return nil, &SubmitError{Err: err}
	}
	log.WithField("job_id", jobID).Info("transcription job submitted")

	text, err := c.poll(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrPollTimeout) {
			return nil, err
		}
		return nil, &PollError{JobID: jobID, Err: err}
	}

	log.WithField("job_id", jobID).Info("transcription completed")
	return &types.TranscriptionResult{
		JobID:       jobID,
		Text:        text,
		Status:      types.StatusCompleted,
		ProcessedAt: time.Now(),
	}, nil
}

// upload streams the file body to POST /upload and returns the opaque
// audio resource URL. The body is consumed, so this phase is not retried.
func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("authorization", c.apiKey)
	req.Header.Set("content-type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}

	return out.UploadURL, nil
}

// submit posts the job request and returns the job identifier.
func (c *Client) submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(submitRequest{
		AudioURL:     audioURL,
		LanguageCode: c.languageCode,
	})
	if err != nil {
		return "", err
	}

	var out transcriptResponse
	err = c.doJSON(ctx, http.MethodPost, c.baseURL+"/transcript", payload, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("transcript response missing id")
	}

	return out.ID, nil
}

// poll fetches job status on a fixed interval until the job reaches a
// terminal state or the overall deadline expires.
func (c *Client) poll(ctx context.Context, jobID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	endpoint := c.baseURL + "/transcript/" + jobID
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var out transcriptResponse
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("%w after %s", ErrPollTimeout, c.pollTimeout)
			}
			return "", err
		}

		switch out.Status {
		case jobCompleted:
			return out.Text, nil
		case jobError:
			return "", fmt.Errorf("service reported error: %s", out.Error)
		case jobQueued, jobProcessing:
			c.log.WithFields(logrus.Fields{
				"job_id": jobID,
				"status": out.Status,
			}).Debug("transcription in progress")
		default:
			return "", fmt.Errorf("unknown job status %q", out.Status)
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("%w after %s", ErrPollTimeout, c.pollTimeout)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// doJSON performs one JSON request, retrying transient server errors with
// bounded exponential backoff. The request is rebuilt per attempt.
func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, target interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("authorization", c.apiKey)
		if payload != nil {
			req.Header.Set("content-type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, data)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data))
		}
		if err := json.Unmarshal(data, target); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
