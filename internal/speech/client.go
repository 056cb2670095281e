// Package speech drives the external batch transcription service: submit one
// audio URL as an asynchronous job, poll the job to a terminal state, then
// download and flatten the transcript.
//
// Malformed-audio rejections come back as short-call Results, never as
// errors; only unexpected HTTP statuses and exhausted retries are errors.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Azure-Samples/tayra/internal/types"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 900 * time.Second

	// Waits mandated by the service's throttling behavior.
	networkRetryWait = 500 * time.Millisecond
	throttleWait     = 60 * time.Second
	serverErrorWait  = 120 * time.Second

	// maxCallAttempts bounds the retry loop around one HTTP call. The
	// original service retried these statuses indefinitely; a stuck endpoint
	// should fail the run instead.
	maxCallAttempts = 4
)

// ClientConfig carries the service endpoint and job payload settings.
type ClientConfig struct {
	Endpoint       string // e.g. https://<region>.api.cognitive.microsoft.com
	Key            string
	APIVersion     string
	ProfanityMode  string
	WordTimestamps bool
	Diarization    bool
	BaseModel      string // optional custom model self-URL
	Locales        []string

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client talks to the speech service. Safe for concurrent use; all mutable
// state lives in the per-call stack.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	log        *logrus.Entry

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Result is the terminal outcome of one transcription job. A non-empty
// ShortReason marks the non-throwing failure path.
type Result struct {
	Text        string
	ShortReason string
}

func shortResult(reason string) Result {
	return Result{Text: types.ShortCallText, ShortReason: reason}
}

func NewClient(cfg ClientConfig, log *logrus.Entry) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        log,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Transcribe runs the full submit → poll → download cycle for one signed
// audio URL.
func (c *Client) Transcribe(ctx context.Context, displayName, contentURL string) (Result, error) {
	jobURL, res, err := c.submit(ctx, displayName, contentURL)
	if err != nil || res.ShortReason != "" {
		return res, err
	}

	job, res, err := c.poll(ctx, jobURL)
	if err != nil || res.ShortReason != "" {
		return res, err
	}

	if job.Model != nil {
		c.log.WithField("model", job.Model.Self).Info("model being used")
	}
	if job.Status != "Succeeded" {
		c.log.WithField("job", jobURL).WithField("error", job.Error.Message).
			Error("speech batch job failed")
		return shortResult(types.ReasonBatchFailed), nil
	}

	text, err := c.download(ctx, job)
	if err != nil {
		return Result{}, err
	}
	if text == "" {
		return shortResult(types.ReasonEmptyTranscript), nil
	}
	return Result{Text: text}, nil
}

func (c *Client) submit(ctx context.Context, displayName, contentURL string) (string, Result, error) {
	payload := c.buildPayload(displayName, contentURL)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", Result{}, fmt.Errorf("marshal job payload: %w", err)
	}

	resp, short, err := c.call(ctx, http.MethodPost, c.submitURL(), body, true)
	if err != nil {
		return "", Result{}, err
	}
	if short != "" {
		c.log.WithField("job", displayName).WithField("reason", short).
			Warn("submit rejected audio; signaling short call")
		return "", shortResult(short), nil
	}

	jobURL := resp.header.Get("Operation-Location")
	if jobURL == "" {
		jobURL = resp.header.Get("Location")
	}
	if jobURL == "" {
		c.log.WithField("job", displayName).Error("speech batch job missing location header")
		return "", shortResult(types.ReasonMissingJobURL), nil
	}
	return c.normalizeJobURL(jobURL), Result{}, nil
}

// poll GETs the job document on a fixed interval until the status is terminal
// or the wall-clock timeout elapses. Timeout is a short-call result, not an
// error: one stuck job must not block its group forever.
func (c *Client) poll(ctx context.Context, jobURL string) (jobState, Result, error) {
	deadline := c.now().Add(c.cfg.PollTimeout)
	for c.now().Before(deadline) {
		resp, short, err := c.call(ctx, http.MethodGet, jobURL, nil, true)
		if err != nil {
			return jobState{}, Result{}, err
		}
		if short != "" {
			return jobState{}, shortResult(short), nil
		}

		var job jobState
		if err := json.Unmarshal(resp.body, &job); err != nil {
			return jobState{}, Result{}, fmt.Errorf("decode job status: %w", err)
		}
		c.log.WithField("job", jobURL).WithField("status", job.Status).Debug("polled speech batch job")

		if job.Status == "Succeeded" || job.Status == "Failed" {
			return job, Result{}, nil
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return jobState{}, Result{}, err
		}
	}

	c.log.WithField("job", jobURL).WithField("timeout", c.cfg.PollTimeout.String()).
		Error("speech batch job timed out")
	return jobState{}, shortResult(types.ReasonTimeout), nil
}

// download fetches the result manifest, locates the transcription entry, and
// joins the displayed text of every recognized phrase with single spaces.
func (c *Client) download(ctx context.Context, job jobState) (string, error) {
	if job.Links.Files == "" {
		c.log.Error("speech batch job does not contain files link")
		return "", nil
	}

	resp, short, err := c.call(ctx, http.MethodGet, job.Links.Files, nil, true)
	if err != nil {
		return "", err
	}
	if short != "" {
		return "", nil
	}

	var manifest filesManifest
	if err := json.Unmarshal(resp.body, &manifest); err != nil {
		return "", fmt.Errorf("decode files manifest: %w", err)
	}

	for _, entry := range manifest.Values {
		if !strings.EqualFold(entry.Kind, "transcription") {
			continue
		}
		contentURL := entry.Links.ContentURL
		if contentURL == "" {
			contentURL = entry.ContentURL
		}
		if contentURL == "" {
			continue
		}

		// Result content URLs are pre-signed; no subscription key.
		resp, _, err := c.call(ctx, http.MethodGet, contentURL, nil, false)
		if err != nil {
			return "", err
		}
		var transcript transcriptPayload
		if err := json.Unmarshal(resp.body, &transcript); err != nil {
			return "", fmt.Errorf("decode transcript: %w", err)
		}

		var segments []string
		for _, phrase := range transcript.CombinedRecognizedPhrases {
			if display := strings.TrimSpace(phrase.Display); display != "" {
				segments = append(segments, display)
			}
		}
		if len(segments) > 0 {
			return strings.Join(segments, " "), nil
		}
	}
	return "", nil
}

func (c *Client) buildPayload(displayName, contentURL string) jobPayload {
	payload := jobPayload{
		DisplayName: displayName,
		Description: "Tayra batch transcription",
		ContentUrls: []string{contentURL},
		Properties: jobProperties{
			Diarization: diarizationSettings{
				Enabled:         c.cfg.Diarization,
				MaxSpeakerCount: 10,
			},
			WordLevelTimestampsEnabled: c.cfg.WordTimestamps,
			ProfanityFilterMode:        c.cfg.ProfanityMode,
			TimeToLiveHours:            48,
		},
	}
	if len(c.cfg.Locales) > 0 {
		payload.Locale = c.cfg.Locales[0]
	}
	if len(c.cfg.Locales) > 1 {
		payload.Properties.LanguageIdentification = &languageIdentification{
			CandidateLocales: c.cfg.Locales,
			Mode:             "Continuous",
		}
	}
	if c.cfg.BaseModel != "" {
		payload.Model = &modelRef{Self: c.cfg.BaseModel}
		payload.Properties.WordLevelTimestampsEnabled = false
	}
	return payload
}

func (c *Client) submitURL() string {
	return fmt.Sprintf("%s/speechtotext/transcriptions:submit?api-version=%s",
		c.cfg.Endpoint, c.cfg.APIVersion)
}

// normalizeJobURL turns the submit operation URL into the job resource URL
// and makes sure the api-version survives.
func (c *Client) normalizeJobURL(jobURL string) string {
	normalized := strings.Replace(jobURL, "transcriptions:submit", "transcriptions", 1)
	if !strings.Contains(normalized, "api-version") {
		separator := "?"
		if strings.Contains(normalized, "?") {
			separator = "&"
		}
		normalized += separator + "api-version=" + c.cfg.APIVersion
	}
	return normalized
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
