package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Azure-Samples/tayra/internal/types"
)

type response struct {
	status int
	header http.Header
	body   []byte
}

type disposition int

const (
	decideOK disposition = iota
	decideRetry
	decideShortCall
	decideFatal
)

// classify maps an HTTP status (and, for 400s, the body) onto the retry
// taxonomy: throttling and server errors are retryable with status-specific
// waits, malformed-audio rejections become short-call sentinels, everything
// else non-2xx is fatal.
func classify(status int, body []byte) (disposition, time.Duration, string) {
	switch {
	case status >= 200 && status < 300:
		return decideOK, 0, ""
	case status == http.StatusTooManyRequests:
		return decideRetry, throttleWait, ""
	case status == http.StatusInternalServerError,
		status == http.StatusServiceUnavailable,
		status == http.StatusRequestTimeout,
		status == 499:
		return decideRetry, serverErrorWait, ""
	case status == http.StatusBadRequest:
		if reason := shortCallReason(body); reason != "" {
			return decideShortCall, 0, reason
		}
	}
	return decideFatal, 0, ""
}

func shortCallReason(body []byte) string {
	switch {
	case bytes.Contains(body, []byte("EmptyAudioFile")):
		return types.ReasonEmptyAudio
	case bytes.Contains(body, []byte("InvalidAudioFile")):
		return types.ReasonInvalidAudio
	case bytes.Contains(body, []byte("Maximal audio length exceeded")):
		return types.ReasonLengthExceeded
	}
	return ""
}

// call performs one logical HTTP call under the full retry policy: a single
// immediate retry on network errors (inside do), then a bounded loop over
// retryable statuses with their mandated waits. The returned string is a
// short-call reason; it is empty on success.
func (c *Client) call(ctx context.Context, method, url string, payload []byte, authenticated bool) (response, string, error) {
	for attempt := 1; ; attempt++ {
		resp, err := c.do(ctx, method, url, payload, authenticated)
		if err != nil {
			return response{}, "", err
		}

		decision, wait, reason := classify(resp.status, resp.body)
		switch decision {
		case decideOK:
			return resp, "", nil
		case decideShortCall:
			return resp, reason, nil
		case decideRetry:
			if attempt >= maxCallAttempts {
				return response{}, "", fmt.Errorf("%s %s: status %d after %d attempts", method, url, resp.status, attempt)
			}
			c.log.WithField("url", url).WithField("status", resp.status).
				WithField("wait", wait.String()).Error("server error; trying again")
			if err := c.sleep(ctx, wait); err != nil {
				return response{}, "", err
			}
		default:
			return response{}, "", fmt.Errorf("%s %s: unexpected status %d: %s", method, url, resp.status, truncate(resp.body, 512))
		}
	}
}

// do sends the request once, retrying a single time after a short pause on
// network-level failure. Non-2xx responses are returned, not errors; call
// classifies them.
func (c *Client) do(ctx context.Context, method, url string, payload []byte, authenticated bool) (response, error) {
	var resp response
	operation := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if authenticated {
			req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.WithField("url", url).WithField("error", err.Error()).
				Error("network error; trying again")
			return err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}
		resp = response{status: httpResp.StatusCode, header: httpResp.Header, body: data}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(networkRetryWait), 1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return response{}, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
