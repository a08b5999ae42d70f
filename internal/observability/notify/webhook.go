package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Poster delivers JSON bodies to an HTTP endpoint with linear-backoff retries.
type Poster struct {
	// Name labels errors, e.g. "slack".
	Name       string
	Client     *http.Client
	RetryLimit int
}

// NewPoster builds a Poster with a default client honouring timeout.
func NewPoster(name string, client *http.Client, timeout time.Duration, retries int) Poster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return Poster{Name: name, Client: client, RetryLimit: max(retries, 0)}
}

// Post sends body to url, retrying up to RetryLimit times.
func (p Poster) Post(ctx context.Context, url string, body []byte) error {
	attempts := p.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err := p.post(ctx, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (p Poster) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.errorResponse(resp)
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if drainErr != nil || closeErr != nil {
		return errors.Join(
			wrapIf(drainErr, "drain "+p.Name+" response body"),
			wrapIf(closeErr, "close response body"),
		)
	}
	return nil
}

func (p Poster) errorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil || closeErr != nil {
		return errors.Join(
			wrapIf(readErr, "read "+p.Name+" error response"),
			wrapIf(closeErr, "close response body"),
		)
	}
	return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(respBody)))
}

func wrapIf(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
