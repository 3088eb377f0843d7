// Package source opens the inputs of a concatenation from local files or HTTP.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRetries    = 3
	defaultRetryDelay = 100 * time.Millisecond
)

// Opener opens one input stream
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options controls how remote inputs are fetched
type Options struct {
	Client     *http.Client
	UserAgent  string
	Retries    int
	RetryDelay time.Duration
	Log        zerolog.Logger
}

// NewClient creates an HTTP client that gives up on servers that take longer
// than timeout to start responding. The body itself is not subject to a deadline.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// Parse returns an opener for an http(s) URL or a local path
func Parse(ref string, opts Options) Opener {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return &HTTP{URL: ref, Options: opts}
	}
	return File(ref)
}

// File is an input read from the local filesystem
type File string

// Open opens the file
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f File) String() string { return string(f) }

// HTTP is an input fetched with a GET request
type HTTP struct {
	URL string
	Options
}

func (h *HTTP) String() string { return h.URL }

// Open issues the request, retrying on transport errors and non-200
// responses, and returns the response body unread.
func (h *HTTP) Open(ctx context.Context) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	retries := h.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := h.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			// not recoverable
			return nil, fmt.Errorf("failed to create request for %s: %w", h.URL, err)
		}
		if h.UserAgent != "" {
			req.Header.Set("User-Agent", h.UserAgent)
		}
		resp, err := client.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				return resp.Body, nil
			}
			resp.Body.Close()
			err = fmt.Errorf("status %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("attempt %d/%d for %s: %w", attempt, retries, h.URL, err)
		if ctx.Err() != nil {
			return nil, lastErr
		}
		h.Log.Warn().Err(lastErr).Msg("fetch failed")
		if attempt == retries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		}
	}
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", h.URL, retries, lastErr)
}
