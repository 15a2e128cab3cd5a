package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMediaTooLarge is returned when a download exceeds the configured cap.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// Fetcher downloads media referenced by inbound messages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPFetcher fetches over HTTP with a per-call timeout and a size cap.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. Zero values fall back to 60s and 25 MiB.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &HTTPFetcher{client: client, timeout: timeout, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", errors.New("media url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes declared", ErrMediaTooLarge, resp.ContentLength)
	}

	data, err := readAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func readAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, maxBytes)
	}
	return data, nil
}
