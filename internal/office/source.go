package office

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultFetchTimeout bounds a single request to the office list endpoint
const DefaultFetchTimeout = 20 * time.Second

// maxBody caps how much of a response is read
const maxBody = 8 << 20

// Source provides raw office list JSON
type Source interface {
	// Fetch returns the office list document
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPSource fetches the office list with a plain GET
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPSource creates a source for url. A zero timeout uses DefaultFetchTimeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPSource{url: url, timeout: timeout, client: &http.Client{}}
}

// Fetch performs the GET. Any non-2xx status is an error.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.url == "" {
		return nil, errors.New("office api url is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch office list: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("office list request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read office list response: %w", err)
	}
	return body, nil
}

// FileSource reads the office list from disk
type FileSource struct {
	Path string
}

// Fetch reads the file
func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, errors.New("office file path is not configured")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read office file: %w", err)
	}
	return data, nil
}
