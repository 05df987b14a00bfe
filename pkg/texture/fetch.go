package texture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxImageBytes caps a single fetched image.
const DefaultMaxImageBytes = 64 << 20

// Fetcher retrieves the raw bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// HTTPFetcher fetches images over HTTP(S).
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

// NewHTTPFetcher returns an HTTPFetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxBytes:  DefaultMaxImageBytes,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return data, nil
}

// FileFetcher reads images from the local filesystem. It accepts file://
// URLs and plain paths; relative paths are resolved against Root.
type FileFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := rawURL
	if strings.HasPrefix(rawURL, "file:") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		path = u.Path
	}
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	return os.ReadFile(path)
}

// MuxFetcher dispatches on the URL scheme.
type MuxFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// Fetch implements Fetcher.
func (m MuxFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if m.HTTP != nil {
			return m.HTTP.Fetch(ctx, rawURL)
		}
	case "file", "":
		if m.File != nil {
			return m.File.Fetch(ctx, rawURL)
		}
	}
	return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
}

// SharedFetcher coalesces concurrent fetches of the same URL. The low- and
// high-resolution paths decode the same source image, so a thumbnail and
// a full-size load racing for one node cost a single transfer.
type SharedFetcher struct {
	next  Fetcher
	group singleflight.Group
}

// NewSharedFetcher wraps next.
func NewSharedFetcher(next Fetcher) *SharedFetcher {
	return &SharedFetcher{next: next}
}

// Fetch implements Fetcher. The returned slice is shared between callers
// and must not be modified.
func (s *SharedFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	v, err, _ := s.group.Do(rawURL, func() (any, error) {
		return s.next.Fetch(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
