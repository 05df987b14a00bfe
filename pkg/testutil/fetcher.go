package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Fetcher for unknown URLs.
var ErrNotFound = errors.New("not found")

// Fetcher serves scripted responses and counts calls per URL. It is safe
// for concurrent use.
type Fetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  map[string]int
	order  []string
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Serve makes url return body.
func (f *Fetcher) Serve(url string, body []byte) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
	delete(f.errs, url)
	return f
}

// Fail makes url return err.
func (f *Fetcher) Fail(url string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	return f
}

// Fetch serves the scripted response.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	f.order = append(f.order, url)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	return body, nil
}

// Calls returns how often url was fetched.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Total returns the number of fetches across all URLs.
func (f *Fetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// Order returns fetched URLs in call order.
func (f *Fetcher) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}
