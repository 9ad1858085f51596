// Package fetch retrieves component source text.
//
// The runtime consumes a single Fetcher interface; the default
// implementation serves http(s) URLs through net/http and anything else
// from the local filesystem. Cache wraps any Fetcher with a process-wide
// read-mostly source cache and singleflight de-duplication so concurrent
// registrations of the same path fetch exactly once.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves the text content of a URL or file path.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Func adapts a plain function to the Fetcher interface.
type Func func(ctx context.Context, url string) (string, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Client fetches http(s) URLs over the network and everything else from the
// local filesystem.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client with a sane default timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	data, err := os.ReadFile(url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Cache wraps a Fetcher with a source text cache. The cache is populated
// once per path and read-mostly afterwards; concurrent fetches of one path
// collapse into a single underlying request.
type Cache struct {
	fetcher Fetcher
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[string]string
}

// NewCache creates a cache over the given fetcher.
func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[string]string),
	}
}

// Fetch implements Fetcher with caching and in-flight de-duplication.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	c.mu.RLock()
	if text, ok := c.entries[url]; ok {
		c.mu.RUnlock()
		return text, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do(url, func() (interface{}, error) {
		text, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[url] = text
		c.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops a cached entry, used by the preview server when a source
// file changes on disk.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
