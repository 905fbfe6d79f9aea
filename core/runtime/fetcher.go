package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const chunkSize = 32 * 1024

var ErrNotFound = errors.New("resource not found")

// ProgressFunc receives the bytes read so far and the expected total, which
// is -1 when unknown.
type ProgressFunc func(read, total int64)

// Fetcher retrieves the bytes behind a location. Implementations must stop
// between chunks once ctx is done.
type Fetcher interface {
	Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error)
}

// joinLocation appends path elements to a URL or filesystem location.
func joinLocation(base string, elems ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, e := range elems {
		out += "/" + strings.Trim(e, "/")
	}
	return out
}

// readChunks copies r into memory chunk by chunk, reporting progress and
// checking ctx between chunks.
func readChunks(ctx context.Context, r io.Reader, total int64, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, chunkSize)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			read += int64(n)
			if progress != nil {
				progress(read, total)
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// FileFetcher reads plain paths and file:// URLs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	p := strings.TrimPrefix(location, "file://")
	f, err := os.Open(filepath.FromSlash(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, err
	}
	defer f.Close()

	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	return readChunks(ctx, f, total, progress)
}

// HTTPFetcher downloads over http and https.
type HTTPFetcher struct {
	Client *http.Client
}

func (h HTTPFetcher) Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s fetching %s", resp.Status, location)
	}
	return readChunks(ctx, resp.Body, resp.ContentLength, progress)
}

// MuxFetcher routes a location to a fetcher by URL scheme. Locations without
// a scheme are treated as file paths.
type MuxFetcher struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewMuxFetcher() *MuxFetcher {
	m := &MuxFetcher{fetchers: make(map[string]Fetcher)}
	m.Handle("file", FileFetcher{})
	m.Handle("http", HTTPFetcher{})
	m.Handle("https", HTTPFetcher{})
	return m
}

func (m *MuxFetcher) Handle(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[scheme] = f
}

func (m *MuxFetcher) Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	scheme := "file"
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		scheme = u.Scheme
	}
	m.mu.RLock()
	f, ok := m.fetchers[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for scheme %q", scheme)
	}
	return f.Fetch(ctx, location, progress)
}

// MemoryFetcher serves locations from memory. A gated location blocks until
// its gate is closed or the fetch is cancelled.
type MemoryFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	gates map[string]chan struct{}
	calls map[string]int
	fails map[string]error
}

func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		files: make(map[string][]byte),
		gates: make(map[string]chan struct{}),
		calls: make(map[string]int),
		fails: make(map[string]error),
	}
}

func (m *MemoryFetcher) Put(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[location] = data
	delete(m.fails, location)
}

func (m *MemoryFetcher) Remove(location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
}

// Fail makes every fetch of location return err.
func (m *MemoryFetcher) Fail(location string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[location] = err
}

// Gate blocks fetches of location until the returned channel is closed.
func (m *MemoryFetcher) Gate(location string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := make(chan struct{})
	m.gates[location] = g
	return g
}

func (m *MemoryFetcher) Calls(location string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[location]
}

func (m *MemoryFetcher) Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	m.mu.Lock()
	m.calls[location]++
	gate := m.gates[location]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	data, ok := m.files[location]
	failure := m.fails[location]
	m.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return readChunks(ctx, bytes.NewReader(data), int64(len(data)), progress)
}
