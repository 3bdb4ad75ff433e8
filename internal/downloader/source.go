// Package downloader fetches repository files and extension archives.
package downloader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// maxFileSize bounds a single fetched file
const maxFileSize = 512 << 20

// Source reads files relative to a repository location. Missing files are
// reported with an error matching fs.ErrNotExist.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Location() string
}

// NewSource returns an HTTP source for http(s) URLs and a directory source
// for anything else, including file:// URLs
func NewSource(location string, timeout time.Duration) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, timeout)
	}
	if u, err := url.Parse(location); err == nil && u.Scheme == "file" {
		location = u.Path
	}
	return &DirSource{Dir: location}
}

// HTTPSource reads files below a base URL
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTP source; a zero timeout uses the default
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Location implements Source
func (s *HTTPSource) Location() string {
	return s.baseURL
}

// Read implements Source
func (s *HTTPSource) Read(ctx context.Context, name string) ([]byte, error) {
	target := s.baseURL + "/" + strings.TrimPrefix(path.Clean("/"+name), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", target, fs.ErrNotExist)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", target, err)
	}
	if len(body) > maxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", target, maxFileSize)
	}
	return body, nil
}

// DirSource reads files below a local directory
type DirSource struct {
	Dir string
}

// Location implements Source
func (s *DirSource) Location() string {
	return s.Dir
}

// Read implements Source
func (s *DirSource) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+name), "/"))
	return os.ReadFile(filepath.Join(s.Dir, clean))
}
