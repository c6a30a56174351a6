// Package fetch materializes remote or local job sources into a job's
// scratch directory.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Fetcher downloads job sources. HTTP(S) sources are fetched with a bounded
// client; anything else is treated as a local file path and copied.
type Fetcher struct {
	log    *slog.Logger
	client *http.Client
}

func New(log *slog.Logger, timeout time.Duration) *Fetcher {
	return &Fetcher{
		log:    log,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch materializes one source into destPath. A non-2xx response is an
// error naming the offending URL and status code.
func (f *Fetcher) Fetch(ctx context.Context, source, destPath string) error {
	if isHTTP(source) {
		return f.fetchHTTP(ctx, source, destPath)
	}
	return copyFile(source, destPath)
}

// FetchAll materializes every source into destDir, named by list position so
// downstream ordering follows the input order. Downloads run concurrently;
// the first failure cancels the rest.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string, destDir string) ([]string, error) {
	paths := make([]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		dest := filepath.Join(destDir, fmt.Sprintf("source_%03d%s", i, sourceExt(source)))
		paths[i] = dest
		g.Go(func() error {
			return f.Fetch(gctx, source, dest)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, source, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", source, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch %s: status %d", source, resp.StatusCode)
	}

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer func() { _ = dst.Close() }()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("save %s: %w", source, err)
	}
	f.log.Debug("source fetched", "source", source, "dest", destPath)
	return nil
}

func copyFile(source, destPath string) error {
	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open source %s: %w", source, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer func() { _ = dst.Close() }()
	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("copy %s: %w", source, err)
	}
	return nil
}

func isHTTP(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// sourceExt extracts a usable file extension from a source reference.
func sourceExt(source string) string {
	if isHTTP(source) {
		if u, err := url.Parse(source); err == nil {
			return path.Ext(u.Path)
		}
		return ""
	}
	return filepath.Ext(source)
}
