// Package source turns a background video reference into a local file.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source is a resolved video file. Temporary files were created for the job
// and belong to the caller's cleanup.
type Source struct {
	Path      string
	Temporary bool
}

var ErrEmptyReference = errors.New("empty video reference")

// Resolver downloads remote references into a job-scoped work directory and
// passes local paths through.
type Resolver struct {
	workDir    string
	httpClient *http.Client
	userAgent  string
}

func NewResolver(workDir string, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{
		workDir:    workDir,
		httpClient: httpClient,
		userAgent:  "StoryScroll/0.1",
	}
}

// JobDir returns the directory holding every temporary file of a job.
func JobDir(workDir, jobID string) string {
	return filepath.Join(workDir, jobID)
}

// Resolve returns a local path for ref. Remote URLs are streamed to
// <workDir>/<jobID>/source<ext>; a partial download is removed on failure.
func (r *Resolver) Resolve(ctx context.Context, jobID, ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Source{}, ErrEmptyReference
	}

	if u, ok := remoteURL(ref); ok {
		p, err := r.download(ctx, jobID, u)
		if err != nil {
			return Source{}, err
		}
		return Source{Path: p, Temporary: true}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return Source{}, fmt.Errorf("local video %s: %w", ref, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("local video %s is a directory", ref)
	}
	return Source{Path: ref, Temporary: false}, nil
}

func remoteURL(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	default:
		return nil, false
	}
}

func (r *Resolver) download(ctx context.Context, jobID string, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	dir := JobDir(r.workDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}

	dst := filepath.Join(dir, "source"+extension(u))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(dst)
		if copyErr != nil {
			return "", fmt.Errorf("download interrupted: %w", copyErr)
		}
		return "", fmt.Errorf("failed to write %s: %w", dst, closeErr)
	}
	return dst, nil
}

func extension(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 6 {
		return ".mp4"
	}
	return ext
}
