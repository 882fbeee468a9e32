// Package subscription downloads and verifies the remote configuration the
// merged document is built from.
//
// Every verified download is kept as download/config_<timestamp>.yaml and
// download/latest_config.yaml is a symlink to the newest one.
package subscription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrDownload is returned when the subscription cannot be fetched.
var ErrDownload = errors.New("subscription download failed")

// Verifier checks that file, located in dir, is a configuration the router
// accepts.
type Verifier interface {
	Verify(ctx context.Context, dir, file string) error
}

// Fetcher downloads a subscription and keeps verified versions.
type Fetcher struct {
	URL string
	// DownloadDir receives versioned copies and the latest symlink.
	DownloadDir string
	// LatestName is the symlink name below DownloadDir.
	LatestName string
	// TestDir holds the candidate file while it is verified.
	TestDir  string
	Verifier Verifier
	Client   *http.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

// LatestPath returns the path of the latest symlink.
func (f *Fetcher) LatestPath() string {
	return filepath.Join(f.DownloadDir, f.LatestName)
}

// Fetch downloads the subscription. If it is identical to the latest
// version the latest path is returned; otherwise the new content is
// verified, stored, and its versioned path returned.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	content, err := f.download(ctx)
	if err != nil {
		return "", err
	}

	latest := f.LatestPath()
	if current, err := os.ReadFile(latest); err == nil && bytes.Equal(current, content) {
		slog.Info("subscription not changed", "path", latest)
		return latest, nil
	}

	if err := os.MkdirAll(f.TestDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", f.TestDir, err)
	}
	candidate, err := os.CreateTemp(f.TestDir, "subscription-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(candidate.Name())
	if _, err := candidate.Write(content); err != nil {
		candidate.Close()
		return "", fmt.Errorf("failed to write %s: %w", candidate.Name(), err)
	}
	if err := candidate.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", candidate.Name(), err)
	}

	if err := f.Verifier.Verify(ctx, f.TestDir, candidate.Name()); err != nil {
		return "", fmt.Errorf("unable to verify subscription: %w", err)
	}
	slog.Info("subscription verified")

	return f.store(content)
}

func (f *Fetcher) download(ctx context.Context) ([]byte, error) {
	if f.URL == "" {
		return nil, fmt.Errorf("%w: no subscription URL configured", ErrDownload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrDownload, resp.Status)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return content, nil
}

// store writes a versioned copy and points the latest symlink at it.
func (f *Fetcher) store(content []byte) (string, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	if err := os.MkdirAll(f.DownloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", f.DownloadDir, err)
	}
	versioned := filepath.Join(f.DownloadDir, "config_"+now().Format("20060102_150405")+".yaml")
	if err := os.WriteFile(versioned, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", versioned, err)
	}

	latest := f.LatestPath()
	if err := os.Remove(latest); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove %s: %w", latest, err)
	}
	if err := os.Symlink(versioned, latest); err != nil {
		return "", fmt.Errorf("failed to link %s: %w", latest, err)
	}
	slog.Info("subscription stored", "path", versioned)
	return versioned, nil
}
