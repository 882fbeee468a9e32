// Package dashboard installs web dashboards served by the router's external
// controller.
package dashboard

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// target directory.
var ErrUnsafePath = errors.New("archive entry escapes target directory")

// DefaultBaseURL is where repositories are downloaded from.
const DefaultBaseURL = "https://github.com"

// Installer downloads the gh-pages branch of dashboard repositories.
type Installer struct {
	// Dir receives one subdirectory per dashboard.
	Dir     string
	BaseURL string
	Client  *http.Client
	// Progress, if set, is called before each download and the returned
	// function once it finished.
	Progress func(repo string) func()
}

// Name returns the directory a repository is installed into.
func Name(repo string) string {
	return path.Base(strings.TrimSuffix(repo, "/"))
}

// ArchiveURL returns the tarball URL of the gh-pages branch of repo.
func (i *Installer) ArchiveURL(repo string) string {
	base := i.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/archive/refs/heads/gh-pages.tar.gz", strings.TrimSuffix(base, "/"), repo)
}

// Install downloads and unpacks every repository, stopping at the first
// failure.
func (i *Installer) Install(ctx context.Context, repos []string) error {
	for _, repo := range repos {
		done := func() {}
		if i.Progress != nil {
			done = i.Progress(repo)
		}
		err := i.install(ctx, repo)
		done()
		if err != nil {
			return err
		}
	}
	return nil
}

// install replaces the installed copy of a single repository.
func (i *Installer) install(ctx context.Context, repo string) error {
	url := i.ArchiveURL(repo)
	slog.Debug("downloading dashboard", "repo", repo, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot download %s: %w", repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot download %s: %s", repo, resp.Status)
	}

	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(i.Dir, ".dashboard-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0o755); err != nil {
		return err
	}

	if err := Extract(resp.Body, staging); err != nil {
		return fmt.Errorf("cannot unpack %s: %w", repo, err)
	}

	target := filepath.Join(i.Dir, Name(repo))
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if err := os.Rename(staging, target); err != nil {
		return err
	}
	slog.Info("dashboard installed", "repo", repo, "dir", target)
	return nil
}

// Extract unpacks a gzip-compressed tarball into dir, dropping the first
// path component of every entry.
func Extract(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name, ok := stripFirst(hdr.Name)
		if !ok {
			continue
		}
		target, err := safeJoin(dir, name)
		if err != nil {
			return fmt.Errorf("%w: %s", err, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			slog.Debug("skipping archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func stripFirst(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	_, rest, found := strings.Cut(name, "/")
	if !found || strings.Trim(rest, "/") == "" {
		return "", false
	}
	return rest, true
}

func safeJoin(dir, name string) (string, error) {
	if path.IsAbs(name) {
		return "", ErrUnsafePath
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
