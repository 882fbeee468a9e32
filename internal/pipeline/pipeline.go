// Package pipeline builds the configuration file the router runs with.
//
// A run loads the subscription, merges it into an empty document, injects
// the configured providers, then merges every override file found under the
// override directory in ascending path order. The output file is only
// written after all of that succeeded.
package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sskaje/clashctl/internal/directive"
	"github.com/sskaje/clashctl/internal/merge"
	"github.com/sskaje/clashctl/internal/provider"
	"github.com/sskaje/clashctl/internal/tree"
)

// IOError reports a file the pipeline could not read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Pipeline describes one configuration build.
type Pipeline struct {
	// BasePath is the subscription document.
	BasePath string
	// OverrideDir holds override documents. It may not exist.
	OverrideDir string
	// Providers are injected after the subscription is loaded.
	Providers []*tree.Mapping
	// OutputPath receives the merged document.
	OutputPath string
}

// Build returns the merged document without writing it.
func (p *Pipeline) Build() (*tree.Mapping, error) {
	base, err := load(p.BasePath)
	if err != nil {
		return nil, err
	}
	merged := merge.DeepMerge(base, tree.NewMapping())

	if err := provider.Expand(merged, p.Providers); err != nil {
		return nil, err
	}

	paths, err := FindOverrides(p.OverrideDir)
	if err != nil {
		return nil, err
	}

	// Parse everything first so a broken file aborts before any merge.
	overrides := make([]*tree.Mapping, 0, len(paths))
	for _, path := range paths {
		doc, err := load(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded override", "path", path)
		overrides = append(overrides, doc)
	}
	merge.MergeAll(merged, overrides...)

	return merged, nil
}

// Run builds the merged document and writes it to OutputPath.
func (p *Pipeline) Run() (*tree.Mapping, error) {
	merged, err := p.Build()
	if err != nil {
		return nil, err
	}
	data, err := directive.Marshal(merged)
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(p.OutputPath, data, 0644); err != nil {
		return nil, err
	}
	slog.Info("configuration written", "path", p.OutputPath)
	return merged, nil
}

// FindOverrides returns the YAML files below dir sorted by path. Returns nil
// if dir doesn't exist (not an error).
func FindOverrides(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "scan", Path: dir, Err: err}
	}

	sort.Strings(paths)
	return paths, nil
}

// Load reads and parses a single document.
func Load(path string) (*tree.Mapping, error) {
	return load(path)
}

func load(path string) (*tree.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return directive.Parse(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
