// Package worktree provides file and repository status access within a checkout.
package worktree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// FS reads and writes files relative to the repository root.
type FS struct {
	fs afero.Fs
}

// NewFS returns an FS rooted at dir on the host filesystem.
func NewFS(dir string) *FS {
	// BasePathFs compares cleaned prefixes, which fails for relative roots like "."
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &FS{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewFSFrom wraps an existing afero filesystem; used with afero.NewMemMapFs in tests.
func NewFSFrom(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// ReadFile returns the contents of name.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(f.fs, name)
}

// WriteFile writes data to name, creating parent directories as needed.
func (f *FS) WriteFile(name string, data []byte) error {
	if dir := path.Dir(name); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return afero.WriteFile(f.fs, name, data, 0o644)
}

// Remove deletes name. A missing file is not an error.
func (f *FS) Remove(name string) error {
	if err := f.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Glob expands lock-file patterns against the filesystem. An entry naming an
// existing file, or one without glob syntax, is kept verbatim even when it
// does not exist. Matches of one pattern are sorted; the order of the entries
// is preserved and duplicates are dropped.
func (f *FS) Glob(patterns []string) ([]string, error) {
	iofs := afero.NewIOFS(f.fs)
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(path.Clean(pattern), "/")

		var matches []string
		if f.isLiteral(pattern) {
			matches = []string{pattern}
		} else {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid lock file pattern %q", pattern)
			}
			var err error
			matches, err = doublestar.Glob(iofs, pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding %q: %w", pattern, err)
			}
			sort.Strings(matches)
		}

		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				result = append(result, m)
			}
		}
	}

	return result, nil
}

func (f *FS) isLiteral(pattern string) bool {
	if !strings.ContainsAny(pattern, `*?[{\`) {
		return true
	}
	exists, err := afero.Exists(f.fs, pattern)
	return err == nil && exists
}
