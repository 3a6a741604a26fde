package worktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrStatusUnavailable is returned when the repository status cannot be read.
var ErrStatusUnavailable = errors.New("repository status unavailable")

// Status lists changed tracked paths relative to the repository root.
// Untracked files are not reported.
type Status struct {
	Modified []string
	Deleted  []string
}

// IsModified reports whether p is among the modified paths.
func (s *Status) IsModified(p string) bool {
	return contains(s.Modified, p)
}

// IsDeleted reports whether p is among the deleted paths.
func (s *Status) IsDeleted(p string) bool {
	return contains(s.Deleted, p)
}

func contains(paths []string, p string) bool {
	for _, m := range paths {
		if m == p {
			return true
		}
	}
	return false
}

// within keeps the paths under prefix and makes them relative to it.
func (s *Status) within(prefix string) *Status {
	if prefix == "" {
		return s
	}
	trim := func(paths []string) []string {
		var out []string
		for _, p := range paths {
			if rel, ok := strings.CutPrefix(p, prefix); ok {
				out = append(out, rel)
			}
		}
		return out
	}
	return &Status{Modified: trim(s.Modified), Deleted: trim(s.Deleted)}
}

// Git reads repository status with the git CLI.
type Git struct {
	Dir    string
	Binary string
}

// NewGit returns a Git for the checkout at dir.
func NewGit(dir string) *Git {
	return &Git{Dir: dir, Binary: "git"}
}

// Status runs git status and classifies the changed paths. Paths are
// relative to Dir, which may be a subdirectory of the checkout; changes
// outside Dir are dropped.
func (g *Git) Status(ctx context.Context) (*Status, error) {
	// git prints status paths relative to the top level, whatever -C says
	prefix, err := g.run(ctx, "rev-parse", "--show-prefix")
	if err != nil {
		return nil, err
	}

	out, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=no")
	if err != nil {
		return nil, err
	}

	status, err := ParsePorcelain(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	return status.within(strings.TrimSpace(string(prefix))), nil
}

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, append([]string{"-C", g.Dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: git %s: %w: %s", ErrStatusUnavailable, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ParsePorcelain parses NUL-separated `git status --porcelain=v1 -z` output.
// Renames and copies report the destination path.
func ParsePorcelain(out []byte) (*Status, error) {
	status := &Status{}
	entries := strings.Split(string(out), "\x00")

	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if entry == "" {
			continue
		}
		if len(entry) < 4 || entry[2] != ' ' {
			return nil, fmt.Errorf("malformed status entry %q", entry)
		}

		x, y, p := entry[0], entry[1], entry[3:]
		if x == 'R' || x == 'C' || y == 'R' || y == 'C' {
			// source path follows as its own entry
			i++
		}

		switch {
		case x == '!' && y == '!', x == '?' && y == '?':
			// ignored and untracked
		case x == 'D' || y == 'D':
			status.Deleted = append(status.Deleted, p)
		default:
			status.Modified = append(status.Modified, p)
		}
	}

	return status, nil
}
