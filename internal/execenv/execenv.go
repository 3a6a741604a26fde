// Package execenv builds the working directory and environment a compiler run executes in.
package execenv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/anthr76/relock/internal/config"
)

// Context is the execution configuration for one compiler run.
type Context struct {
	// Dir is the absolute working directory.
	Dir string
	// Env is the complete environment in KEY=value form, sorted by key.
	Env []string
	// Timeout bounds the run; zero disables the bound.
	Timeout time.Duration
	// Shell interprets the command line.
	Shell string
}

// EnvNames returns the variable names in Env, for logging without values.
func (c Context) EnvNames() []string {
	names := make([]string, 0, len(c.Env))
	for _, kv := range c.Env {
		name, _, _ := strings.Cut(kv, "=")
		names = append(names, name)
	}
	return names
}

// Builder creates execution contexts rooted at a repository checkout.
type Builder struct {
	RepoDir      string
	Shell        string
	Timeout      time.Duration
	EnvAllowlist []string
	ExtraEnv     map[string]string

	// LookupEnv reads host variables; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
}

// NewBuilder creates a Builder from configuration.
func NewBuilder(repoDir string, cfg config.ExecConfig) (*Builder, error) {
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("resolving repository directory: %w", err)
	}

	return &Builder{
		RepoDir:      abs,
		Shell:        cfg.Shell,
		Timeout:      cfg.Timeout,
		EnvAllowlist: cfg.EnvAllowlist,
		ExtraEnv:     cfg.ExtraEnv,
	}, nil
}

// Build returns the context for compiling inputFileName (relative to the
// repository root). env holds registry variables and overrides everything else.
func (b *Builder) Build(inputFileName string, env map[string]string) (Context, error) {
	rel := filepath.Clean(filepath.FromSlash(inputFileName))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Context{}, fmt.Errorf("input file %q is outside the repository", inputFileName)
	}

	lookup := b.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	merged := make(map[string]string)
	for _, name := range b.EnvAllowlist {
		if value, ok := lookup(name); ok {
			merged[name] = value
		}
	}
	// viper lower-cases map keys; environment names are conventionally upper case
	for name, value := range b.ExtraEnv {
		merged[strings.ToUpper(name)] = value
	}
	for name, value := range env {
		merged[name] = value
	}

	shell := b.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	return Context{
		Dir:     filepath.Join(b.RepoDir, filepath.Dir(rel)),
		Env:     flatten(merged),
		Timeout: b.Timeout,
		Shell:   shell,
	}, nil
}

func flatten(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}
