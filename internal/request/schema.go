// Package request provides the update request and report types and their file formats.
package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anthr76/relock/internal/hash"
)

// Schema version for the report format.
const SchemaVersion = 1

// Request is an immutable instruction to regenerate the lock files of one package file.
type Request struct {
	// PackageFile is the input manifest path, relative to the repository root.
	PackageFile string `json:"packageFile" yaml:"packageFile" toml:"packageFile"`
	// NewPackageFileContent is written to PackageFile before every compiler run.
	NewPackageFileContent string `json:"newPackageFileContent,omitempty" yaml:"newPackageFileContent,omitempty" toml:"newPackageFileContent,omitempty"`
	// UpdatedDeps are the dependency updates that triggered the request.
	UpdatedDeps []Dependency `json:"updatedDeps,omitempty" yaml:"updatedDeps,omitempty" toml:"updatedDeps,omitempty"`
	// LockFiles are the outputs to regenerate, relative to the repository root.
	LockFiles []string `json:"lockFiles" yaml:"lockFiles" toml:"lockFiles"`
	// IsLockFileMaintenance deletes each lock file before running, forcing a full resolution.
	IsLockFileMaintenance bool `json:"isLockFileMaintenance,omitempty" yaml:"isLockFileMaintenance,omitempty" toml:"isLockFileMaintenance,omitempty"`
}

// Dependency is a single update intent.
type Dependency struct {
	DepName    string `json:"depName,omitempty" yaml:"depName,omitempty" toml:"depName,omitempty"`
	NewVersion string `json:"newVersion,omitempty" yaml:"newVersion,omitempty" toml:"newVersion,omitempty"`
	// IsLockfileUpdate marks a re-pin that leaves the manifest constraint untouched.
	IsLockfileUpdate bool `json:"isLockfileUpdate,omitempty" yaml:"isLockfileUpdate,omitempty" toml:"isLockfileUpdate,omitempty"`
}

// LockfileUpdates returns the dependencies flagged as lockfile-only, in input order.
func (r Request) LockfileUpdates() []Dependency {
	var deps []Dependency
	for _, dep := range r.UpdatedDeps {
		if dep.IsLockfileUpdate {
			deps = append(deps, dep)
		}
	}
	return deps
}

// Validate checks that the request names a package file.
// An empty LockFiles list is valid; the orchestrator treats it as nothing to do.
func (r Request) Validate() error {
	if strings.TrimSpace(r.PackageFile) == "" {
		return errors.New("request: packageFile is required")
	}
	return nil
}

// Report is the outcome of one request. A nil *Report means nothing usable was produced.
type Report struct {
	Schema    int    `json:"schema" yaml:"schema"`
	RequestID string `json:"requestId" yaml:"requestId"`
	// Digest is an h1: summary over all successfully regenerated files.
	Digest  string   `json:"digest,omitempty" yaml:"digest,omitempty"`
	Results []Result `json:"results" yaml:"results"`
}

// Result holds exactly one of File or ArtifactError.
type Result struct {
	File          *File          `json:"file,omitempty" yaml:"file,omitempty"`
	ArtifactError *ArtifactError `json:"artifactError,omitempty" yaml:"artifactError,omitempty"`
}

// File is a successfully regenerated lock file.
type File struct {
	Type     string `json:"type" yaml:"type"` // always "addition"
	Path     string `json:"path" yaml:"path"`
	Contents string `json:"contents" yaml:"contents"`
	Digest   string `json:"digest" yaml:"digest"` // SRI sha256 of Contents
}

// ArtifactError records a lock file whose regeneration failed.
type ArtifactError struct {
	LockFile string `json:"lockFile" yaml:"lockFile"`
	Stderr   string `json:"stderr" yaml:"stderr"`
}

// Files returns the successfully regenerated files.
func (r *Report) Files() []File {
	var files []File
	for _, res := range r.Results {
		if res.File != nil {
			files = append(files, *res.File)
		}
	}
	return files
}

// Errors returns the artifact errors.
func (r *Report) Errors() []ArtifactError {
	var errs []ArtifactError
	for _, res := range r.Results {
		if res.ArtifactError != nil {
			errs = append(errs, *res.ArtifactError)
		}
	}
	return errs
}

// Verify checks every file digest and the report digest against the file contents.
func (r *Report) Verify() error {
	files := make(map[string][]byte)
	for _, f := range r.Files() {
		if err := hash.VerifySRI([]byte(f.Contents), f.Digest); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		files[f.Path] = []byte(f.Contents)
	}

	if r.Digest == "" {
		return nil
	}
	return hash.VerifySummary(files, r.Digest)
}
