// Package artifacts regenerates pip-compile lock files after a manifest update.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/anthr76/relock/internal/execenv"
	"github.com/anthr76/relock/internal/hash"
	"github.com/anthr76/relock/internal/registry"
	"github.com/anthr76/relock/internal/request"
	"github.com/anthr76/relock/internal/requirements"
	"github.com/anthr76/relock/internal/runner"
	"github.com/anthr76/relock/internal/worktree"
	"github.com/google/uuid"
)

// FileSystem reads and writes files relative to the repository root.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
}

// StatusReader reports which paths changed in the working tree.
type StatusReader interface {
	Status(ctx context.Context) (*worktree.Status, error)
}

// Runner executes a synthesized command line.
type Runner interface {
	Run(ctx context.Context, commandLine string, ec execenv.Context) runner.Outcome
}

// RegistryResolver derives index environment variables from a manifest.
type RegistryResolver interface {
	Resolve(f *requirements.File) registry.Vars
}

// ContextBuilder builds the execution context for an input file.
type ContextBuilder interface {
	Build(inputFileName string, env map[string]string) (execenv.Context, error)
}

// Synthesizer rebuilds the compiler command from an existing lock file.
type Synthesizer interface {
	Synthesize(existingContent, outputFileName string, haveCredentials bool, deps []request.Dependency) (string, error)
}

// Updater drives lock-file regeneration for one request at a time.
type Updater struct {
	FS       FileSystem
	Status   StatusReader
	Runner   Runner
	Registry RegistryResolver
	Exec     ContextBuilder
	Command  Synthesizer
	Logger   *slog.Logger

	// NewID returns report identifiers; uuid.NewString when nil.
	NewID func() string
}

type stepKind int

const (
	stepArtifact stepKind = iota
	stepArtifactError
	stepAbort
)

type step struct {
	kind   stepKind
	file   *request.File
	errMsg string
}

// Update regenerates every lock file in req, sequentially.
//
// A nil report with a nil error means nothing usable was produced: no lock
// files, a missing prior lock file, or a run that changed nothing. A non-nil
// error is a temporary infrastructure failure and is returned unmodified.
func (u *Updater) Update(ctx context.Context, req request.Request) (*request.Report, error) {
	id := u.newID()
	log := u.logger().With("request_id", id, "package_file", req.PackageFile)

	if len(req.LockFiles) == 0 {
		log.Warn("pip-compile: no lock files associated with package file")
		return nil, nil
	}

	deps := req.LockfileUpdates()
	report := &request.Report{Schema: request.SchemaVersion, RequestID: id}

	for _, lockFile := range req.LockFiles {
		s, err := u.updateLockFile(ctx, log.With("lock_file", lockFile), req, lockFile, deps)
		if err != nil {
			return nil, err
		}

		switch s.kind {
		case stepAbort:
			return nil, nil
		case stepArtifactError:
			report.Results = append(report.Results, request.Result{
				ArtifactError: &request.ArtifactError{LockFile: lockFile, Stderr: s.errMsg},
			})
		case stepArtifact:
			report.Results = append(report.Results, request.Result{File: s.file})
		}
	}

	files := make(map[string][]byte)
	for _, f := range report.Files() {
		files[f.Path] = []byte(f.Contents)
	}
	if len(files) > 0 {
		digest, err := hash.Summary(files)
		if err != nil {
			log.Warn("pip-compile: failed to compute report digest", "error", err)
		} else {
			report.Digest = digest
		}
	}

	return report, nil
}

// updateLockFile runs one lock file through the pipeline. The returned error
// is reserved for temporary failures that abandon the request.
func (u *Updater) updateLockFile(ctx context.Context, log *slog.Logger, req request.Request, lockFile string, deps []request.Dependency) (step, error) {
	existing, err := u.FS.ReadFile(lockFile)
	if err != nil || len(existing) == 0 {
		log.Debug("pip-compile: no existing lock file", "error", err)
		return step{kind: stepAbort}, nil
	}

	inputFile := req.PackageFile
	if err := u.FS.WriteFile(inputFile, []byte(req.NewPackageFileContent)); err != nil {
		return failed(log, fmt.Errorf("writing %s: %w", inputFile, err)), nil
	}

	if req.IsLockFileMaintenance {
		log.Debug("pip-compile: removing lock file for maintenance")
		if err := u.FS.Remove(lockFile); err != nil {
			return failed(log, fmt.Errorf("removing %s: %w", lockFile, err)), nil
		}
	}

	vars := u.Registry.Resolve(requirements.Parse(req.NewPackageFileContent))

	commandLine, err := u.Command.Synthesize(string(existing), lockFile, vars.HaveCredentials, deps)
	if err != nil {
		return failed(log, err), nil
	}

	ec, err := u.Exec.Build(inputFile, vars.EnvironmentVars)
	if err != nil {
		return failed(log, err), nil
	}

	log.Info("pip-compile: regenerating lock file")
	outcome := u.Runner.Run(ctx, commandLine, ec)
	switch outcome.Status {
	case runner.StatusTransient:
		return step{}, outcome.Err
	case runner.StatusFailed:
		return failed(log, outcome.Err), nil
	}

	status, err := u.Status.Status(ctx)
	if err != nil {
		log.Warn("pip-compile: could not read repository status", "error", err)
		return step{kind: stepAbort}, nil
	}
	switch name := path.Clean(lockFile); {
	case status.IsDeleted(name):
		log.Warn("pip-compile: lock file missing after a successful run")
		return step{kind: stepAbort}, nil
	case !status.IsModified(name):
		log.Debug("pip-compile: lock file unchanged")
		return step{kind: stepAbort}, nil
	}

	contents, err := u.FS.ReadFile(lockFile)
	if err != nil {
		log.Warn("pip-compile: could not read updated lock file", "error", err)
		return step{kind: stepAbort}, nil
	}

	log.Debug("pip-compile: lock file updated")
	return step{
		kind: stepArtifact,
		file: &request.File{
			Type:     "addition",
			Path:     lockFile,
			Contents: string(contents),
			Digest:   hash.SRI(contents),
		},
	}, nil
}

func failed(log *slog.Logger, err error) step {
	log.Debug("pip-compile: failed to update lock file", "error", err)
	return step{kind: stepArtifactError, errMsg: err.Error()}
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

func (u *Updater) newID() string {
	if u.NewID != nil {
		return u.NewID()
	}
	return uuid.NewString()
}
