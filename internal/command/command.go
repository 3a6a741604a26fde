// Package command rebuilds a pip-compile command line from the invocation
// recorded in an existing lock file.
package command

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/anthr76/relock/internal/header"
	"github.com/anthr76/relock/internal/request"
	"github.com/kballard/go-shellquote"
)

// Flags relock adds to a replayed invocation.
const (
	NoEmitIndexURLFlag   = "--no-emit-index-url"
	UpgradePackagePrefix = "--upgrade-package="
)

// OutputTarget separates the output file a header declares from the one
// relock resolved from the request. Only Resolved is acted upon.
type OutputTarget struct {
	Declared string
	Resolved string
}

// Mismatch reports whether a declared output file disagrees with the resolved one.
func (t OutputTarget) Mismatch() bool {
	return t.Declared != "" && t.Declared != t.Resolved
}

// Synthesizer builds replay command lines.
type Synthesizer struct {
	Logger *slog.Logger
}

// New creates a Synthesizer. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{Logger: logger}
}

// Synthesize returns the shell-quoted command line that regenerates
// outputFileName from the header in existingContent.
func (s *Synthesizer) Synthesize(existingContent, outputFileName string, haveCredentials bool, deps []request.Dependency) (string, error) {
	argv, err := s.Argv(existingContent, outputFileName, haveCredentials, deps)
	if err != nil {
		return "", err
	}
	return Quote(argv), nil
}

// Argv is Synthesize without the final serialisation.
func (s *Synthesizer) Argv(existingContent, outputFileName string, haveCredentials bool, deps []request.Dependency) ([]string, error) {
	inv, err := header.Interpret(existingContent, outputFileName)
	if err != nil {
		return nil, err
	}
	if inv.IsCustomCommand {
		return nil, &CustomCommandError{Command: inv.Command}
	}

	target := OutputTarget{
		Declared: inv.OutputFile,
		Resolved: filepath.Base(outputFileName),
	}
	switch {
	case target.Mismatch():
		// The running compiler resolves the real path; the recorded argument is left alone.
		s.Logger.Warn("pip-compile was previously executed with an unexpected `--output-file` filename",
			"output_file", target.Declared, "actual_path", target.Resolved)
	case target.Declared == "":
		s.Logger.Debug("pip-compile: implicit output file", "lock_file", outputFileName)
	}

	if haveCredentials && inv.EmitIndexURL {
		s.Logger.Warn("pip-compile: --emit-index-url is set and the index url carries credentials",
			"lock_file", outputFileName)
	}

	argv := make([]string, 0, len(inv.Argv)+1+len(deps))
	argv = append(argv, inv.Argv[0])
	if !inv.NoEmitIndexURL && !inv.EmitIndexURL {
		argv = append(argv, NoEmitIndexURLFlag)
	}
	argv = append(argv, inv.Argv[1:]...)

	for _, dep := range deps {
		if !dep.IsLockfileUpdate {
			continue
		}
		if dep.DepName == "" || dep.NewVersion == "" {
			s.Logger.Warn("pip-compile: skipping lockfile update without name or version",
				"dep_name", dep.DepName, "new_version", dep.NewVersion)
			continue
		}
		argv = append(argv, UpgradePackagePrefix+dep.DepName+"=="+dep.NewVersion)
	}

	return argv, nil
}

// Quote shell-quotes every argument individually and joins them with single spaces.
func Quote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellescape.Quote(arg)
	}
	return strings.Join(quoted, " ")
}

// Split tokenises a command line the way a POSIX shell would. Split(Quote(v)) == v.
func Split(line string) ([]string, error) {
	return shellquote.Split(line)
}
