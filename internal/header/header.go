// Package header interprets the command-line header pip-compile writes into
// the lock files it generates.
package header

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
)

// CompilerCommand is the command token of a header written by pip-compile itself.
const CompilerCommand = "pip-compile"

var (
	// ErrNoHeader is returned when content carries no pip-compile header.
	ErrNoHeader = errors.New("no pip-compile header found")

	// ErrUnsupportedOption is returned for options relock cannot safely replay.
	ErrUnsupportedOption = errors.New("unsupported pip-compile option")
)

// Invocation is the prior compiler invocation recorded in a header.
type Invocation struct {
	// Command is the first token of the recorded command line.
	Command string
	// IsCustomCommand is true when the line was set through CUSTOM_COMPILE_COMMAND.
	IsCustomCommand bool
	// OutputFile is the declared --output-file, cleaned; empty when implicit.
	OutputFile  string
	Extras      []string
	Constraints []string
	// SourceFiles are the positional arguments.
	SourceFiles []string
	// Argv is the full argument vector, command token first.
	Argv []string

	EmitIndexURL   bool
	NoEmitIndexURL bool
}

// headerRe matches both the current header and the one written by pip-tools < 6.12.
var headerRe = regexp.MustCompile(`(?m)^# This file is autogenerated by pip-compile(?: with [Pp]ython \S+)?\n# (?:by the following command|To update, run):\n#\n# {4}(.*\S)[ \t]*$`)

// Interpret extracts the invocation from lock file content. fileName is only
// used for error messages.
func Interpret(content, fileName string) (*Invocation, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	m := headerRe.FindStringSubmatch(content)
	if m == nil {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoHeader)
	}

	argv, err := shellquote.Split(m[1])
	if err != nil {
		return nil, fmt.Errorf("%s: splitting header command: %w", fileName, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoHeader)
	}

	inv := &Invocation{
		Command: argv[0],
		Argv:    argv,
	}
	if path.Base(argv[0]) != CompilerCommand {
		inv.IsCustomCommand = true
		return inv, nil
	}

	if err := inv.parseOptions(argv[1:]); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	return inv, nil
}

// options is the subset of pip-compile options relock knows how to replay.
type options struct {
	outputFile  string
	extras      []string
	constraints []string
}

func newFlagSet(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(CompilerCommand, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	for _, name := range []string{
		"allow-unsafe", "no-allow-unsafe", "all-extras", "generate-hashes", "reuse-hashes", "no-reuse-hashes",
		"emit-index-url", "no-emit-index-url", "emit-trusted-host", "no-emit-trusted-host",
		"emit-find-links", "no-emit-find-links", "emit-options", "no-emit-options",
		"strip-extras", "no-strip-extras", "annotate", "no-annotate", "header", "no-header",
		"build-isolation", "no-build-isolation", "pre", "upgrade", "no-upgrade", "rebuild", "dry-run",
		"no-index", "no-config", "all-build-deps", "only-build-deps", "resolver-backtracking",
	} {
		fs.Bool(name, false, "")
	}
	fs.BoolP("verbose", "v", false, "")
	fs.BoolP("quiet", "q", false, "")

	fs.StringVar(&o.outputFile, "output-file", "", "")
	fs.StringArrayVar(&o.extras, "extra", nil, "")
	fs.StringArrayVar(&o.constraints, "constraint", nil, "")
	for _, name := range []string{
		"resolver", "index-url", "annotation-style", "pip-args", "cache-dir", "max-rounds",
		"newline", "cert", "client-cert", "config",
	} {
		fs.String(name, "", "")
	}
	for _, name := range []string{
		"extra-index-url", "find-links", "trusted-host", "upgrade-package", "unsafe-package",
		"no-binary", "only-binary", "build-deps-for",
	} {
		fs.StringArray(name, nil, "")
	}

	return fs
}

func (inv *Invocation) parseOptions(args []string) error {
	var o options
	fs := newFlagSet(&o)

	for _, arg := range args {
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			continue
		}
		if !strings.HasPrefix(arg, "--") {
			// only flag shorthands such as -v or -qq are recorded without a value
			for _, c := range arg[1:] {
				flag := fs.ShorthandLookup(string(c))
				if flag == nil || flag.Value.Type() != "bool" {
					return fmt.Errorf("%w: short option %s", ErrUnsupportedOption, arg)
				}
			}
			continue
		}

		name, _, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedOption, arg)
		}
		if flag.Value.Type() != "bool" && !hasValue {
			// pip-compile always records values as --name=value
			return fmt.Errorf("%w: %s must be written as --%s=<value>", ErrUnsupportedOption, arg, name)
		}
	}

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedOption, err)
	}

	inv.EmitIndexURL = fs.Changed("emit-index-url")
	inv.NoEmitIndexURL = fs.Changed("no-emit-index-url")
	if o.outputFile != "" {
		inv.OutputFile = path.Clean(o.outputFile)
	}
	inv.Extras = o.extras
	inv.Constraints = o.constraints
	inv.SourceFiles = fs.Args()

	return nil
}
