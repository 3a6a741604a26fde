package cmd

import (
	"errors"
	"fmt"
	"path"

	"github.com/anthr76/relock/internal/command"
	"github.com/anthr76/relock/internal/hash"
	"github.com/anthr76/relock/internal/header"
	"github.com/anthr76/relock/internal/request"
	"github.com/anthr76/relock/internal/worktree"
	"github.com/spf13/cobra"
)

// DefaultLockFilePattern is checked when verify is given no lock files.
const DefaultLockFilePattern = "**/requirements*.txt"

var verifyCmd = &cobra.Command{
	Use:   "verify [lock-file...]",
	Short: "Check that lock files can be regenerated",
	Long: `Check that lock file headers can be replayed.

This command checks for:
- Missing pip-compile headers
- Headers written by a custom compile command
- Options relock does not support
- Output files that differ from the lock file name (warning only)

With --report, the digests of a saved update report are checked and every
regenerated file in it is compared with the working tree instead.`,
	RunE: runVerify,
}

var verifyReport string

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyReport, "report", "", "check a saved update report against the working tree")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyReport != "" {
		return runVerifyReport(cmd, verifyReport)
	}

	patterns := args
	if len(patterns) == 0 {
		patterns = []string{DefaultLockFilePattern}
	}

	fsys := worktree.NewFS(cfg.Repo.Dir)
	lockFiles, err := fsys.Glob(patterns)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(lockFiles) == 0 {
		fmt.Fprintln(out, "No lock files found")
		return nil
	}

	var problems, warnings []string
	for _, name := range lockFiles {
		content, err := fsys.ReadFile(name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		inv, err := header.Interpret(string(content), name)
		switch {
		case errors.Is(err, header.ErrNoHeader):
			problems = append(problems, fmt.Sprintf("%s: no pip-compile header", name))
			continue
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			continue
		case inv.IsCustomCommand:
			problems = append(problems, fmt.Sprintf("%s: %v", name, &command.CustomCommandError{Command: inv.Command}))
			continue
		}

		target := command.OutputTarget{Declared: inv.OutputFile, Resolved: path.Base(name)}
		if target.Mismatch() {
			warnings = append(warnings, fmt.Sprintf("%s: --output-file=%s", name, target.Declared))
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintln(out, "Output file mismatches:")
		for _, w := range warnings {
			fmt.Fprintf(out, "  ~ %s\n", w)
		}
	}

	if len(problems) > 0 {
		fmt.Fprintln(out, "Lock files that cannot be regenerated:")
		for _, p := range problems {
			fmt.Fprintf(out, "  ! %s\n", p)
		}
		return fmt.Errorf("lock file verification failed")
	}

	fmt.Fprintf(out, "%d lock file(s) can be regenerated\n", len(lockFiles))
	return nil
}

func runVerifyReport(cmd *cobra.Command, reportPath string) error {
	report, err := request.LoadReport(reportPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fsys := worktree.NewFS(cfg.Repo.Dir)

	var stale []string
	for _, f := range report.Files() {
		content, err := fsys.ReadFile(f.Path)
		if err != nil {
			stale = append(stale, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		if err := hash.VerifySRI(content, f.Digest); err != nil {
			stale = append(stale, fmt.Sprintf("%s: %v", f.Path, err))
		}
	}

	if len(stale) > 0 {
		fmt.Fprintln(out, "Working tree differs from report:")
		for _, s := range stale {
			fmt.Fprintf(out, "  ! %s\n", s)
		}
		return fmt.Errorf("report verification failed")
	}

	fmt.Fprintf(out, "Report %s matches %d file(s)\n", report.RequestID, len(report.Files()))
	return nil
}
