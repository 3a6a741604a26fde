package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthr76/relock/internal/command"
	"github.com/anthr76/relock/internal/request"
	"github.com/anthr76/relock/internal/worktree"
	"github.com/spf13/cobra"
)

var (
	commandUpgrades    []string
	commandCredentials bool
)

var commandCmd = &cobra.Command{
	Use:   "command <lock-file>",
	Short: "Print the command that regenerates a lock file",
	Long: `Print the pip-compile command relock would run for a lock file.

The command is rebuilt from the lock file header. --no-emit-index-url is
added unless the header sets an index URL emission flag.`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
	commandCmd.Flags().StringArrayVar(&commandUpgrades, "upgrade", nil, "lockfile-only update as name==version (repeatable)")
	commandCmd.Flags().BoolVar(&commandCredentials, "credentials", false, "assume the index URL carries credentials")
}

func runCommand(cmd *cobra.Command, args []string) error {
	lockFile := args[0]

	deps, err := parseUpgrades(commandUpgrades)
	if err != nil {
		return err
	}

	content, err := worktree.NewFS(cfg.Repo.Dir).ReadFile(lockFile)
	if err != nil {
		return fmt.Errorf("reading lock file: %w", err)
	}

	line, err := command.New(slog.Default()).Synthesize(string(content), lockFile, commandCredentials, deps)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func parseUpgrades(values []string) ([]request.Dependency, error) {
	deps := make([]request.Dependency, 0, len(values))
	for _, v := range values {
		name, version, ok := strings.Cut(v, "==")
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("invalid --upgrade %q, expected name==version", v)
		}
		deps = append(deps, request.Dependency{DepName: name, NewVersion: version, IsLockfileUpdate: true})
	}
	return deps, nil
}
