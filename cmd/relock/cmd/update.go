package cmd

import (
	"fmt"
	"log/slog"

	"github.com/anthr76/relock/internal/artifacts"
	"github.com/anthr76/relock/internal/command"
	"github.com/anthr76/relock/internal/config"
	"github.com/anthr76/relock/internal/execenv"
	"github.com/anthr76/relock/internal/registry"
	"github.com/anthr76/relock/internal/request"
	"github.com/anthr76/relock/internal/runner"
	"github.com/anthr76/relock/internal/worktree"
	"github.com/spf13/cobra"
)

var (
	updateOutput string
	updateOut    string
)

var updateCmd = &cobra.Command{
	Use:   "update <request-file>",
	Short: "Regenerate the lock files named in an update request",
	Long: `Regenerate the lock files named in an update request.

The request names the manifest (packageFile), its new content, the lock
files to regenerate (glob patterns allowed) and the dependency updates.
The report lists every regenerated file and every lock file that failed.
A report of null means nothing usable was produced.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVarP(&updateOutput, "output", "o", request.FormatYAML, "report format: yaml or json")
	updateCmd.Flags().StringVar(&updateOut, "out", "", "write the report to a file instead of stdout")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	req, err := request.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading request: %w", err)
	}

	updater, fsys, err := newUpdater(cfg)
	if err != nil {
		return err
	}

	lockFiles, err := fsys.Glob(req.LockFiles)
	if err != nil {
		return fmt.Errorf("expanding lock files: %w", err)
	}
	req.LockFiles = lockFiles

	report, err := updater.Update(cmd.Context(), *req)
	if err != nil {
		return fmt.Errorf("updating %s: %w", req.PackageFile, err)
	}
	if report == nil {
		slog.Info("no lock files were regenerated", "package_file", req.PackageFile)
	} else {
		slog.Info("update finished", "request_id", report.RequestID,
			"files", len(report.Files()), "errors", len(report.Errors()))
	}

	if updateOut != "" {
		return report.Save(updateOut)
	}
	return report.Write(cmd.OutOrStdout(), updateOutput)
}

// newUpdater wires the orchestrator to the repository at c.Repo.Dir.
func newUpdater(c *config.Config) (*artifacts.Updater, *worktree.FS, error) {
	logger := slog.Default()

	builder, err := execenv.NewBuilder(c.Repo.Dir, c.Exec)
	if err != nil {
		return nil, nil, err
	}

	resolver, err := registry.NewResolver(c.Registry, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating registry resolver: %w", err)
	}

	fsys := worktree.NewFS(builder.RepoDir)
	return &artifacts.Updater{
		FS:       fsys,
		Status:   worktree.NewGit(builder.RepoDir),
		Runner:   runner.New(logger),
		Registry: resolver,
		Exec:     builder,
		Command:  command.New(logger),
		Logger:   logger,
	}, fsys, nil
}
