package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthr76/relock/internal/config"
	"github.com/anthr76/relock/internal/logger"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	repoDir   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relock",
	Short: "Regenerate pip-compile lock files after dependency updates",
	Long: `relock regenerates requirements lock files produced by pip-compile.

It replays the command recorded in each lock file's header, adds
--upgrade-package pins for lockfile-only updates, and reports the
regenerated files or the errors that prevented regeneration.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default relock.yaml in ., $HOME/.config/relock or /etc/relock)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&repoDir, "repo", "", "repository root (default .)")
}

// initConfig loads configuration and applies command-line overrides.
func initConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	if repoDir != "" {
		c.Repo.Dir = repoDir
	}

	logger.Init(c.Log.Format, c.Log.Level)
	cfg = c
	return nil
}
