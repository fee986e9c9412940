// Package cmd provides the CLI commands for the glance indexer.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glancesearch/glance/internal/config"
	"github.com/glancesearch/glance/internal/logging"
	"github.com/glancesearch/glance/pkg/version"
)

var (
	cfgPath   string
	debugMode bool

	cfg            config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the glance CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glance",
		Short: "Background file indexer for instant launcher search",
		Long: `glance maintains a full-text index over your file tree and answers
prefix queries over hundreds of thousands of file names in milliseconds.

Run 'glance serve' to keep the index fresh in the background, or
'glance search <query>' against an existing index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = config.DefaultPath()
			}
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return err
			}

			logCfg := logging.Config{
				Level:         cfg.Logging.Level,
				FilePath:      cfg.Logging.FilePath,
				MaxSizeMB:     cfg.Logging.MaxSizeMB,
				MaxFiles:      cfg.Logging.MaxFiles,
				WriteToStderr: debugMode,
			}
			if debugMode {
				logCfg.Level = "debug"
			}
			cleanup, err := logging.SetupDefault(logCfg)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			loggingCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if loggingCleanup != nil {
				loggingCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to stderr")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
