// Command quit is the CLI front end for the versioned RDF quad store:
// init, query, update, branch, merge, pull, log, blame, and provenance
// subcommands driven through the same internal/transport contract an HTTP
// front end would use, following the cobra root-plus-subcommand-files
// layout rohankatakam-coderisk/cmd/crisk uses.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aksw/quit-go/internal/config"
	"github.com/aksw/quit-go/internal/logging"
)

var (
	cfgFile string
	dir     string
	verbose int
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quit",
	Short: "Quit - a version-controlled RDF quad store",
	Long: `Quit stores named RDF graphs as files in a git repository: every
SPARQL Update produces a commit, branches are isolated dataset versions,
and merges replay history the way git itself does.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose > 0 {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("failed to load config, using defaults")
			cfg = config.Default()
		}
		if verbose > 0 {
			cfg.Verbose = verbose
		}

		logCfg := logging.DefaultConfig(cfg.Verbose > 0)
		logCfg.OutputFile = cfg.LogFile
		if err := logging.Initialize(logCfg); err != nil {
			logger.WithError(err).Warn("failed to initialize engine logger, using stdout defaults")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (none read when unset)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "verbose output, repeatable (-v, -vv)")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "target directory holding the git repository")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(deleteBranchCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(blameCmd)
	rootCmd.AddCommand(provenanceCmd)
}
