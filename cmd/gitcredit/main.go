package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/gitcredit/internal/config"
	"github.com/rohankatakam/gitcredit/internal/errors"
	"github.com/rohankatakam/gitcredit/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	logger      *logrus.Logger
	cfg         *config.Config
	tokenSource string
	closeLog    = func() error { return nil }
)

func main() {
	err := rootCmd.Execute()
	if err != nil && logger != nil {
		logger.WithFields(logrus.Fields(errors.FieldsOf(err))).Debug("Command failed")
	}
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitcredit",
	Short: "gitcredit - signature-verified contribution ledger for git repositories",
	Long: `gitcredit walks a repository's history, verifies every signed commit against
the signing key published on a keyserver, and credits verified lines of code
to the authors whose asserted emails match that key exactly.

Unsigned or unverifiable commits are listed as outstanding for manual review.

Exit status: 2 configuration error, 3 no usable ledger, 4 repository
transport failure, 5 accounting inconsistency, 1 anything else.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		logCfg := logging.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			OutputFile: cfg.Log.File,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		logger, closeLog, err = logging.New(logCfg)
		if err != nil {
			return err
		}
		if verbose && logger.GetLevel() < logrus.DebugLevel {
			logger.SetLevel(logrus.DebugLevel)
		}

		result := cfg.Validate()
		for _, w := range result.Warnings {
			logger.Debug(w)
		}
		if result.HasErrors() {
			return result.AsError()
		}

		tokenSource = config.NewKeyringManager(logger).ResolveGitHubToken(cfg)
		if cfg.GitHub.Token == "" && cmd.Name() == "analyze" {
			logger.Warn("No GitHub token found (GITHUB_API_KEY, GITHUB_TOKEN or keychain); identities will canonicalize by PGP key only")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .gitcredit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`gitcredit {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(contributorsCmd)
	rootCmd.AddCommand(outstandingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
