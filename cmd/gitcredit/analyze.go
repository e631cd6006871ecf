package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/gitcredit/internal/cache"
	"github.com/rohankatakam/gitcredit/internal/git"
	"github.com/rohankatakam/gitcredit/internal/github"
	"github.com/rohankatakam/gitcredit/internal/ingestion"
	"github.com/rohankatakam/gitcredit/internal/keyserver"
	"github.com/rohankatakam/gitcredit/internal/models"
	"github.com/rohankatakam/gitcredit/internal/storage"
)

var (
	cfgWorkers    int
	cfgExtensions []string
	noCache       bool
	refreshKeys   bool
	noEnrich      bool
	listAll       bool
	analyzeLimit  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [location]",
	Short: "Verify commit signatures and rebuild the contribution ledger",
	Long: `Clone or update the repository, verify every commit's signature against the
keyserver, and write both the raw identity ledger and the ranked contributor
ledger.

The location is a local working tree or a clone URL. It defaults to
repository.url from the configuration, then to the working tree containing
the current directory.

Examples:
  gitcredit analyze .
  gitcredit analyze https://github.com/owner/project.git --workers 16`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&cfgWorkers, "workers", "w", 0, "concurrent verification workers (default from config)")
	analyzeCmd.Flags().StringSliceVar(&cfgExtensions, "ext", nil, "only count lines in files with these extensions (e.g. .py,.go)")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the persistent keyserver cache")
	analyzeCmd.Flags().BoolVar(&refreshKeys, "refresh-keys", false, "drop cached keyserver results before verifying")
	analyzeCmd.Flags().BoolVar(&noEnrich, "no-github", false, "skip GitHub username lookup")
	analyzeCmd.Flags().BoolVar(&listAll, "all", false, "list every outstanding commit")
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 20, "outstanding commits to list")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location := cfg.Repository.URL
	if len(args) == 1 {
		location = args[0]
	}
	if location == "" {
		root, err := git.RepoRoot(ctx, ".")
		if err != nil {
			return fmt.Errorf("no repository given: pass a location, set repository.url or run inside a working tree")
		}
		location = root
	}
	if cfgWorkers > 0 {
		cfg.Analysis.Workers = cfgWorkers
	}
	if len(cfgExtensions) > 0 {
		cfg.Analysis.Extensions = cfgExtensions
	}

	store := openStore()
	if store != nil {
		defer store.Close()
	}

	var keyStore keyserver.KeyStore
	if !noCache && cfg.Keyserver.CachePath != "" {
		kc, err := cache.OpenKeyCache(cfg.Keyserver.CachePath, cfg.Keyserver.CacheTTL)
		if err != nil {
			logger.WithError(err).Warn("Key cache unavailable, continuing without it")
		} else {
			defer kc.Close()
			if refreshKeys {
				if err := kc.Clear(); err != nil {
					logger.WithError(err).Warn("Failed to clear key cache")
				}
			}
			keyStore = kc
		}
	}

	var enricher ingestion.Enricher
	if !noEnrich && cfg.GitHub.Token != "" {
		enricher = github.NewClient(cfg.GitHub.Token, cfg.GitHub.RateLimit, logger)
	}

	orchestrator := ingestion.NewOrchestrator(cfg, store, enricher, keyStore, logger)
	result, err := orchestrator.Analyze(ctx, location)
	if err != nil {
		return err
	}

	fmt.Printf("Repository:   %s\n", result.Repository)
	fmt.Printf("Commits:      %d\n", result.CommitCount)
	fmt.Printf("Verified:     %d (%d lines)\n", result.VerifiedCount, result.TotalVerifiedLOC)
	fmt.Printf("Outstanding:  %d\n", len(result.Outstanding))
	fmt.Printf("Identities:   %d\n", result.IdentityCount)
	if enricher != nil {
		fmt.Printf("GitHub users: %d\n", result.Enriched)
	}
	fmt.Printf("Ledger:       %s\n", cfg.Ledger.Path)
	if cfg.Ledger.ContributorsPath != "" {
		fmt.Printf("Contributors: %s\n", cfg.Ledger.ContributorsPath)
	}
	fmt.Println()

	printContributors(result.Contributors)

	if len(result.Outstanding) > 0 {
		fmt.Println()
		fmt.Println("Outstanding commits (manual review required):")
		printOutstanding(result.Outstanding, outstandingLimit())
	}

	return nil
}

func outstandingLimit() int {
	if listAll {
		return 0
	}
	return analyzeLimit
}

// openStore returns nil when run history is disabled or unavailable
func openStore() storage.Store {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			logger.WithError(err).Warn("Run history unavailable")
		}
		return nil
	}
	return store
}

func printOutstanding(list []*models.OutstandingCommit, limit int) {
	for i, oc := range list {
		if limit > 0 && i >= limit {
			fmt.Printf("  ... and %d more (use --all)\n", len(list)-limit)
			return
		}
		short := oc.SHA
		if len(short) > 12 {
			short = short[:12]
		}
		line := fmt.Sprintf("  %s  %-20s  %-28s  %s", short, oc.Reason, oc.AuthorEmail, oc.Summary)
		if oc.KeyID != "" {
			line += fmt.Sprintf("  [key %s]", oc.KeyID)
		}
		fmt.Println(line)
	}
}
