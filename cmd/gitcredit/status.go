package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/gitcredit/internal/cache"
	"github.com/rohankatakam/gitcredit/internal/config"
	"github.com/rohankatakam/gitcredit/internal/ingestion"
	"github.com/rohankatakam/gitcredit/internal/ledger"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, cache and run history status",
	Long:  `Display the saved ledgers, the keyserver cache and recent analysis runs.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "recent runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Printf("gitcredit status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Keyserver:    %s\n", cfg.Keyserver.URL)
	fmt.Printf("  Workers:      %d\n", cfg.Analysis.Workers)
	if len(cfg.Analysis.Extensions) > 0 {
		fmt.Printf("  Extensions:   %s\n", strings.Join(cfg.Analysis.Extensions, ", "))
	} else {
		fmt.Printf("  Extensions:   (all files)\n")
	}
	fmt.Printf("  GitHub token: %s (%s)\n", config.MaskToken(cfg.GitHub.Token), tokenSource)

	fmt.Printf("\nLedger (%s):\n", cfg.Ledger.Path)
	orchestrator := ingestion.NewOrchestrator(cfg, nil, nil, nil, logger)
	raw, err := orchestrator.Ledger()
	switch {
	case err != nil && ingestion.IsNoLedger(err) && !fileExists(cfg.Ledger.Path):
		fmt.Printf("  Status: ❌ Not found (run 'gitcredit analyze')\n")
	case err != nil:
		fmt.Printf("  Status: ❌ Unreadable: %v\n", err)
	default:
		fmt.Printf("  Status: ✅ Ready\n")
		if raw.Repository != "" {
			fmt.Printf("  Repository:   %s\n", raw.Repository)
		}
		fmt.Printf("  Generated:    %s (%s ago)\n", raw.GeneratedAt.Local().Format("2006-01-02 15:04:05"), formatDuration(time.Since(raw.GeneratedAt)))
		fmt.Printf("  Identities:   %d\n", len(raw.Identities))
		fmt.Printf("  Verified LOC: %d\n", raw.TotalVerifiedLOC)
		fmt.Printf("  Outstanding:  %d\n", len(raw.OutstandingCommits))
	}

	if path := cfg.Ledger.ContributorsPath; path != "" {
		fmt.Printf("\nContributors (%s):\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  Status: ❌ Not written\n")
		} else if contributors, err := ledger.DecodeContributors(data, ledger.FormatForPath(path, cfg.Ledger.Format)); err != nil {
			fmt.Printf("  Status: ❌ Unreadable: %v\n", err)
		} else {
			fmt.Printf("  Contributors: %d\n", len(contributors))
		}
	}

	if cfg.Keyserver.CachePath != "" {
		fmt.Printf("\nKey cache (%s):\n", cfg.Keyserver.CachePath)
		if !fileExists(cfg.Keyserver.CachePath) {
			fmt.Printf("  Status: empty\n")
		} else if kc, err := cache.OpenKeyCache(cfg.Keyserver.CachePath, cfg.Keyserver.CacheTTL); err != nil {
			fmt.Printf("  Status: ❌ %v\n", err)
		} else {
			fmt.Printf("  Keys:         %d\n", kc.Len())
			fmt.Printf("  TTL:          %s\n", formatTTL(cfg.Keyserver.CacheTTL))
			kc.Close()
		}
	}

	store := openStore()
	if store == nil {
		return nil
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, "", statusRuns)
	if err != nil {
		return err
	}
	fmt.Printf("\nRecent runs (%s):\n", cfg.Storage.Type)
	if len(runs) == 0 {
		fmt.Printf("  none\n")
	}
	for _, r := range runs {
		fmt.Printf("  %s  %s  commits=%d verified=%d outstanding=%d loc=%d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.ID[:min(8, len(r.ID))],
			r.CommitCount, r.VerifiedCount, r.OutstandingCount, r.TotalVerifiedLOC,
			r.Repository)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatTTL(ttl time.Duration) string {
	if ttl <= 0 {
		return "never expires"
	}
	return formatDuration(ttl)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
