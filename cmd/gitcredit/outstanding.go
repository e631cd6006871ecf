package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/gitcredit/internal/ingestion"
	"github.com/rohankatakam/gitcredit/internal/models"
	"github.com/rohankatakam/gitcredit/internal/storage"
)

var (
	outstandingReason  string
	outstandingFormat  string
	outstandingReports bool
	outstandingAll     bool
	outstandingLimitN  int
	outstandingRun     string
)

var outstandingCmd = &cobra.Command{
	Use:   "outstanding",
	Short: "List commits that need manual review",
	Long: `List the commits from the last analysis that were not credited to anyone:
unsigned commits, unparseable signature reports, keys the keyserver could not
resolve, and signatures whose key emails do not match the commit's emails.

Examples:
  gitcredit outstanding
  gitcredit outstanding --reason email_mismatch --reports
  gitcredit outstanding -o json`,
	RunE: runOutstanding,
}

func init() {
	outstandingCmd.Flags().StringVar(&outstandingReason, "reason", "", "only list commits with this reason (no_signature, malformed_signature, email_mismatch, key_lookup_failed)")
	outstandingCmd.Flags().StringVarP(&outstandingFormat, "output", "o", "table", "output format: table, json or yaml")
	outstandingCmd.Flags().BoolVar(&outstandingReports, "reports", false, "print the raw signature report of each commit")
	outstandingCmd.Flags().BoolVar(&outstandingAll, "all", false, "list every outstanding commit")
	outstandingCmd.Flags().IntVar(&outstandingLimitN, "limit", 50, "outstanding commits to list")
	outstandingCmd.Flags().StringVar(&outstandingRun, "run", "", "read from a recorded run in the history store instead of the ledger")
}

func runOutstanding(cmd *cobra.Command, args []string) error {
	reason := models.OutstandingReason(outstandingReason)
	if reason != "" && !knownReason(reason) {
		return fmt.Errorf("unknown reason %q", outstandingReason)
	}

	all, err := loadOutstanding(cmd.Context())
	if err != nil {
		return err
	}
	list := filterOutstanding(all, reason)

	switch outstandingFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(list)
	case "table", "":
	default:
		return fmt.Errorf("unsupported output format %q", outstandingFormat)
	}

	if len(list) == 0 {
		fmt.Println("No outstanding commits.")
		return nil
	}

	fmt.Printf("%d outstanding commit(s)\n", len(list))
	counts := countReasons(list)
	for _, r := range allReasons {
		if n := counts[r]; n > 0 {
			fmt.Printf("  %-20s %d\n", r, n)
		}
	}
	fmt.Println()

	limit := outstandingLimitN
	if outstandingAll {
		limit = 0
	}
	if !outstandingReports {
		printOutstanding(list, limit)
		return nil
	}

	for i, oc := range list {
		if limit > 0 && i >= limit {
			fmt.Printf("... and %d more (use --all)\n", len(list)-limit)
			break
		}
		printOutstanding([]*models.OutstandingCommit{oc}, 0)
		if oc.SignatureReport != "" {
			fmt.Println(indent(oc.SignatureReport, "      "))
		}
	}
	return nil
}

func loadOutstanding(ctx context.Context) ([]*models.OutstandingCommit, error) {
	if outstandingRun == "" {
		orchestrator := ingestion.NewOrchestrator(cfg, nil, nil, nil, logger)
		raw, err := orchestrator.Ledger()
		if err != nil {
			if ingestion.IsNoLedger(err) {
				return nil, fmt.Errorf("%w (run 'gitcredit analyze' first)", err)
			}
			return nil, err
		}
		return ingestion.SortOutstanding(raw.OutstandingCommits), nil
	}

	store := openStore()
	if store == nil {
		return nil, fmt.Errorf("run history is disabled (storage.type is %q)", cfg.Storage.Type)
	}
	defer store.Close()

	if _, err := store.GetRun(ctx, outstandingRun); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no recorded run %q", outstandingRun)
		}
		return nil, err
	}
	list, err := store.GetOutstanding(ctx, outstandingRun)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.OutstandingCommit, len(list))
	for _, oc := range list {
		byID[oc.SHA] = oc
	}
	return ingestion.SortOutstanding(byID), nil
}

var allReasons = []models.OutstandingReason{
	models.ReasonNoSignature,
	models.ReasonMalformedSignature,
	models.ReasonKeyLookupFailed,
	models.ReasonEmailMismatch,
}

func knownReason(r models.OutstandingReason) bool {
	for _, known := range allReasons {
		if r == known {
			return true
		}
	}
	return false
}

func filterOutstanding(list []*models.OutstandingCommit, reason models.OutstandingReason) []*models.OutstandingCommit {
	if reason == "" {
		return list
	}
	filtered := make([]*models.OutstandingCommit, 0, len(list))
	for _, oc := range list {
		if oc.Reason == reason {
			filtered = append(filtered, oc)
		}
	}
	return filtered
}

func countReasons(list []*models.OutstandingCommit) map[models.OutstandingReason]int {
	counts := make(map[models.OutstandingReason]int)
	for _, oc := range list {
		counts[oc.Reason]++
	}
	return counts
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
