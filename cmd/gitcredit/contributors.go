package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/gitcredit/internal/ingestion"
	"github.com/rohankatakam/gitcredit/internal/ledger"
	"github.com/rohankatakam/gitcredit/internal/models"
)

var (
	contributorsFormat string
	contributorsWrite  bool
)

var contributorsCmd = &cobra.Command{
	Use:   "contributors",
	Short: "Aggregate the saved ledger into ranked contributors",
	Long: `Reload the raw identity ledger written by 'gitcredit analyze', merge identities
that share a PGP key or GitHub username, and print the ranked result.

A missing or corrupt ledger is reported as an error; run 'gitcredit analyze'
to rebuild it.`,
	RunE: runContributors,
}

func init() {
	contributorsCmd.Flags().StringVarP(&contributorsFormat, "output", "o", "table", "output format: table, json or yaml")
	contributorsCmd.Flags().BoolVar(&contributorsWrite, "write", false, "also rewrite the contributor ledger file")
}

func runContributors(cmd *cobra.Command, args []string) error {
	orchestrator := ingestion.NewOrchestrator(cfg, nil, nil, nil, logger)

	contributors, err := orchestrator.Contributors()
	if err != nil {
		if ingestion.IsNoLedger(err) {
			return fmt.Errorf("%w (run 'gitcredit analyze' first)", err)
		}
		return err
	}

	if contributorsWrite && cfg.Ledger.ContributorsPath != "" {
		format := ledger.FormatForPath(cfg.Ledger.ContributorsPath, cfg.Ledger.Format)
		if err := ledger.WriteContributors(cfg.Ledger.ContributorsPath, format, contributors); err != nil {
			return err
		}
		logger.WithField("path", cfg.Ledger.ContributorsPath).Info("Contributor ledger written")
	}

	switch contributorsFormat {
	case "table", "":
		printContributors(contributors)
		return nil
	default:
		return ledger.EncodeContributors(os.Stdout, contributorsFormat, contributors)
	}
}

func printContributors(contributors []models.Contributor) {
	if len(contributors) == 0 {
		fmt.Println("No verified contributors.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRANK\tSHARE\tLAST ACTIVE\tEMAILS")
	for _, c := range contributors {
		lastActive := "-"
		if c.LastUsedTimestamp > 0 {
			lastActive = time.Unix(c.LastUsedTimestamp, 0).Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%s\t%s\n", c.Name, c.Rank, c.TotalContributionPercentage, lastActive, strings.Join(c.Emails, ", "))
	}
	w.Flush()
}
