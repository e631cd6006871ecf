package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/gitcredit/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gitcredit configuration",
	Long:  `View and initialize gitcredit configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, config file, .env files and
GITCREDIT_* environment overrides have been applied. The GitHub token is masked.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Long: `Write the effective configuration to path (default .gitcredit/config.yaml).
The GitHub token is never written; store it with 'gitcredit login' or the
GITHUB_TOKEN environment variable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	shown.GitHub.Token = config.MaskToken(cfg.GitHub.Token)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	fmt.Printf("\n# github token source: %s\n", tokenSource)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = filepath.Join(".gitcredit", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("✓ Configuration written to %s\n", path)
	return nil
}
