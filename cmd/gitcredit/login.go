package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/gitcredit/internal/config"
)

const tokenSettingsURL = "https://github.com/settings/tokens"

var loginNoBrowser bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token in the OS keychain",
	Long: `Store a GitHub personal access token in the OS keychain. The token is used
to look up the GitHub username of verified authors so identities that share
an account are merged into one contributor.

A token with no scopes is enough; only public profile data is read.
GITHUB_API_KEY or GITHUB_TOKEN in the environment take precedence.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the GitHub token from the OS keychain",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "do not open the token settings page")
}

func runLogin(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain is not available; set GITHUB_TOKEN instead")
	}

	if !loginNoBrowser {
		fmt.Printf("Opening %s\n\n", tokenSettingsURL)
		if err := browser.OpenURL(tokenSettingsURL); err != nil {
			fmt.Printf("⚠️  Could not open browser automatically. Please visit the URL above.\n\n")
		}
	}

	token, err := readToken()
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no token entered")
	}

	if err := km.SetGitHubToken(token); err != nil {
		return err
	}

	fmt.Printf("\n✓ GitHub token %s saved to keychain\n", config.MaskToken(token))
	return nil
}

// readToken reads without echo from a terminal and a single line otherwise
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("GitHub token: ")
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	if !km.IsAvailable() {
		fmt.Println("⚠️  OS keychain is not available")
		return nil
	}

	if err := km.DeleteGitHubToken(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	fmt.Println("✓ GitHub token removed from keychain")
	if tokenSource == "env/config" {
		fmt.Println("A token is still provided by the environment or config file.")
	}
	return nil
}
