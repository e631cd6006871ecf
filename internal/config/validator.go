package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/gitcredit/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	return sb.String()
}

// AsError converts a failed validation into a config error, or nil.
func (vr *ValidationResult) AsError() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate checks value ranges and enumerations. A missing GitHub token is
// only a warning: the username canonicalization path is disabled instead.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	if c.Analysis.Workers < 1 {
		result.AddError("analysis.workers must be at least 1 (got %d)", c.Analysis.Workers)
	}
	for _, ext := range c.Analysis.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.AddError("analysis.extensions entry %q must start with '.'", ext)
		}
	}

	if c.Keyserver.Timeout <= 0 {
		result.AddError("keyserver.timeout must be positive (got %s)", c.Keyserver.Timeout)
	}
	if c.Keyserver.RateLimit <= 0 {
		result.AddError("keyserver.rate_limit must be positive (got %v)", c.Keyserver.RateLimit)
	}
	if u, err := url.Parse(c.Keyserver.URL); err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("keyserver.url %q is not an absolute URL", c.Keyserver.URL)
	}

	if c.Ledger.Path == "" {
		result.AddError("ledger.path must be set")
	}
	switch c.Ledger.Format {
	case "json", "yaml":
	default:
		result.AddError("ledger.format must be json or yaml (got %q)", c.Ledger.Format)
	}

	switch c.Storage.Type {
	case "none":
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn is required for postgres storage")
		}
	default:
		result.AddError("storage.type must be sqlite, postgres or none (got %q)", c.Storage.Type)
	}

	if c.GitHub.Token == "" {
		result.AddWarning("GITHUB_API_KEY not set; GitHub username canonicalization is disabled")
	} else if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive (got %d)", c.GitHub.RateLimit)
	}

	return result
}
