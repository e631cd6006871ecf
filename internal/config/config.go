package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Repository RepositoryConfig `yaml:"repository" mapstructure:"repository"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Keyserver  KeyserverConfig  `yaml:"keyserver" mapstructure:"keyserver"`
	GitHub     GitHubConfig     `yaml:"github" mapstructure:"github"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

type RepositoryConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

type LedgerConfig struct {
	Path             string `yaml:"path" mapstructure:"path"`
	ContributorsPath string `yaml:"contributors_path" mapstructure:"contributors_path"`
	Format           string `yaml:"format" mapstructure:"format"` // "json", "yaml"
}

type KeyserverConfig struct {
	URL       string        `yaml:"url" mapstructure:"url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	CachePath string        `yaml:"cache_path" mapstructure:"cache_path"` // Empty disables the persistent cache
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

type GitHubConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
}

type AnalysisConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Extensions restricts line counting to these file extensions (".py").
	// Empty counts every file type.
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "sqlite", "postgres", "none"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// Default returns default configuration
func Default() *Config {
	baseDir := appDir()
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = baseDir
	}
	return &Config{
		Repository: RepositoryConfig{
			CacheDir: filepath.Join(cacheDir, "gitcredit", "repos"),
		},
		Ledger: LedgerConfig{
			Path:             ".contributions.json",
			ContributorsPath: ".contributors.json",
			Format:           "json",
		},
		Keyserver: KeyserverConfig{
			URL:       "https://keyserver.ubuntu.com",
			Timeout:   15 * time.Second,
			RateLimit: 5,
			CachePath: filepath.Join(baseDir, "keys.db"),
			CacheTTL:  24 * time.Hour,
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
		Analysis: AnalysisConfig{
			Workers: 8,
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(baseDir, "runs.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("repository", cfg.Repository)
	v.SetDefault("ledger", cfg.Ledger)
	v.SetDefault("keyserver", cfg.Keyserver)
	v.SetDefault("github", cfg.GitHub)
	v.SetDefault("analysis", cfg.Analysis)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("log", cfg.Log)

	v.SetEnvPrefix("GITCREDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gitcredit")
		v.AddConfigPath(".")
		v.AddConfigPath(appDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.expandPaths()

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
		filepath.Join(appDir(), ".env"),
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("GITCREDIT_REPO_URL"); url != "" {
		cfg.Repository.URL = url
	}

	// GITHUB_API_KEY is the historical name, GITHUB_TOKEN wins when both are set
	if token := os.Getenv("GITHUB_API_KEY"); token != "" {
		cfg.GitHub.Token = token
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.Atoi(rateLimit); err == nil {
			cfg.GitHub.RateLimit = rate
		}
	}

	if url := os.Getenv("KEYSERVER_URL"); url != "" {
		cfg.Keyserver.URL = url
	}
	if timeout := os.Getenv("KEYSERVER_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Keyserver.Timeout = time.Duration(seconds) * time.Second
		}
	}

	if workers := os.Getenv("ANALYSIS_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Analysis.Workers = n
		}
	}
	if exts := os.Getenv("ANALYSIS_EXTENSIONS"); exts != "" {
		cfg.Analysis.Extensions = splitList(exts)
	}

	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = path
	}
}

func (c *Config) expandPaths() {
	c.Repository.CacheDir = expandPath(c.Repository.CacheDir)
	c.Ledger.Path = expandPath(c.Ledger.Path)
	c.Ledger.ContributorsPath = expandPath(c.Ledger.ContributorsPath)
	c.Keyserver.CachePath = expandPath(c.Keyserver.CachePath)
	c.Storage.LocalPath = expandPath(c.Storage.LocalPath)
	c.Log.File = expandPath(c.Log.File)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".gitcredit")
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("repository", c.Repository)
	v.Set("ledger", c.Ledger)
	v.Set("keyserver", c.Keyserver)
	v.Set("github", GitHubConfig{RateLimit: c.GitHub.RateLimit}) // never persist the token
	v.Set("analysis", c.Analysis)
	v.Set("storage", c.Storage)
	v.Set("log", c.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
