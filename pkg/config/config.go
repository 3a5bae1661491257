// Package config loads gitgrind configuration from YAML files with
// environment variable overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/intercept"
)

// Default configuration values exported for documentation and validation
const (
	DefaultSiteBase     = "https://leetcode.com"
	DefaultCommitPath   = "solutions"
	DefaultIPCBind      = "127.0.0.1:7340"
	DefaultDedupTTL     = 10 * time.Minute
	DefaultScanBudget   = 200
	DefaultOAuthScope   = "repo"
	DefaultEnrichEvery  = 2 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollWindow   = 30 * time.Second
)

// Config represents the complete gitgrind configuration
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	GitHub  GitHubConfig  `yaml:"github"`
	Commit  CommitConfig  `yaml:"commit"`
	Push    PushConfig    `yaml:"push"`
	IPC     IPCConfig     `yaml:"ipc"`
	Bus     BusConfig     `yaml:"bus"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig describes the practice site being watched.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	// URLFragments selects which request URLs the interceptor inspects.
	URLFragments []string `yaml:"url_fragments"`
	// ScanBudget bounds how many nodes response-payload traversal visits.
	ScanBudget int `yaml:"scan_budget"`
	// EnrichInterval rate-limits problem page fetches.
	EnrichInterval time.Duration `yaml:"enrich_interval"`
}

// GitHubConfig holds API endpoints and OAuth app credentials.
type GitHubConfig struct {
	APIBaseURL   string `yaml:"api_base_url"`
	OAuthBaseURL string `yaml:"oauth_base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
}

// CommitConfig controls how solutions are laid out in the target repo.
type CommitConfig struct {
	BasePath string `yaml:"base_path"`
	// DedupTTL is how long a pushed submission suppresses identical re-pushes.
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// PushConfig tunes the push state machine.
type PushConfig struct {
	SuccessResetDelay time.Duration `yaml:"success_reset_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollWindow        time.Duration `yaml:"poll_window"`
}

// IPCConfig controls the local message endpoint.
type IPCConfig struct {
	BindAddress string `yaml:"bind_address"`
}

// BusConfig selects the message bus backend.
type BusConfig struct {
	// Backend is "memory" or "nats".
	Backend string `yaml:"backend"`
	NATSURL string `yaml:"nats_url"`
}

// StorageConfig locates the settings database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig locates the JSONL log directory.
type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:        DefaultSiteBase,
			URLFragments:   append([]string(nil), intercept.DefaultFragments...),
			ScanBudget:     DefaultScanBudget,
			EnrichInterval: DefaultEnrichEvery,
		},
		GitHub: GitHubConfig{
			APIBaseURL:   github.DefaultAPIBase,
			OAuthBaseURL: github.DefaultOAuthBase,
			Scope:        DefaultOAuthScope,
		},
		Commit: CommitConfig{
			BasePath: DefaultCommitPath,
			DedupTTL: DefaultDedupTTL,
		},
		Push: PushConfig{
			SuccessResetDelay: 5 * time.Second,
			PollInterval:      DefaultPollInterval,
			PollWindow:        DefaultPollWindow,
		},
		IPC: IPCConfig{
			BindAddress: DefaultIPCBind,
		},
		Bus: BusConfig{
			Backend: "memory",
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir(), "gitgrind.db"),
		},
		Logging: LoggingConfig{
			Dir: filepath.Join(dataDir(), "logs"),
		},
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ".gitgrind"
	}
	return filepath.Join(home, ".gitgrind")
}

// Load loads configuration from the default locations with proper
// precedence: built-in defaults, then ~/.gitgrind/config.yaml, then
// ./.gitgrind/config.yaml, then environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	userPath := filepath.Join(dataDir(), "config.yaml")
	if err := loadAndMerge(cfg, userPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading user config: %w", err)
	}

	projectPath := filepath.Join(".", ".gitgrind", "config.yaml")
	if err := loadAndMerge(cfg, projectPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadAndMerge unmarshals the file over cfg. Fields absent from the
// YAML keep their current values.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITGRIND_SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("GITGRIND_GITHUB_CLIENT_ID"); v != "" {
		cfg.GitHub.ClientID = v
	}
	if v := os.Getenv("GITGRIND_GITHUB_CLIENT_SECRET"); v != "" {
		cfg.GitHub.ClientSecret = v
	}
	if v := os.Getenv("GITGRIND_GITHUB_API_BASE_URL"); v != "" {
		cfg.GitHub.APIBaseURL = v
	}
	if v := os.Getenv("GITGRIND_IPC_BIND"); v != "" {
		cfg.IPC.BindAddress = v
	}
	if v := os.Getenv("GITGRIND_BUS_BACKEND"); v != "" {
		cfg.Bus.Backend = v
	}
	if v := os.Getenv("GITGRIND_NATS_URL"); v != "" {
		cfg.Bus.NATSURL = v
	}
	if v := os.Getenv("GITGRIND_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("GITGRIND_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("GITGRIND_DEDUP_TTL_SECONDS")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			cfg.Commit.DedupTTL = time.Duration(secs) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("GITGRIND_SCAN_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Site.ScanBudget = n
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must not be empty")
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("site.base_url must be an http(s) URL, got %q", c.Site.BaseURL)
	}
	if c.Site.ScanBudget <= 0 {
		return fmt.Errorf("site.scan_budget must be positive, got %d", c.Site.ScanBudget)
	}
	if c.Commit.BasePath == "" {
		return fmt.Errorf("commit.base_path must not be empty")
	}
	if strings.HasPrefix(c.Commit.BasePath, "/") {
		return fmt.Errorf("commit.base_path must be repo-relative, got %q", c.Commit.BasePath)
	}
	if c.Commit.DedupTTL < 0 {
		return fmt.Errorf("commit.dedup_ttl must not be negative")
	}
	switch c.Bus.Backend {
	case "memory":
	case "nats":
		if c.Bus.NATSURL == "" {
			return fmt.Errorf("bus.nats_url is required when bus.backend is nats")
		}
	default:
		return fmt.Errorf("bus.backend must be memory or nats, got %q", c.Bus.Backend)
	}
	if c.IPC.BindAddress != "" && !isLoopbackBindAddress(c.IPC.BindAddress) {
		return fmt.Errorf("ipc.bind_address %q is not a loopback address; the message endpoint carries tokens", c.IPC.BindAddress)
	}
	return nil
}

// isLoopbackBindAddress reports whether addr binds only to localhost.
func isLoopbackBindAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
