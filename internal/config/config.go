package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains HTTP listener and step-dispatch settings.
type Server struct {
	Bind            string `toml:"bind"`
	APIToken        string `toml:"api_token"`
	BaseURL         string `toml:"base_url"`
	DispatchTimeout int    `toml:"dispatch_timeout"`
}

// Workflow contains pipeline recovery and alerting cadence settings.
type Workflow struct {
	RecoveryInterval   int `toml:"recovery_interval"`
	RecoveryMinAge     int `toml:"recovery_min_age"`
	MonitorInterval    int `toml:"monitor_interval"`
	AlertBatchSize     int `toml:"alert_batch_size"`
	StaleInProgressAge int `toml:"stale_in_progress_age"`
}

// Feeds contains RSS ingestion settings.
type Feeds struct {
	RequestTimeout int `toml:"request_timeout"`
	MaxPostsPerRun int `toml:"max_posts_per_run"`
	ExtractWindow  int `toml:"extract_window"`
}

// Generation contains article generation settings.
type Generation struct {
	PostsPerSection int `toml:"posts_per_section"`
}

// LLM contains shared LLM connection settings used by scoring and generation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	IssueReady     bool   `toml:"issue_ready"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pressroom.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Server: HTTP bind address, shared-secret token, self base URL for chained step dispatch
//   - Workflow: recovery scan and failure monitor cadence
//   - Feeds: RSS fetch timeouts and limits
//   - Generation: article generation limits
//   - LLM: connection settings shared by scoring and article generation
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Workflow      Workflow      `toml:"workflow"`
	Feeds         Feeds         `toml:"feeds"`
	Generation    Generation    `toml:"generation"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pressroom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and secrets overlaid from the environment.
// A .env file in the working directory is honored before environment lookups.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvironment()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvironment overlays secrets from the environment. Missing .env files
// are not an error.
func (c *Config) applyEnvironment() {
	_ = godotenv.Load()
	if token := strings.TrimSpace(os.Getenv("PRESSROOM_API_TOKEN")); token != "" {
		c.Server.APIToken = token
	}
	if key := strings.TrimSpace(os.Getenv("PRESSROOM_LLM_API_KEY")); key != "" {
		c.LLM.APIKey = key
	}
	if topic := strings.TrimSpace(os.Getenv("PRESSROOM_NTFY_TOPIC")); topic != "" {
		c.Notifications.NtfyTopic = topic
	}
}

// EnsureDirectories creates the configured data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the pressroom SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pressroom.db")
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if os.IsNotExist(err) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
