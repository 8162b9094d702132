package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// LibraryDir is the storage root; documents live under
	// library_dir/{owner}/{directory_name}/.
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Subscript contains configuration for the external recognition pipeline.
type Subscript struct {
	Binary             string `toml:"binary"`
	ConfigPath         string `toml:"config_path"`
	SegmentationModel  string `toml:"segmentation_model"`
	TranscriptionModel string `toml:"transcription_model"`
	// TimeoutSeconds bounds a single pipeline invocation. Zero disables the
	// timeout, which leaves a hung process holding its worker.
	TimeoutSeconds    int `toml:"timeout_seconds"`
	MaxAttempts       int `toml:"max_attempts"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

// Workflow contains worker pool and polling configuration.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Inbox contains configuration for drop-folder ingestion.
type Inbox struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Owner   string `toml:"owner"`
	Model   string `toml:"model"`
	// SettleSeconds is how long a file must stay unchanged before it is
	// submitted, so partially copied uploads are not picked up.
	SettleSeconds int `toml:"settle_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for folio.
//
// Configuration sections by subsystem:
//   - Paths: storage root and log directory
//   - Subscript: external recognition pipeline binary and invocation policy
//   - Workflow: worker pool size, polling intervals, heartbeats
//   - Inbox: drop-folder ingestion
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Subscript Subscript `toml:"subscript"`
	Workflow  Workflow  `toml:"workflow"`
	Inbox     Inbox     `toml:"inbox"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/folio/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
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

	projectPath, err := filepath.Abs("folio.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Inbox.Dir, err = expandPath(c.Inbox.Dir); err != nil {
		return err
	}
	if c.Subscript.ConfigPath != "" {
		if c.Subscript.ConfigPath, err = expandPath(c.Subscript.ConfigPath); err != nil {
			return err
		}
	}
	c.Subscript.Binary = strings.TrimSpace(c.Subscript.Binary)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate checks configuration values that would otherwise fail deep inside a job.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("config: library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("config: log_dir must be set")
	}
	if c.Subscript.Binary == "" {
		return errors.New("config: subscript binary must be set")
	}
	if c.Subscript.MaxAttempts < 1 {
		return fmt.Errorf("config: subscript max_attempts must be at least 1, got %d", c.Subscript.MaxAttempts)
	}
	if c.Subscript.TimeoutSeconds < 0 {
		return fmt.Errorf("config: subscript timeout_seconds must not be negative, got %d", c.Subscript.TimeoutSeconds)
	}
	if c.Workflow.Workers < 1 {
		return fmt.Errorf("config: workflow workers must be at least 1, got %d", c.Workflow.Workers)
	}
	if c.Inbox.Enabled {
		if strings.TrimSpace(c.Inbox.Dir) == "" {
			return errors.New("config: inbox dir must be set when inbox is enabled")
		}
		if strings.TrimSpace(c.Inbox.Owner) == "" {
			return errors.New("config: inbox owner must be set when inbox is enabled")
		}
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LibraryDir, c.Paths.LogDir}
	if c.Inbox.Enabled && strings.TrimSpace(c.Inbox.Dir) != "" {
		dirs = append(dirs, c.Inbox.Dir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
