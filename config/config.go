package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajkula/plistener/domain/model"
)

const (
	// ConfigPathEnv names an explicit config file
	ConfigPathEnv = "PLISTENER_CONFIG_PATH"

	// PathsEnv overrides watch.paths (colon separated)
	PathsEnv = "PLISTENER_PATHS"

	// KeepMinutesEnv overrides retention.keepMinutes
	KeepMinutesEnv = "PLISTENER_KEEP_MINUTES"

	// LogLevelEnv overrides general.logLevel
	LogLevelEnv = "PLISTENER_LOG_LEVEL"

	DefaultFileName = "config.yml"
)

// Config holds the tracker configuration
type Config struct {
	// General configuration
	General struct {
		// WorkingDir holds data/ (versions) and changes/ (records)
		WorkingDir string `yaml:"workingDir"`

		// LogLevel is the logging level
		LogLevel string `yaml:"logLevel"`
	} `yaml:"general"`

	// Watch configuration
	Watch struct {
		// Paths are the roots scanned and watched recursively
		Paths []string `yaml:"paths"`

		// Patterns are glob patterns matched against file basenames
		Patterns []string `yaml:"patterns"`

		// Debounce is how long the notifier coalesces events into one batch
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"watch"`

	// Retention configuration
	Retention struct {
		// KeepMinutes is how long change events are kept
		KeepMinutes int `yaml:"keepMinutes"`
	} `yaml:"retention"`

	// HTTP server configuration
	HTTP struct {
		// Enabled enables the read-only HTTP view
		Enabled bool `yaml:"enabled"`

		// Address to bind the HTTP server
		Address string `yaml:"address"`

		// Port to bind the HTTP server
		Port int `yaml:"port"`
	} `yaml:"http"`

	Logging struct {
		Level       string `yaml:"level"` // "ERROR", "WARN", "INFO", "DEBUG"
		ChannelSize int    `yaml:"channelSize"`
		Format      string `yaml:"format"` // "json", "text"
		Output      string `yaml:"output"` // "stdout", "stderr", "file"
		FilePath    string `yaml:"filePath"`
	} `yaml:"logging"`
}

// Overrides are command-line values applied after the file and the environment.
// Zero values are ignored.
type Overrides struct {
	ConfigPath  string
	LogLevel    string
	Paths       []string
	KeepMinutes int
	HTTPEnabled bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	c := &Config{}

	// General configuration
	c.General.WorkingDir = "."
	c.General.LogLevel = "info"

	// Watch configuration
	c.Watch.Paths = []string{"~/Library/Preferences", "/Library/Preferences"}
	c.Watch.Patterns = []string{"*.plist"}
	c.Watch.Debounce = 500 * time.Millisecond

	// one week
	c.Retention.KeepMinutes = 7 * 24 * 60

	// HTTP server configuration
	c.HTTP.Enabled = false
	c.HTTP.Address = "127.0.0.1"
	c.HTTP.Port = 7584

	// Logging configuration defaults
	c.Logging.Level = "INFO"
	c.Logging.ChannelSize = 1000
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"
	c.Logging.FilePath = ""

	return c
}

// Keep returns the retention window
func (c *Config) Keep() time.Duration {
	return time.Duration(c.Retention.KeepMinutes) * time.Minute
}

// DataDir is where versions are stored
func (c *Config) DataDir() string {
	return filepath.Join(c.General.WorkingDir, "data")
}

// ChangesDir is where change records are stored
func (c *Config) ChangesDir() string {
	return filepath.Join(c.General.WorkingDir, "changes")
}

// HTTPAddr returns host:port of the HTTP view
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Address, c.HTTP.Port)
}

// ConfigPath resolves which file Load reads: explicit option, then the
// environment, then config.yml in the working directory
func ConfigPath(workingDir, explicit string) (path string, isDefault bool) {
	if explicit != "" {
		return explicit, false
	}
	if env := os.Getenv(ConfigPathEnv); env != "" {
		return env, false
	}
	return filepath.Join(workingDir, DefaultFileName), true
}

// Load builds the configuration: defaults, then the config file, then the
// environment, then the overrides. A missing default config file is not an
// error, a missing explicit one is.
func Load(workingDir string, overrides Overrides) (*Config, error) {
	if workingDir == "" {
		workingDir = "."
	}

	config := DefaultConfig()
	config.General.WorkingDir = workingDir

	path, isDefault := ConfigPath(workingDir, overrides.ConfigPath)
	if err := loadFile(config, path, isDefault); err != nil {
		return nil, err
	}

	// the working dir chosen at startup wins over the one in the file
	config.General.WorkingDir = workingDir

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	applyOverrides(config, overrides)

	if err := config.resolvePaths(); err != nil {
		return nil, &model.ConfigError{Path: path, Err: err}
	}

	if err := Validate(config); err != nil {
		return nil, &model.ConfigError{Path: path, Err: err}
	}

	return config, nil
}

func loadFile(config *Config, path string, isDefault bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && isDefault {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return &model.ConfigError{Path: path, Err: fmt.Errorf("config file not found")}
		}
		return &model.ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return &model.ConfigError{Path: path, Err: fmt.Errorf("failed to parse config file: %w", err)}
	}
	return nil
}

func applyEnv(config *Config) error {
	if paths := os.Getenv(PathsEnv); paths != "" {
		config.Watch.Paths = splitPaths(paths)
	}

	if keep := os.Getenv(KeepMinutesEnv); keep != "" {
		minutes, err := strconv.Atoi(keep)
		if err != nil {
			return &model.ConfigError{Err: fmt.Errorf("invalid %s %q: %w", KeepMinutesEnv, keep, err)}
		}
		config.Retention.KeepMinutes = minutes
	}

	if level := os.Getenv(LogLevelEnv); level != "" {
		config.setLogLevel(level)
	}
	return nil
}

func applyOverrides(config *Config, o Overrides) {
	if o.LogLevel != "" {
		config.setLogLevel(o.LogLevel)
	}
	if len(o.Paths) > 0 {
		config.Watch.Paths = o.Paths
	}
	if o.KeepMinutes > 0 {
		config.Retention.KeepMinutes = o.KeepMinutes
	}
	if o.HTTPEnabled {
		config.HTTP.Enabled = true
	}
}

// keeps the general and logging levels in sync
func (c *Config) setLogLevel(level string) {
	c.General.LogLevel = strings.ToLower(level)
	c.Logging.Level = strings.ToUpper(level)
}

func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// makes the working dir and watch roots absolute, expanding ~
func (c *Config) resolvePaths() error {
	wd, err := expandPath(c.General.WorkingDir)
	if err != nil {
		return err
	}
	c.General.WorkingDir = wd

	for i, p := range c.Watch.Paths {
		resolved, err := expandPath(p)
		if err != nil {
			return err
		}
		c.Watch.Paths[i] = resolved
	}

	if c.Logging.FilePath != "" && !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(c.General.WorkingDir, c.Logging.FilePath)
	}
	return nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of %s: %w", p, err)
	}
	return abs, nil
}

// Save writes the configuration to a file
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Create parent directory if necessary
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration
func Validate(config *Config) error {
	logLevel := strings.ToLower(config.General.LogLevel)
	if logLevel != "debug" && logLevel != "info" && logLevel != "warn" && logLevel != "error" {
		return fmt.Errorf("invalid log level: %s", config.General.LogLevel)
	}

	if len(config.Watch.Paths) == 0 {
		return fmt.Errorf("no watch paths configured")
	}

	if len(config.Watch.Patterns) == 0 {
		return fmt.Errorf("no watch patterns configured")
	}
	for _, pattern := range config.Watch.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
		}
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("invalid debounce: %s", config.Watch.Debounce)
	}

	if config.Retention.KeepMinutes <= 0 {
		return fmt.Errorf("invalid retention keepMinutes: %d", config.Retention.KeepMinutes)
	}

	// check ports
	if config.HTTP.Enabled && (config.HTTP.Port < 1 || config.HTTP.Port > 65535) {
		return fmt.Errorf("invalid HTTP port: %d", config.HTTP.Port)
	}

	if config.Logging.ChannelSize < 0 {
		return fmt.Errorf("invalid logging channelSize: %d", config.Logging.ChannelSize)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", config.Logging.Format)
	}

	switch strings.ToLower(config.Logging.Output) {
	case "", "stdout", "stderr":
	case "file":
		if config.Logging.FilePath == "" {
			return fmt.Errorf("logging output is file but no filePath is set")
		}
	default:
		return fmt.Errorf("invalid logging output: %s", config.Logging.Output)
	}

	return nil
}
