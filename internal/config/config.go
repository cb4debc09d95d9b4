// ABOUTME: Configuration loading and parsing for docchat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "DOCCHAT_CONFIG"

// DefaultSystemPrompt instructs the assistant to answer only from the
// selected documents and to cite them.
const DefaultSystemPrompt = `You are a document assistant.

1. Use only the fragments between «<<<File.ext|chunk:n>>> … <<<FIN>>>».
2. When citing, always write (File.ext · chunk:n).
3. If the information is not in the documents, answer exactly:
   Sorry, I don't have that information.
4. Always answer in clear, concise Markdown with the file reference.
5. If no file is given, check all available documents.
`

// Config represents the complete docchat configuration
type Config struct {
	API       APIConfig       `yaml:"api" toml:"api"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Render    RenderConfig    `yaml:"render" toml:"render"`
}

// APIConfig holds the chat backend address and credentials
type APIConfig struct {
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`

	ResponseHeaderTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	ResponseHeaderTimeoutRaw string `yaml:"response_header_timeout" toml:"response_header_timeout"`
}

// AssistantConfig holds the settings forwarded with every chat request
type AssistantConfig struct {
	SystemPrompt    string `yaml:"system_prompt" toml:"system_prompt"`
	MaxCharsPerFile int    `yaml:"max_chars_per_file" toml:"max_chars_per_file"`
	MaxHistory      int    `yaml:"max_history" toml:"max_history"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// RenderConfig controls terminal rendering of answers
type RenderConfig struct {
	Style    string `yaml:"style" toml:"style"` // glamour style name, or "auto"
	WordWrap int    `yaml:"word_wrap" toml:"word_wrap"`
}

// Default returns the configuration used when no file exists. Values set
// in a file override these field by field.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:                  "http://localhost:8000/api",
			ResponseHeaderTimeout:    2 * time.Minute,
			ResponseHeaderTimeoutRaw: "2m",
		},
		Assistant: AssistantConfig{
			SystemPrompt:    DefaultSystemPrompt,
			MaxCharsPerFile: 10000,
			MaxHistory:      8,
		},
		Database: DatabaseConfig{
			Path: DataPath("docchat.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Render: RenderConfig{
			Style:    "auto",
			WordWrap: 80,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Path returns the config file location.
// Priority: DOCCHAT_CONFIG env var > XDG_CONFIG_HOME/docchat/config.yaml > ~/.config/docchat/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "docchat", "config.yaml")
}

// DataPath returns name inside the docchat data directory.
// Priority: XDG_DATA_HOME/docchat > ~/.local/share/docchat
func DataPath(name string) string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return name // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "docchat", name)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https scheme")
	}
	if c.API.Password != "" && c.API.Username == "" {
		return fmt.Errorf("api.username is required when api.password is set")
	}
	if c.API.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("api.response_header_timeout must not be negative")
	}

	if c.Assistant.MaxCharsPerFile <= 0 {
		return fmt.Errorf("assistant.max_chars_per_file must be positive")
	}
	if c.Assistant.MaxHistory < 0 {
		return fmt.Errorf("assistant.max_history must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Render.WordWrap < 0 {
		return fmt.Errorf("render.word_wrap must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.API.ResponseHeaderTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.API.ResponseHeaderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_header_timeout %q: %w", cfg.API.ResponseHeaderTimeoutRaw, err)
		}
		cfg.API.ResponseHeaderTimeout = d
	}
	return nil
}
