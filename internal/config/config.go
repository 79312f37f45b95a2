// Package config provides operator-level configuration management for
// memorybank. This governs process-wide defaults (logging, oracle
// endpoints, data directory); the per-store config.json described in
// the store layout (ollama endpoints, chunking defaults, decay,
// pack_modes) is owned by internal/store and is independent of this
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents operator-level configuration.
type Config struct {
	DataDir string        `toml:"data_dir"`
	Oracle  OracleConfig  `toml:"oracle"`
	Logging LoggingConfig `toml:"logging"`
}

// OracleConfig selects and configures the embedding/chat backend.
type OracleConfig struct {
	Backend       string `toml:"backend"` // "ollama" or "gemini"
	BaseURL       string `toml:"base_url"`
	EmbedModel    string `toml:"embed_model"`
	ChatModel     string `toml:"chat_model"`
	APIKey        string `toml:"api_key"`
	ConnectSecs   int    `toml:"connect_timeout_seconds"`
	ReadSecs      int    `toml:"read_timeout_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// DefaultConfig returns the default configuration with all values set.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Oracle: OracleConfig{
			Backend:     "ollama",
			BaseURL:     "http://localhost:11434",
			EmbedModel:  "nomic-embed-text",
			ChatModel:   "llama3.1",
			APIKey:      os.Getenv("GEMINI_API_KEY"),
			ConnectSecs: 5,
			ReadSecs:    60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultDataDir returns the default per-user data directory, used when
// no project store root is given explicitly.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "memorybank")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "memorybank")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "memorybank")
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "memorybank")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".memory-bank")
	}
}

// DefaultConfigPath returns the default operator config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "memorybank.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// LoadFromString loads configuration from a TOML string, merging with defaults.
func LoadFromString(tomlStr string) (*Config, error) {
	cfg := DefaultConfig()

	expanded := os.ExpandEnv(tomlStr)
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config string: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()
	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	c.DataDir = expandTilde(c.DataDir)
}

// Save saves the configuration to a file in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
