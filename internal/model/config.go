package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds connection settings for the mailbox server.
type IMAPConfig struct {
	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAPS port (default 993).
	Port int `mapstructure:"port" yaml:"port"`

	// Username is the account identifier; the password lives in the
	// system keyring, never in the config file.
	Username string `mapstructure:"username" yaml:"username"`

	// Inbox is the folder holding incoming invoices.
	Inbox string `mapstructure:"inbox" yaml:"inbox"`

	// Archive is the folder processed invoices are moved to.
	Archive string `mapstructure:"archive" yaml:"archive"`
}

// OllamaConfig holds settings for the optional local-LLM extraction
// fallback. When disabled, the regex heuristics are the only source of
// suggestions.
type OllamaConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Host       string `mapstructure:"host" yaml:"host"`
	Model      string `mapstructure:"model" yaml:"model"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP IMAPConfig `mapstructure:"imap" yaml:"imap"`

	// ArchivePath is the base directory of the filing archive.
	ArchivePath string `mapstructure:"archive_path" yaml:"archive_path"`

	// CacheSize bounds the in-memory message cache.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`

	// VendorDenylist adds operator-specific terms to the built-in
	// vendor deny-list (e.g. the operator's own domain).
	VendorDenylist []string `mapstructure:"vendor_denylist" yaml:"vendor_denylist"`

	Ollama OllamaConfig `mapstructure:"ollama" yaml:"ollama"`
}

// IsEmailConfigured reports whether the IMAP settings are complete
// enough to attempt a connection.
func (c *AppConfig) IsEmailConfigured() bool {
	return c.IMAP.Host != "" && c.IMAP.Username != ""
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/belegmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "belegmail", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Port:    993,
			Inbox:   "Rechnungseingang",
			Archive: "Rechnungseingang/archiviert",
		},
		CacheSize: 20,
		Ollama: OllamaConfig{
			Host:       "http://localhost:11434",
			Model:      "phi3",
			TimeoutSec: 30,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.inbox", "Rechnungseingang")
	v.SetDefault("imap.archive", "Rechnungseingang/archiviert")
	v.SetDefault("cache_size", 20)
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "phi3")
	v.SetDefault("ollama.timeout_sec", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.CacheSize < 1 {
		cfg.CacheSize = 20
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap", cfg.IMAP)
	v.Set("archive_path", cfg.ArchivePath)
	v.Set("cache_size", cfg.CacheSize)
	v.Set("vendor_denylist", cfg.VendorDenylist)
	v.Set("ollama", cfg.Ollama)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
