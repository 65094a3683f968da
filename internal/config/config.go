// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	LLM      LLMConfig
	Ingest   IngestConfig
	Scan     ScanConfig
	Server   ServerConfig
	Storage  StorageConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path       string
	Migrations string
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider       string
	APIKeyEnv      string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// IngestConfig tunes reconciliation and anomaly detection.
type IngestConfig struct {
	ReconcileWindowDays int
	AnomalyMultiplier   float64
}

// ScanConfig tunes the background scanning pipeline.
type ScanConfig struct {
	MaxAttempts int
	SinceDays   int
	TokenDir    string
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string
}

// StorageConfig holds the document blob store location.
type StorageConfig struct {
	Dir string
}

// Key resolves the API key: explicit value wins, else the named env var.
func (l LLMConfig) Key() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	return os.Getenv(l.APIKeyEnv)
}

// Load reads configuration from file and env. Env var overrides use prefix
// LEDGERPILOT_.
func Load() (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgerpilot")

	// default values
	v.SetDefault("database.path", filepath.Join(dataDir, "ledgerpilot.db"))
	v.SetDefault("database.migrations", "internal/database/migrations")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout_seconds", 30)
	v.SetDefault("ingest.reconcile_window_days", 1)
	v.SetDefault("ingest.anomaly_multiplier", 3.0)
	v.SetDefault("scan.max_attempts", 3)
	v.SetDefault("scan.since_days", 7)
	v.SetDefault("scan.token_dir", filepath.Join(dataDir, "tokens"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.dir", filepath.Join(dataDir, "blobs"))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERPILOT_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgerpilot"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERPILOT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
