// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DataDir     string `mapstructure:"DATA_DIR"`
	CloneDir    string `mapstructure:"CLONE_DIR"`
	SnapshotDir string `mapstructure:"SNAPSHOT_DIR"`
	ReposFile   string `mapstructure:"REPOS_FILE"`
	Version     string `mapstructure:"VERSION"`
	Only        string `mapstructure:"ONLY"`
	Clean       bool   `mapstructure:"CLEAN"`
	GitBaseURL  string `mapstructure:"GIT_BASE_URL"`
	GitToken    string `mapstructure:"GIT_TOKEN"`
	StoreURL    string `mapstructure:"STORE_URL"`
	APIAddr     string `mapstructure:"API_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("CLONE_DIR", "repos")
	viper.SetDefault("SNAPSHOT_DIR", "")
	viper.SetDefault("REPOS_FILE", "repos.yaml")
	viper.SetDefault("VERSION", "17.0")
	viper.SetDefault("ONLY", "")
	viper.SetDefault("CLEAN", false)
	viper.SetDefault("GIT_BASE_URL", "https://github.com")
	viper.SetDefault("GIT_TOKEN", "")
	viper.SetDefault("STORE_URL", "https://addons-catalog.example.com/store")
	viper.SetDefault("API_ADDR", "")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Version == "" {
		return nil, errors.New("VERSION must not be empty")
	}
	if cfg.ReposFile == "" {
		return nil, errors.New("REPOS_FILE is a required configuration field")
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = cfg.DataDir
	}

	return &cfg, nil
}

// StorePath is the per-version location of the persistent store file.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, fmt.Sprintf("catalog-%s.db", c.Version))
}

// BootstrapURL is the published location of a prior store snapshot for this
// version, fetched when no local store exists.
func (c *Config) BootstrapURL() string {
	return fmt.Sprintf("%s/catalog-%s.db", strings.TrimSuffix(c.StoreURL, "/"), c.Version)
}
