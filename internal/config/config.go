package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Database      DatabaseConfig      `yaml:"database" json:"database"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	// DataDir holds the daemon's own state (database, logs, lock file).
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// BackupRoot is the mounted backup volume packages are backed up to.
	BackupRoot string `yaml:"backup_root" json:"backup_root"`
	// ArchiveRoot holds the installed package archives.
	ArchiveRoot string `yaml:"archive_root" json:"archive_root"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// NotificationsConfig contains notification retention settings
type NotificationsConfig struct {
	PruneSchedule string `yaml:"prune_schedule" json:"prune_schedule"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5959,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Database: DatabaseConfig{
			Path: "./data/halcyon.db",
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			BackupRoot:  "/media/backup",
			ArchiveRoot: "./data/package-data/archive",
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Notifications: NotificationsConfig{
			PruneSchedule: "0 3 * * *",
			RetentionDays: 0, // 0 disables pruning
		},
	}

	// Load from config file if it exists
	configPath := getEnv("CONFIG_PATH", "./config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variable overrides
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if dir := os.Getenv("BACKUP_ROOT"); dir != "" {
		cfg.Storage.BackupRoot = dir
	}
	if dir := os.Getenv("ARCHIVE_ROOT"); dir != "" {
		cfg.Storage.ArchiveRoot = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.BackupRoot == "" {
		return fmt.Errorf("backup root must be configured")
	}
	if c.Storage.ArchiveRoot == "" {
		return fmt.Errorf("archive root must be configured")
	}
	if c.Notifications.RetentionDays < 0 {
		return fmt.Errorf("invalid notification retention: %d days", c.Notifications.RetentionDays)
	}
	return nil
}

// LockFilePath returns the daemon's single-instance lock file location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Storage.DataDir, "halcyond.lock")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
