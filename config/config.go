package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	API     APIConfig     `mapstructure:"api"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// IngestConfig holds project-import settings.
type IngestConfig struct {
	ThumbnailHeight int `mapstructure:"thumbnail_height"`
	BatchSize       int `mapstructure:"batch_size"`
}

// MQTTConfig holds the optional job-event publisher settings.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// APIConfig holds API-facing settings.
type APIConfig struct {
	LocalesDir      string `mapstructure:"locales_dir"`
	DefaultLanguage string `mapstructure:"default_language"`
	SessionSecret   string `mapstructure:"session_secret"`
}

// CleanupConfig holds the orphaned-thumbnail sweeper settings. An interval
// of 0 disables the sweeper.
type CleanupConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PAPYRUSVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "./data")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("ingest.thumbnail_height", 200)
	v.SetDefault("ingest.batch_size", 100)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "papyrusviz")
	v.SetDefault("mqtt.topic", "papyrusviz/jobs")

	v.SetDefault("api.locales_dir", "./web/locales")
	v.SetDefault("api.default_language", "en")
	v.SetDefault("api.session_secret", "papyrusviz-session")

	v.SetDefault("cleanup.interval_minutes", 60)
}

func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return nil
}
