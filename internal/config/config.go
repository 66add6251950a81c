// Package config loads server configuration from an optional config file
// and LIVEFEED_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Video     VideoConfig     `mapstructure:"video"`
	Inference InferenceConfig `mapstructure:"inference"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CacheConfig struct {
	// Capacity bounds the description cache; 0 disables caching.
	Capacity int `mapstructure:"capacity"`
}

type VideoConfig struct {
	// FrameInterval keeps every n-th decoded frame.
	FrameInterval int `mapstructure:"frame_interval"`
}

type InferenceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Port           int           `mapstructure:"port"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Backend selects the description history store: none, file or postgres.
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     string `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	EmbeddingDim     int    `mapstructure:"embedding_dim"`
}

// Load reads livefeed-config.{yaml,json} from the working directory or
// $HOME if present, then applies environment overrides. A missing config
// file is not an error; defaults cover everything.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 300*time.Second)
	v.SetDefault("server.write_timeout", 300*time.Second)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("video.frame_interval", 30)
	v.SetDefault("inference.base_url", "http://localhost")
	v.SetDefault("inference.port", 11434)
	v.SetDefault("inference.model", "llama3.2-vision:11b")
	v.SetDefault("inference.embedding_model", "nomic-embed-text")
	v.SetDefault("inference.max_concurrent", 2)
	v.SetDefault("inference.timeout", 120*time.Second)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.dir", "description_history")
	v.SetDefault("storage.postgres_host", "localhost")
	v.SetDefault("storage.postgres_port", "5432")
	v.SetDefault("storage.postgres_user", "livefeed")
	v.SetDefault("storage.postgres_password", "")
	v.SetDefault("storage.postgres_db", "livefeed")
	v.SetDefault("storage.embedding_dim", 768)

	v.SetConfigName("livefeed-config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("LIVEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
