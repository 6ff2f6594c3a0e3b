package config

import (
	"fmt"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the TOML configuration from the specified path
// (defaulting to "config.toml") and fills in defaults for anything
// omitted. Missing config files are an error; commands that can run
// without one handle that themselves.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	applyDefaults(&cfg)

	log.Debugf("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// Default returns a usable configuration when no config file exists.
func Default() models.Config {
	var cfg models.Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *models.Config) {
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "artbot.db"
	}
	if cfg.SavePath == "" {
		cfg.SavePath = "images"
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 30
	}
	if cfg.ApiKey == "" {
		log.Warn("ApiKey is not set, submitting jobs anonymously")
	}
}
