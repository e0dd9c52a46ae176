// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Telegram struct {
		APIID       int    `yaml:"api_id" validate:"required"`
		APIHash     string `yaml:"api_hash" validate:"required"`
		Phone       string `yaml:"phone" validate:"required"`
		Password    string `yaml:"password"` // 2FA password, optional
		Channel     string `yaml:"channel" validate:"required"`
		SessionFile string `yaml:"session_file"`
	} `yaml:"telegram"`

	AssemblyAI struct {
		APIKey       string `yaml:"api_key" validate:"required"`
		LanguageCode string `yaml:"language_code"`
		BaseURL      string `yaml:"base_url"`
		// Pointers so an absent key gets the default while an explicit
		// zero is rejected: polling needs a positive interval and deadline.
		PollIntervalSeconds *int `yaml:"poll_interval_seconds" validate:"min=1"`
		PollTimeoutMinutes  *int `yaml:"poll_timeout_minutes" validate:"min=1"`
	} `yaml:"assemblyai"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file" validate:"required"`
	} `yaml:"google"`

	Storage struct {
		DownloadDir      string `yaml:"download_dir"`
		TranscriptionDir string `yaml:"transcription_dir"`
		Database         string `yaml:"database"`
	} `yaml:"storage"`

	Pipeline struct {
		// Pointer so an explicit zero means "no delay" rather than the
		// default.
		ItemDelaySeconds *int `yaml:"item_delay_seconds" validate:"min=0"`
	} `yaml:"pipeline"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"min=0"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"min=0"`
	} `yaml:"cleanup"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the YAML config file, applies defaults and validates the
// result. A missing or malformed file is a startup-fatal error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.SessionFile == "" {
		c.Telegram.SessionFile = "session.json"
	}
	if c.AssemblyAI.LanguageCode == "" {
		c.AssemblyAI.LanguageCode = "fr"
	}
	if c.AssemblyAI.PollIntervalSeconds == nil {
		c.AssemblyAI.PollIntervalSeconds = intPtr(5)
	}
	if c.AssemblyAI.PollTimeoutMinutes == nil {
		c.AssemblyAI.PollTimeoutMinutes = intPtr(30)
	}
	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = "downloads"
	}
	if c.Storage.TranscriptionDir == "" {
		c.Storage.TranscriptionDir = "transcriptions"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "transcriber.db"
	}
	if c.Pipeline.ItemDelaySeconds == nil {
		c.Pipeline.ItemDelaySeconds = intPtr(1)
	}
}

func intPtr(v int) *int { return &v }

// PollInterval returns the transcription poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(*c.AssemblyAI.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the overall transcription polling deadline.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(*c.AssemblyAI.PollTimeoutMinutes) * time.Minute
}

// ItemDelay returns the fixed delay inserted after each processed item.
func (c *Config) ItemDelay() time.Duration {
	return time.Duration(*c.Pipeline.ItemDelaySeconds) * time.Second
}
