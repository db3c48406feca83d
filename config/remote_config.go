package config

import (
	"os"
	"time"
)

const (
	DefaultRemoteTimeout    = 30 * time.Second
	DefaultComparisonOffset = 24 * time.Hour
)

// RemoteConfig holds the ArchivesSpace API connection.
type RemoteConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	// ComparisonOffset is subtracted from the update watermark before it is
	// sent as the user_mtime/system_mtime threshold.
	ComparisonOffset time.Duration `yaml:"comparison_offset"`
	UpdatePageSize   int           `yaml:"update_page_size"`
}

func (c RemoteConfig) withEnv() RemoteConfig {
	if v := os.Getenv("ASPACE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("ASPACE_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("ASPACE_PASSWORD"); v != "" {
		c.Password = v
	}
	return c
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultRemoteTimeout
	}
	if c.ComparisonOffset == 0 {
		c.ComparisonOffset = DefaultComparisonOffset
	}
	return c
}
