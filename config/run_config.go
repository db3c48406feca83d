package config

import (
	"fmt"
	"time"
)

const DefaultLockTTL = time.Hour

type RunConfig struct {
	Workers  int           `yaml:"workers"`
	MaxPages int           `yaml:"max_pages"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

func (c RunConfig) validate() error {
	if c.MaxPages < 0 {
		return fmt.Errorf("run.max_pages must not be negative, got %d", c.MaxPages)
	}
	if c.LockTTL < 0 {
		return fmt.Errorf("run.lock_ttl must not be negative, got %s", c.LockTTL)
	}
	return nil
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.LockTTL == 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}

type EventServerConfig struct {
	Port        string `yaml:"port"`
	Path        string `yaml:"path"`
	MetricsPath string `yaml:"metrics_path"`
}

type LedgerConfig struct {
	Dir string `yaml:"dir"`
}
