package config

import "time"

// StateStore

type StateStoreType string

const (
	InMemoryStateStoreType StateStoreType = "in_memory"
	RedisStateStoreType    StateStoreType = "redis"
	PostgresStateStoreType StateStoreType = "postgres"
)

type InMemoryStateStoreConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type RedisStateStoreConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresStateStoreConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type StateStoreConfig struct {
	Type     StateStoreType           `yaml:"type"`
	InMemory InMemoryStateStoreConfig `yaml:"in_memory"`
	Redis    RedisStateStoreConfig    `yaml:"redis"`
	Postgres PostgresStateStoreConfig `yaml:"postgres"`
}

func (c StateStoreConfig) withDefaults() StateStoreConfig {
	if c.Type == "" {
		c.Type = InMemoryStateStoreType
	}
	if c.Type == PostgresStateStoreType && c.Postgres.Table == "" {
		c.Postgres.Table = "sync_state"
	}
	return c
}
