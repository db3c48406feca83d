package config

type SinkType string

const (
	SinkTypeMemory   SinkType = "memory"
	SinkTypePostgres SinkType = "postgres"
	SinkTypeS3       SinkType = "s3"
)

type LogSinkLevel string

const (
	LogSinkLevelDebug LogSinkLevel = "debug"
	LogSinkLevelInfo  LogSinkLevel = "info"
	LogSinkLevelWarn  LogSinkLevel = "warn"
	LogSinkLevelError LogSinkLevel = "error"
)

type PostgresSinkConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type S3SinkConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type SinkConfig struct {
	ID   ID       `yaml:"id"`
	Type SinkType `yaml:"type"`
	// LogLevel wraps the sink in a LogSink when set.
	LogLevel LogSinkLevel `yaml:"log_level"`
	// Destinations
	// Postgres
	Postgres PostgresSinkConfig `yaml:"postgres"`
	// Object Storage
	S3 S3SinkConfig `yaml:"s3"`
}
