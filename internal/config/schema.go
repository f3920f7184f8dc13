// Package config provides configuration loading and validation for nexarchive.
// It supports TOML configuration files with environment variable expansion,
// default values, validation and hot reload.
//
// Configuration structure:
//   - [workspace]: data directory (archive.db, state/, exports/)
//   - [logging]: logging level, format, and output
//   - [archive]: default pacing profile of new jobs
//   - [scheduler]: queue config mode, timezone, fetch workers
//   - [state]: where the scheduler record is persisted (file or redis)
//   - [source]: where messages are read from (sqlite or tdexport)
//   - [sink]: archive database
//   - [export]: default export location
//   - [notify]: Telegram and AMQP event notifiers
//   - [metrics]: Prometheus endpoint
//   - [mcp]: MCP stdio tool server
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: token = "${TELEGRAM_BOT_TOKEN}"
package config

import (
	"path/filepath"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
)

// Config represents the main application configuration.
type Config struct {
	Workspace WorkspaceConfig    `toml:"workspace"`
	Logging   LoggingConfig      `toml:"logging"`
	Archive   archive.ConfigView `toml:"archive"`
	Scheduler SchedulerConfig    `toml:"scheduler"`
	State     StateConfig        `toml:"state"`
	Source    SourceConfig       `toml:"source"`
	Sink      SinkConfig         `toml:"sink"`
	Export    ExportConfig       `toml:"export"`
	Notify    NotifyConfig       `toml:"notify"`
	Metrics   MetricsConfig      `toml:"metrics"`
	MCP       MCPConfig          `toml:"mcp"`
}

// WorkspaceConfig is the [workspace] section.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig is the [logging] section.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// SchedulerConfig is the [scheduler] section.
type SchedulerConfig struct {
	QueueConfigMode string `toml:"queue_config_mode"`
	Timezone        string `toml:"timezone"`
	FetchWorkers    int    `toml:"fetch_workers"`
	QueueSize       int    `toml:"queue_size"`
}

// StateConfig selects where the scheduler record is kept.
type StateConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisKey  string `toml:"redis_key"`
	RedisDB   int    `toml:"redis_db"`
}

// SourceConfig selects where messages are read from.
type SourceConfig struct {
	Kind     string `toml:"kind"`
	Path     string `toml:"path"`
	Timezone string `toml:"timezone"`
}

// SinkConfig is the [sink] section.
type SinkConfig struct {
	Path string `toml:"path"`
}

// ExportConfig is the [export] section.
type ExportConfig struct {
	DefaultPath string `toml:"default_path"`
}

// NotifyConfig is the [notify] section.
type NotifyConfig struct {
	BufferSize int            `toml:"buffer_size"`
	Telegram   TelegramConfig `toml:"telegram"`
	AMQP       AMQPConfig     `toml:"amqp"`
}

// TelegramConfig configures event messages to an operator chat.
type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	Token              string   `toml:"token"`
	ChatID             int64    `toml:"chat_id"`
	MinIntervalSeconds int      `toml:"min_interval_seconds"`
	Events             []string `toml:"events"`
}

// AMQPConfig configures publishing of events to an AMQP exchange.
type AMQPConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

// MetricsConfig is the [metrics] section.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// MCPConfig is the [mcp] section.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// SinkPath returns the archive database path.
func (c *Config) SinkPath() string {
	if c.Sink.Path != "" {
		return c.Sink.Path
	}
	return filepath.Join(c.Workspace.Path, constants.ArchiveDBFile)
}

// StatePath returns the state file path.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(c.Workspace.Path, constants.StateDir, constants.StateFile)
}

// ExportDir returns the default export directory.
func (c *Config) ExportDir() string {
	if c.Export.DefaultPath != "" {
		return c.Export.DefaultPath
	}
	return filepath.Join(c.Workspace.Path, constants.ExportsDir)
}

// SocketPath returns the control socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Workspace.Path, constants.SocketFile)
}

// PIDPath returns the PID file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Workspace.Path, constants.PIDFile)
}
