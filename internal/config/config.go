package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/state"
)

// Load reads the configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// LoadOptional is Load, but a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		expandEnvVars(cfg)
		return cfg, nil
	}
	return Load(path)
}

// Parse decodes a TOML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// keys missing from the file keep their defaults
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	applyDefaults(cfg)
	expandEnvVars(cfg)
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{Archive: archive.DefaultJobConfig().View()}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills empty fields.
func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = constants.DefaultWorkspace
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Scheduler.QueueConfigMode == "" {
		c.Scheduler.QueueConfigMode = string(archive.QueueSnapshot)
	}
	if c.Scheduler.FetchWorkers == 0 {
		c.Scheduler.FetchWorkers = 2
	}
	if c.Scheduler.QueueSize == 0 {
		c.Scheduler.QueueSize = 16
	}

	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.RedisKey == "" {
		c.State.RedisKey = state.DefaultRedisKey
	}

	if c.Source.Kind == "" {
		c.Source.Kind = "sqlite"
	}

	if c.Notify.BufferSize == 0 {
		c.Notify.BufferSize = 256
	}
	if c.Notify.AMQP.Exchange == "" {
		c.Notify.AMQP.Exchange = "nexarchive.events"
	}
	if c.Notify.AMQP.RoutingKey == "" {
		c.Notify.AMQP.RoutingKey = "archive"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = constants.DefaultMetricsAddr
	}
}

// Validate returns every problem found, nil when the config is valid.
func (c *Config) Validate() []error {
	var errs []error

	if err := validatePath(c.Workspace.Path, "workspace.path"); err != nil {
		errs = append(errs, err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.Newf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.Newf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if err := c.Archive.Config().Validate(); err != nil {
		errs = append(errs, errors.Wrap(err, "archive"))
	}

	if _, err := archive.ParseQueueConfigMode(c.Scheduler.QueueConfigMode); err != nil {
		errs = append(errs, errors.Newf("invalid scheduler.queue_config_mode: %s (expected: snapshot, inherit)", c.Scheduler.QueueConfigMode))
	}
	if c.Scheduler.FetchWorkers < 1 {
		errs = append(errs, errors.New("scheduler.fetch_workers must be >= 1"))
	}
	if c.Scheduler.Timezone != "" && c.Scheduler.Timezone != "Local" {
		if _, err := timeLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, errors.Newf("invalid scheduler.timezone: %s", c.Scheduler.Timezone))
		}
	}

	switch c.State.Backend {
	case "file":
	case "redis":
		if c.State.RedisAddr == "" {
			errs = append(errs, errors.New("state.redis_addr is required when state.backend is 'redis'"))
		}
	default:
		errs = append(errs, errors.Newf("invalid state.backend: %s (expected: file, redis)", c.State.Backend))
	}

	switch c.Source.Kind {
	case "sqlite", "tdexport":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required"))
		}
	default:
		errs = append(errs, errors.Newf("invalid source.kind: %s (expected: sqlite, tdexport)", c.Source.Kind))
	}

	if c.Notify.Telegram.Enabled {
		if err := validateTelegramToken(c.Notify.Telegram.Token); err != nil {
			errs = append(errs, err)
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram.chat_id is required when telegram is enabled"))
		}
	}
	if c.Notify.AMQP.Enabled && c.Notify.AMQP.URL == "" {
		errs = append(errs, formatValidationError("notify.amqp.url", "is required when amqp is enabled", ""))
	}

	return errs
}

// ArchivePatch returns the [archive] section as a patch setting every field.
func (c *Config) ArchivePatch() archive.ConfigPatch {
	v := c.Archive
	return archive.ConfigPatch{
		MinDelayMs:              &v.MinDelayMs,
		MaxDelayMs:              &v.MaxDelayMs,
		BurstPauseMs:            &v.BurstPauseMs,
		BatchesBeforeBurstPause: &v.BatchesBeforeBurstPause,
		LongPauseMs:             &v.LongPauseMs,
		BatchesBeforeLongPause:  &v.BatchesBeforeLongPause,
		MinBatchSize:            &v.MinBatchSize,
		MaxBatchSize:            &v.MaxBatchSize,
		RandomizeOrder:          &v.RandomizeOrder,
		SimulateReading:         &v.SimulateReading,
		RespectActiveHours:      &v.RespectActiveHours,
		ActiveHourStart:         &v.ActiveHourStart,
		ActiveHourEnd:           &v.ActiveHourEnd,
		MaxMessagesPerHour:      &v.MaxMessagesPerHour,
		MaxMessagesPerDay:       &v.MaxMessagesPerDay,
		StopOnRateLimit:         &v.StopOnRateLimit,
		MaxRetries:              &v.MaxRetries,
		AutoExportOnComplete:    &v.AutoExportOnComplete,
		ExportFormat:            &v.ExportFormat,
		ExportPath:              &v.ExportPath,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Logging.Level, Format: c.Logging.Format, Output: c.Logging.Output}
}

func validateTelegramToken(token string) error {
	if token == "" {
		return errors.New("notify.telegram.token is required when telegram is enabled")
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return errors.Newf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskSecret(token))
	}

	botID := parts[0]
	if len(botID) < 3 || len(botID) > 15 {
		return errors.Newf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return errors.Newf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}
	if len(parts[1]) < 10 || len(parts[1]) > 50 {
		return errors.Newf("telegram token has invalid token length (expected 10-50 characters, got %d)", len(parts[1]))
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return errors.Newf("%s cannot be empty", fieldName)
	}
	if strings.Contains(path, "..") {
		return errors.Newf("%s contains potentially dangerous path traversal sequence", fieldName)
	}
	return nil
}

func timeLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

// Location returns the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" || c.Scheduler.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := timeLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.Scheduler.Timezone)
	}
	return loc, nil
}

// expandEnvVars expands environment references in string fields.
func expandEnvVars(c *Config) {
	for _, s := range []*string{
		&c.Workspace.Path,
		&c.Logging.Output,
		&c.State.Path,
		&c.State.RedisAddr,
		&c.Source.Path,
		&c.Sink.Path,
		&c.Export.DefaultPath,
		&c.Archive.ExportPath,
		&c.Notify.Telegram.Token,
		&c.Notify.AMQP.URL,
	} {
		*s = expandEnv(*s)
	}

	for _, p := range []*string{
		&c.Workspace.Path,
		&c.State.Path,
		&c.Source.Path,
		&c.Sink.Path,
		&c.Export.DefaultPath,
		&c.Archive.ExportPath,
	} {
		*p = expandHome(*p)
	}
}

// expandEnv expands ${VAR} and ${VAR:default}.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	rest := s[end+1:]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val + rest
		}
		return defaultVal + rest
	}

	// no default
	return os.Getenv(content) + rest
}

// expandHome expands a leading ~.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
