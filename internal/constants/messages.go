package constants

// CLI messages

// Config messages
const (
	// MsgConfigLoadError is the error message when configuration loading fails.
	MsgConfigLoadError = "❌ Failed to load configuration: %v\n"

	// MsgConfigValidationError is the message when configuration validation fails.
	MsgConfigValidationError = "❌ Configuration validation failed:\n"

	// MsgConfigValid is the message when configuration is successfully loaded and validated.
	MsgConfigValid = "✅ Configuration loaded"

	// MsgConfigValidatePrefix is the prefix for configuration validation errors.
	MsgConfigValidatePrefix = "  - %v\n"
)

// Daemon messages
const (
	MsgDaemonNotRunning  = "⚠️  nexarchive is not running (no socket at %s)\n"
	MsgDaemonOffline     = "ℹ️  Daemon is not running, showing the saved state\n"
	MsgDaemonNoState     = "ℹ️  No archive job has been run yet"
	MsgDaemonStarted     = "🚀 nexarchive started (pid %d)\n"
	MsgDaemonStopping    = "🛑 Shutting down..."
	MsgDaemonAlreadyUp   = "❌ nexarchive is already running (pid %d)\n"
	MsgRequestFailed     = "❌ %s failed: %v\n"
	MsgRequestSucceeded  = "✅ %s\n"
	MsgInvalidChatID     = "invalid chat id %q"
	MsgUnknownConfigKey  = "unknown config key %q"
	MsgConfigKeyExpected = "expected key=value, got %q"
)
