package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// DefaultWorkspace is the default data directory
const DefaultWorkspace = "~/.nexarchive"

// Workspace layout
const (
	ArchiveDBFile  = "archive.db"
	StateDir       = "state"
	StateFile      = "gradual_archive_state.json"
	ExportsDir     = "exports"
	LogsDir        = "logs"
	SocketFile     = ".nexarchive.sock"
	PIDFile        = "nexarchive.pid"
	ExportBaseName = "chat_%d"
)
