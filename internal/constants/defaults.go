package constants

// Build information used when the linker does not set it
const (
	DefaultVersion   = "0.1.0-dev"
	DefaultBuildTime = "unknown"
	DefaultGitCommit = "unknown"
	DefaultGoVersion = "unknown"
)

// MetricsNamespace prefixes every exported Prometheus metric.
const MetricsNamespace = "nexarchive"

// DefaultMetricsAddr is where /metrics listens when enabled without an address.
const DefaultMetricsAddr = "127.0.0.1:9464"
