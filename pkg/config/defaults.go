package config

// Workload defaults.
const (
	DefaultTrees                = 4
	DefaultOperations           = 100_000
	DefaultKeySpace             = 10_000
	DefaultSeed                 = 1
	DefaultInsertRatio          = 0.5
	DefaultDeleteRatio          = 0.35
	DefaultValidateEvery        = 1_000
	DefaultReserve              = 0
	DefaultOpsPerSecond         = 0
	DefaultHibernateEvery       = 0
	DefaultHibernationThreshold = 0
	DefaultCompression          = "lz4"
	DefaultMemoryBudget         = ""
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultOTLPEndpoint = ""
	DefaultOTLPInsecure = false
	DefaultMetricsAddr  = ""
)

// Report defaults.
const (
	DefaultReportFormat = FormatTable
)

// Report formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
