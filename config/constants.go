package config

import "github.com/brettbedarf/mimic/internal/util"

// CLI verbosity values, see [util.VerbosityLevel]
const (
	ErrorVerbose = 1
	WarnVerbose  = 2
	InfoVerbose  = 3
	DebugVerbose = 4
	TraceVerbose = 5
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	DefaultNamespace           = "_mimic"
	DefaultListenAddr          = "127.0.0.1:8080"
	DefaultMetricsPath         = "/metrics"
	DefaultTreeType            = "memory"
	DefaultTreeRoot            = "./data"
	DefaultProjectIDQueryParam = "_mimic_project"
	DefaultProjectIDPathPrefix = "/_mimic/p/"
	DefaultCORSAllowedHeaders  = "Origin, Accept"
	DefaultPrettyJSON          = false
	DefaultCacheFiles          = true
	DefaultStackTraces         = false

	// DefaultFsName is the FUSE fs name shown in mount listings
	DefaultFsName = "mimic"
	// DefaultName is the FUSE subtype name
	DefaultName = "mimic"

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO determines whether to bypass the page cache, which keeps
	// reads fresh for trees that change underneath the mount
	DefaultDirectIO = true
)
