package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/mimic/internal/util"
)

// Config contains runtime configuration values for the mimic host.
type Config struct {
	MountOptions

	LogLvl util.LogLevel // Internal log level (Default Info)

	Namespace   string // Namespace for mimic's own data (Default "_mimic")
	ListenAddr  string // HTTP listen address (Default 127.0.0.1:8080)
	MetricsPath string // Path serving Prometheus metrics, empty disables (Default /metrics)

	TreeType    string            // Registered tree type backing projects (Default memory)
	TreeRoot    string            // Base directory for dir trees (Default ./data)
	TreeURL     string            // Origin base URL for http trees
	TreeHeaders map[string]string // Extra request headers for http trees
	TreeBucket  string            // Bucket for s3 trees
	TreeRegion  string            // Region for s3 trees; empty uses the AWS default chain

	ProjectIDQueryParam string // Query parameter naming the project (Default _mimic_project)
	ProjectIDPathPrefix string // PATH_INFO prefix followed by the project id (Default /_mimic/p/)

	AllowedUserContentHosts []string // Hosts allowed to serve user content; nil allows any
	CORSAllowedOrigins      []string // Origins allowed for CORS requests
	CORSAllowedHeaders      string   // Value of Access-Control-Allow-Headers (Default "Origin, Accept")

	PrettyJSON  bool // Indent JSON responses (Default false)
	CacheFiles  bool // Cache file contents in the shared keyspace (Default true)
	StackTraces bool // Render stack traces in fault pages (Default false, dev mode enables)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
//
// LogLvl is a CLI verbosity between 1 (error) and 5 (trace).
type ConfigOverride struct {
	LogLvl                  *int              `yaml:"verbose,omitempty" json:"verbose,omitempty" toml:"verbose,omitempty"`
	Namespace               *string           `yaml:"namespace,omitempty" json:"namespace,omitempty" toml:"namespace,omitempty"`
	ListenAddr              *string           `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty" toml:"listen_addr,omitempty"`
	MetricsPath             *string           `yaml:"metrics_path,omitempty" json:"metrics_path,omitempty" toml:"metrics_path,omitempty"`
	TreeType                *string           `yaml:"tree_type,omitempty" json:"tree_type,omitempty" toml:"tree_type,omitempty"`
	TreeRoot                *string           `yaml:"tree_root,omitempty" json:"tree_root,omitempty" toml:"tree_root,omitempty"`
	TreeURL                 *string           `yaml:"tree_url,omitempty" json:"tree_url,omitempty" toml:"tree_url,omitempty"`
	TreeHeaders             map[string]string `yaml:"tree_headers,omitempty" json:"tree_headers,omitempty" toml:"tree_headers,omitempty"`
	TreeBucket              *string           `yaml:"tree_bucket,omitempty" json:"tree_bucket,omitempty" toml:"tree_bucket,omitempty"`
	TreeRegion              *string           `yaml:"tree_region,omitempty" json:"tree_region,omitempty" toml:"tree_region,omitempty"`
	ProjectIDQueryParam     *string           `yaml:"project_id_query_param,omitempty" json:"project_id_query_param,omitempty" toml:"project_id_query_param,omitempty"`
	ProjectIDPathPrefix     *string           `yaml:"project_id_path_prefix,omitempty" json:"project_id_path_prefix,omitempty" toml:"project_id_path_prefix,omitempty"`
	AllowedUserContentHosts *[]string         `yaml:"allowed_user_content_hosts,omitempty" json:"allowed_user_content_hosts,omitempty" toml:"allowed_user_content_hosts,omitempty"`
	CORSAllowedOrigins      *[]string         `yaml:"cors_allowed_origins,omitempty" json:"cors_allowed_origins,omitempty" toml:"cors_allowed_origins,omitempty"`
	CORSAllowedHeaders      *string           `yaml:"cors_allowed_headers,omitempty" json:"cors_allowed_headers,omitempty" toml:"cors_allowed_headers,omitempty"`
	PrettyJSON              *bool             `yaml:"pretty_json,omitempty" json:"pretty_json,omitempty" toml:"pretty_json,omitempty"`
	CacheFiles              *bool             `yaml:"cache_files,omitempty" json:"cache_files,omitempty" toml:"cache_files,omitempty"`
	StackTraces             *bool             `yaml:"stack_traces,omitempty" json:"stack_traces,omitempty" toml:"stack_traces,omitempty"`
	Debug                   *bool             `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty" toml:"fuse_debug,omitempty"`
	FsName                  *string           `yaml:"fs_name,omitempty" json:"fs_name,omitempty" toml:"fs_name,omitempty"`
	Name                    *string           `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
	AttrTimeout             *float64          `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty" toml:"attr_timeout,omitempty"`
	EntryTimeout            *float64          `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty" toml:"entry_timeout,omitempty"`
	DirectIO                *bool             `yaml:"direct_io,omitempty" json:"direct_io,omitempty" toml:"direct_io,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName:       DefaultFsName,
			Name:         DefaultName,
			AttrTimeout:  DefaultAttrTimeout,
			EntryTimeout: DefaultEntryTimeout,
			DirectIO:     DefaultDirectIO,
		},
		LogLvl:              DefaultLogLvl,
		Namespace:           DefaultNamespace,
		ListenAddr:          DefaultListenAddr,
		MetricsPath:         DefaultMetricsPath,
		TreeType:            DefaultTreeType,
		TreeRoot:            DefaultTreeRoot,
		ProjectIDQueryParam: DefaultProjectIDQueryParam,
		ProjectIDPathPrefix: DefaultProjectIDPathPrefix,
		CORSAllowedHeaders:  DefaultCORSAllowedHeaders,
		PrettyJSON:          DefaultPrettyJSON,
		CacheFiles:          DefaultCacheFiles,
		StackTraces:         DefaultStackTraces,
	}
}

// NewConfig creates a Config from defaults with override applied.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = util.VerbosityLevel(*override.LogLvl)
	}
	c.Namespace = util.ValueOr(override.Namespace, c.Namespace)
	c.ListenAddr = util.ValueOr(override.ListenAddr, c.ListenAddr)
	c.MetricsPath = util.ValueOr(override.MetricsPath, c.MetricsPath)
	c.TreeType = util.ValueOr(override.TreeType, c.TreeType)
	c.TreeRoot = util.ValueOr(override.TreeRoot, c.TreeRoot)
	c.TreeURL = util.ValueOr(override.TreeURL, c.TreeURL)
	c.TreeBucket = util.ValueOr(override.TreeBucket, c.TreeBucket)
	c.TreeRegion = util.ValueOr(override.TreeRegion, c.TreeRegion)
	if override.TreeHeaders != nil {
		c.TreeHeaders = override.TreeHeaders
	}
	c.ProjectIDQueryParam = util.ValueOr(override.ProjectIDQueryParam, c.ProjectIDQueryParam)
	c.ProjectIDPathPrefix = util.ValueOr(override.ProjectIDPathPrefix, c.ProjectIDPathPrefix)
	c.AllowedUserContentHosts = util.ValueOr(override.AllowedUserContentHosts, c.AllowedUserContentHosts)
	c.CORSAllowedOrigins = util.ValueOr(override.CORSAllowedOrigins, c.CORSAllowedOrigins)
	c.CORSAllowedHeaders = util.ValueOr(override.CORSAllowedHeaders, c.CORSAllowedHeaders)
	c.PrettyJSON = util.ValueOr(override.PrettyJSON, c.PrettyJSON)
	c.CacheFiles = util.ValueOr(override.CacheFiles, c.CacheFiles)
	c.StackTraces = util.ValueOr(override.StackTraces, c.StackTraces)
	c.Debug = util.ValueOr(override.Debug, c.Debug)
	c.FsName = util.ValueOr(override.FsName, c.FsName)
	c.Name = util.ValueOr(override.Name, c.Name)
	c.AttrTimeout = util.ValueOr(override.AttrTimeout, c.AttrTimeout)
	c.EntryTimeout = util.ValueOr(override.EntryTimeout, c.EntryTimeout)
	c.DirectIO = util.ValueOr(override.DirectIO, c.DirectIO)
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports YAML (.yaml, .yml), JSON (.json) and TOML (.toml) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}

// IsDevMode reports whether the process runs in a local development context.
// An unset SERVER_SOFTWARE is treated as development (tests, local runs);
// otherwise only values starting with "Development/" count. lookup is
// typically [os.LookupEnv].
func IsDevMode(lookup func(key string) (string, bool)) bool {
	sw, ok := lookup("SERVER_SOFTWARE")
	if !ok {
		return true
	}
	return strings.HasPrefix(sw, "Development/")
}
