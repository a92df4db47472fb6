package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Default quotas and timeouts. All of these are overridable via the config
// file, LINT_API_* environment variables, or flags bound by the CLI.
const (
	DefaultPort                = 3000
	DefaultMaxFileSizeBytes    = 10 * 1024 * 1024  // single submitted file
	DefaultMaxArchiveSizeBytes = 500 * 1024 * 1024 // decompressed archive total
	DefaultMaxFileCount        = 1000
	DefaultWorkspaceTTLMinutes = 60
	DefaultCacheTTLHours       = 24
	DefaultMaxConcurrentJobs   = 4
	DefaultJobTimeoutSeconds   = 300
	DefaultOutputCapBytes      = 10 * 1024 * 1024
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Jobs      JobsConfig      `mapstructure:"jobs" yaml:"jobs"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host                   string  `mapstructure:"host" yaml:"host"`
	Port                   int     `mapstructure:"port" yaml:"port"`
	RateLimitRPS           float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst         int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	ShutdownTimeoutSeconds int     `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig locates the sqlite files backing cache, jobs and metrics
type DatabaseConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	StatsPath string `mapstructure:"stats_path" yaml:"stats_path"`
}

// WorkspaceConfig bounds what untrusted submissions may materialize on disk
type WorkspaceConfig struct {
	BaseDir             string `mapstructure:"base_dir" yaml:"base_dir"`
	MaxFileSizeBytes    int64  `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	MaxArchiveSizeBytes int64  `mapstructure:"max_archive_size_bytes" yaml:"max_archive_size_bytes"`
	MaxFileCount        int    `mapstructure:"max_file_count" yaml:"max_file_count"`
	TTLMinutes          int    `mapstructure:"ttl_minutes" yaml:"ttl_minutes"`
}

// TTL returns the workspace retention window
func (w WorkspaceConfig) TTL() time.Duration {
	return time.Duration(w.TTLMinutes) * time.Minute
}

// CacheConfig controls result caching
type CacheConfig struct {
	TTLHours               int  `mapstructure:"ttl_hours" yaml:"ttl_hours"`
	CleanupIntervalMinutes int  `mapstructure:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
	MemoryEnabled          bool `mapstructure:"memory_enabled" yaml:"memory_enabled"`
}

// CleanupInterval returns the background cleanup period, zero when disabled
func (c CacheConfig) CleanupInterval() time.Duration {
	if c.CleanupIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// JobsConfig bounds the async scheduler
type JobsConfig struct {
	MaxConcurrent  int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-job deadline
func (j JobsConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// RunnerConfig bounds subprocess supervision
type RunnerConfig struct {
	OutputCapBytes    int64 `mapstructure:"output_cap_bytes" yaml:"output_cap_bytes"`
	KillGraceSeconds  int   `mapstructure:"kill_grace_seconds" yaml:"kill_grace_seconds"`
	ProbeTimeoutSecs  int   `mapstructure:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
}

// KillGrace returns the SIGTERM-to-SIGKILL grace period
func (r RunnerConfig) KillGrace() time.Duration {
	if r.KillGraceSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.KillGraceSeconds) * time.Second
}

// ProbeTimeout bounds the version probe of a single linter binary
func (r RunnerConfig) ProbeTimeout() time.Duration {
	if r.ProbeTimeoutSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.ProbeTimeoutSecs) * time.Second
}

// SetDefaults registers every default with viper so partial config files
// and env overrides see a complete tree
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.rate_limit_rps", 10.0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.shutdown_timeout_seconds", 30)

	v.SetDefault("database.path", filepath.Join(os.TempDir(), "lint-api", "lint-api.db"))
	v.SetDefault("database.stats_path", filepath.Join(os.TempDir(), "lint-api", "lint-stats.db"))

	v.SetDefault("workspace.base_dir", filepath.Join(os.TempDir(), "lint-api", "workspaces"))
	v.SetDefault("workspace.max_file_size_bytes", DefaultMaxFileSizeBytes)
	v.SetDefault("workspace.max_archive_size_bytes", DefaultMaxArchiveSizeBytes)
	v.SetDefault("workspace.max_file_count", DefaultMaxFileCount)
	v.SetDefault("workspace.ttl_minutes", DefaultWorkspaceTTLMinutes)

	v.SetDefault("cache.ttl_hours", DefaultCacheTTLHours)
	v.SetDefault("cache.cleanup_interval_minutes", 60)
	v.SetDefault("cache.memory_enabled", true)

	v.SetDefault("jobs.max_concurrent", DefaultMaxConcurrentJobs)
	v.SetDefault("jobs.timeout_seconds", DefaultJobTimeoutSeconds)

	v.SetDefault("runner.output_cap_bytes", DefaultOutputCapBytes)
	v.SetDefault("runner.kill_grace_seconds", 2)
	v.SetDefault("runner.probe_timeout_seconds", 5)
}

// Load unmarshals the viper tree into a validated Config
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Workspace.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("workspace.max_file_size_bytes must be positive")
	}
	if c.Workspace.MaxArchiveSizeBytes <= 0 {
		return fmt.Errorf("workspace.max_archive_size_bytes must be positive")
	}
	if c.Workspace.MaxFileCount <= 0 {
		return fmt.Errorf("workspace.max_file_count must be positive")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs.max_concurrent must be positive")
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		return fmt.Errorf("jobs.timeout_seconds must be positive")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be positive")
	}
	return nil
}

// Default returns a Config with every default applied, for tests and for
// callers that run without a config file
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := Load(v)
	return cfg
}
