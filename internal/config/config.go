// Package config loads and hot-reloads the analysis core's runtime
// configuration using viper, following the viper+fsnotify combination used
// elsewhere in this corpus for service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LockTTLs holds the default and per-type lock expiry windows (spec §4.1).
// locks.Service applies only Default to every lock; the per-type values are
// resolved by TTLFor, which the lock service does not call.
type LockTTLs struct {
	Default       time.Duration `mapstructure:"default"`
	PrAnalysis    time.Duration `mapstructure:"pr_analysis"`
	BranchAnalysis time.Duration `mapstructure:"branch_analysis"`
	RagIndexing   time.Duration `mapstructure:"rag_indexing"`
}

// LockWait holds the acquireWithWait polling parameters (spec §4.1).
type LockWait struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

// VcsBackoff holds the rate-limit retry/backoff parameters (spec §4.3).
type VcsBackoff struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Config is the full runtime configuration for the analysis core.
type Config struct {
	DatabaseDSN    string `mapstructure:"database_dsn"`
	RedisAddr      string `mapstructure:"redis_addr"` // optional; empty disables the pub/sub accelerator
	AiBaseURL      string `mapstructure:"ai_base_url"`
	AiServiceSecret string `mapstructure:"ai_service_secret"`
	RagBaseURL     string `mapstructure:"rag_base_url"`
	RagServiceSecret string `mapstructure:"rag_service_secret"`
	HTTPAddr       string `mapstructure:"http_addr"`

	LockTTLs   LockTTLs   `mapstructure:"lock_ttls"`
	LockWait   LockWait   `mapstructure:"lock_wait"`
	VcsBackoff VcsBackoff `mapstructure:"vcs_backoff"`

	WorkerPoolSize int  `mapstructure:"worker_pool_size"`
	Development    bool `mapstructure:"development"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("worker_pool_size", 20)
	v.SetDefault("development", false)

	v.SetDefault("lock_ttls.default", 10*time.Minute)
	v.SetDefault("lock_ttls.pr_analysis", 10*time.Minute)
	v.SetDefault("lock_ttls.branch_analysis", 10*time.Minute)
	v.SetDefault("lock_ttls.rag_indexing", 10*time.Minute)

	v.SetDefault("lock_wait.poll_interval", 5*time.Second)
	v.SetDefault("lock_wait.max_wait", 2*time.Minute)

	v.SetDefault("vcs_backoff.initial_delay", 2*time.Second)
	v.SetDefault("vcs_backoff.max_attempts", 3)

	// Keys without a built-in value are registered empty so that Unmarshal
	// sees them and picks up their CODECROW_* environment variables.
	for _, key := range []string{"database_dsn", "redis_addr", "ai_base_url", "ai_service_secret", "rag_base_url", "rag_service_secret"} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from environment variables (CODECROW_ prefix),
// the file at the given path (if non-empty), and defaults, in that order of
// precedence (env wins). The returned viper instance can be passed to Watch
// for hot-reload.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("CODECROW")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, v, nil
}

// Watch installs a filesystem watch on the config file backing v, invoking
// onChange with the freshly reloaded Config whenever it changes on disk.
// Reload errors are passed to onChange as a nil Config with the error set
// so the caller can decide whether to keep running on the old config.
func Watch(v *viper.Viper, onChange func(*Config, error)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onChange(nil, fmt.Errorf("reload config: %w", err))
			return
		}
		onChange(&cfg, nil)
	})
	v.WatchConfig()
}

// TTLFor returns the configured lock TTL for an analysis type, falling back
// to Default when the type is unrecognized.
func (t LockTTLs) TTLFor(analysisType string) time.Duration {
	switch analysisType {
	case "PR_ANALYSIS":
		return orDefault(t.PrAnalysis, t.Default)
	case "BRANCH_ANALYSIS":
		return orDefault(t.BranchAnalysis, t.Default)
	case "RAG_INDEXING":
		return orDefault(t.RagIndexing, t.Default)
	default:
		return t.Default
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
