// Package config loads runtime configuration for VelocityCollector the way
// the original claude-ops tool did: viper merges flag values (bound by the
// cobra command in cmd/velocitycollector) and a VELOCITY_-prefixed
// environment; no config file is read. This package just reads the
// merged values back out into a typed struct.
package config

import "github.com/spf13/viper"

// VaultPasswordEnvVar is the environment variable external collaborators
// are expected to set before calling vault.Unlock. The core itself only
// ever receives the password as an explicit argument (spec §6).
const VaultPasswordEnvVar = "VELOCITY_VAULT_PASSWORD"

// Config holds all runtime configuration for the collector.
type Config struct {
	// Storage
	DatabasePath string
	VaultPath    string
	CaptureBase  string

	// TemplateCachePath is the badger directory backing the read-through
	// template cache in front of the relational template store. Empty
	// disables the cache (template.Candidates reads the backing store
	// directly every call).
	TemplateCachePath       string
	TemplateCacheTTLSeconds int

	// Defaults applied when a JobDefinition's execution block omits them.
	DefaultMaxWorkers            int
	DefaultConnectTimeoutSeconds int
	DefaultShellTimeoutSeconds   int
	DefaultExpectPromptTimeoutMs int
	DefaultInterCommandMs        int
	DefaultRetryCount            int
	DefaultRetryDelaySeconds     int

	// Batch orchestrator
	BatchMaxJobs int

	// Logging
	LogLevel  string
	LogFormat string

	// Control/progress API
	APIAddr string
}

// Load reads configuration from viper.
func Load() Config {
	return Config{
		DatabasePath: viper.GetString("database_path"),
		VaultPath:    viper.GetString("vault_path"),
		CaptureBase:  viper.GetString("capture_base"),

		TemplateCachePath:       viper.GetString("template_cache_path"),
		TemplateCacheTTLSeconds: viper.GetInt("template_cache_ttl_seconds"),

		DefaultMaxWorkers:            viper.GetInt("default_max_workers"),
		DefaultConnectTimeoutSeconds: viper.GetInt("default_connect_timeout_seconds"),
		DefaultShellTimeoutSeconds:   viper.GetInt("default_shell_timeout_seconds"),
		DefaultExpectPromptTimeoutMs: viper.GetInt("default_expect_prompt_timeout_ms"),
		DefaultInterCommandMs:        viper.GetInt("default_inter_command_ms"),
		DefaultRetryCount:            viper.GetInt("default_retry_count"),
		DefaultRetryDelaySeconds:     viper.GetInt("default_retry_delay_seconds"),

		BatchMaxJobs: viper.GetInt("batch_max_jobs"),

		LogLevel:  viper.GetString("log_level"),
		LogFormat: viper.GetString("log_format"),

		APIAddr: viper.GetString("api_addr"),
	}
}
