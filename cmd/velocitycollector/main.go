package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "velocitycollector",
		Short: "SSH-based network device data-collection engine",
	}

	f := rootCmd.PersistentFlags()
	f.String("database-path", "./velocitycollector.db", "path to the SQLite state database")
	f.String("vault-path", "./vault.json", "path to the at-rest credential vault")
	f.String("capture-base", "./captures", "capture base directory (read into config; capture paths come from each job's base_path)")
	f.String("template-cache-path", "", "badger directory for the template read-through cache (empty disables caching)")
	f.Int("template-cache-ttl-seconds", 300, "template cache entry lifetime")
	f.Int("default-max-workers", 10, "default per-job concurrency when a job omits one")
	f.Int("default-connect-timeout-seconds", 10, "default SSH connect timeout")
	f.Int("default-shell-timeout-seconds", 30, "default interactive shell timeout")
	f.Int("default-expect-prompt-timeout-ms", 5000, "default prompt-detection timeout")
	f.Int("default-inter-command-ms", 200, "default delay between paged commands")
	f.Int("default-retry-count", 1, "default per-device retry count")
	f.Int("default-retry-delay-seconds", 5, "default delay between retries")
	f.Int("batch-max-jobs", 4, "default concurrent job limit for the batch orchestrator")
	f.String("log-level", "info", "debug, info, warn, or error")
	f.String("log-format", "text", "text or json")
	f.String("api-addr", ":8080", "listen address for the control/progress API")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("database_path", "database-path")
	bindFlag("vault_path", "vault-path")
	bindFlag("capture_base", "capture-base")
	bindFlag("template_cache_path", "template-cache-path")
	bindFlag("template_cache_ttl_seconds", "template-cache-ttl-seconds")
	bindFlag("default_max_workers", "default-max-workers")
	bindFlag("default_connect_timeout_seconds", "default-connect-timeout-seconds")
	bindFlag("default_shell_timeout_seconds", "default-shell-timeout-seconds")
	bindFlag("default_expect_prompt_timeout_ms", "default-expect-prompt-timeout-ms")
	bindFlag("default_inter_command_ms", "default-inter-command-ms")
	bindFlag("default_retry_count", "default-retry-count")
	bindFlag("default_retry_delay_seconds", "default-retry-delay-seconds")
	bindFlag("batch_max_jobs", "batch-max-jobs")
	bindFlag("log_level", "log-level")
	bindFlag("log_format", "log-format")
	bindFlag("api_addr", "api-addr")

	viper.SetEnvPrefix("VELOCITY")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newVaultCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
