package cmd

import (
	"fmt"
	"strings"

	cfgpkg "github.com/KaramelBytes/veiltext-cli/internal/config"
	"github.com/KaramelBytes/veiltext-cli/internal/persist"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set veiltext configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "detector_url: %s\n", c.DetectorURL)
		fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
		fmt.Fprintf(w, "high_score: %d\n", c.HighScore)
		fmt.Fprintf(w, "score_cache_sec: %d\n", c.ScoreCacheSecs)
		fmt.Fprintf(w, "probability: %.3f\n", c.Probability)
		fmt.Fprintf(w, "legacy_word_count: %t\n", c.LegacyWordCount)
		fmt.Fprintf(w, "storage: %s (available: %s)\n", c.Storage, strings.Join(persist.Backends(), ", "))
		fmt.Fprintf(w, "data_dir: %s\n", c.DataDir)
		if c.Storage == persist.BackendRedis {
			fmt.Fprintf(w, "redis_url: %s\n", c.RedisURL)
			fmt.Fprintf(w, "redis_prefix: %s\n", c.RedisPrefix)
		}
		if c.SQLitePath != "" {
			fmt.Fprintf(w, "sqlite_path: %s\n", c.SQLitePath)
		}
		fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
		fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
		fmt.Fprintf(w, "log_level: %s\n", c.LogLevel)
		if c.LogFile != "" {
			fmt.Fprintf(w, "log_file: %s\n", c.LogFile)
		}
		fmt.Fprintf(w, "server_addr: %s\n", c.ServerAddr)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return cfgpkg.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// start from the file, not from flag overrides
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := c.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg = c
		okColor.Fprintln(cmd.OutOrStdout(), "✓ Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
