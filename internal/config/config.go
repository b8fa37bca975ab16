package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/veiltext-cli/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Detection endpoint
	DetectorURL    string `mapstructure:"detector_url" yaml:"detector_url"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	HighScore      int    `mapstructure:"high_score" yaml:"high_score"`
	ScoreCacheSecs int    `mapstructure:"score_cache_sec" yaml:"score_cache_sec"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Obfuscation and word counting
	Probability     float64 `mapstructure:"probability" yaml:"probability"`
	LegacyWordCount bool    `mapstructure:"legacy_word_count" yaml:"legacy_word_count"`

	// Storage
	Storage     string `mapstructure:"storage" yaml:"storage"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	RedisURL    string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`

	// HTTP API
	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`
}

// HomeDir is ~/.veiltext, or $VEILTEXT_HOME when set.
func HomeDir() (string, error) {
	if h := os.Getenv("VEILTEXT_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".veiltext"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.veiltext/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := HomeDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("detector_url", "https://85gdtn-3000.csb.app")
	v.SetDefault("high_score", 80)
	v.SetDefault("score_cache_sec", 3600)
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("probability", 0.10)
	v.SetDefault("legacy_word_count", false)
	v.SetDefault("storage", "file")
	v.SetDefault("redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("redis_prefix", "veiltext:")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
	v.SetDefault("server_addr", "127.0.0.1:8787")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. CLI flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("VEILTEXT")
	v.AutomaticEnv()
	setDefaults(v)
	// AutomaticEnv only covers keys viper already knows about
	for _, k := range []string{"api_key", "data_dir", "log_file", "sqlite_path"} {
		_ = v.BindEnv(k)
	}

	home, err := HomeDir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(home)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(home, "data")
	}
	for _, p := range []*string{&c.DataDir, &c.SQLitePath, &c.LogFile} {
		if *p == "" {
			continue
		}
		if *p, err = utils.ExpandHome(*p); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Keys lists the settable keys.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Global, val string) error{
	"detector_url": func(c *Global, v string) error { c.DetectorURL = v; return nil },
	"api_key":      func(c *Global, v string) error { c.APIKey = v; return nil },
	"high_score": func(c *Global, v string) error {
		return setInt(&c.HighScore, "high_score", v, 0, 100)
	},
	"score_cache_sec": func(c *Global, v string) error {
		return setInt(&c.ScoreCacheSecs, "score_cache_sec", v, 0, 1<<30)
	},
	"http_timeout_sec": func(c *Global, v string) error {
		return setInt(&c.HTTPTimeoutSec, "http_timeout_sec", v, 1, 600)
	},
	"retry_max_attempts": func(c *Global, v string) error {
		return setInt(&c.RetryMaxAttempts, "retry_max_attempts", v, 1, 20)
	},
	"retry_base_delay_ms": func(c *Global, v string) error {
		return setInt(&c.RetryBaseDelayMs, "retry_base_delay_ms", v, 1, 60000)
	},
	"retry_max_delay_ms": func(c *Global, v string) error {
		return setInt(&c.RetryMaxDelayMs, "retry_max_delay_ms", v, 1, 600000)
	},
	"probability": func(c *Global, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid float for probability: %v (want 0..1)", v)
		}
		c.Probability = f
		return nil
	},
	"legacy_word_count": func(c *Global, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid bool for legacy_word_count: %v", v)
		}
		c.LegacyWordCount = b
		return nil
	},
	"storage": func(c *Global, v string) error {
		switch strings.ToLower(v) {
		case "file", "redis", "sqlite":
			c.Storage = strings.ToLower(v)
			return nil
		}
		return fmt.Errorf("invalid storage: %s (use file, redis or sqlite)", v)
	},
	"data_dir":     func(c *Global, v string) error { c.DataDir = v; return nil },
	"redis_url":    func(c *Global, v string) error { c.RedisURL = v; return nil },
	"redis_prefix": func(c *Global, v string) error { c.RedisPrefix = v; return nil },
	"sqlite_path":  func(c *Global, v string) error { c.SQLitePath = v; return nil },
	"log_level": func(c *Global, v string) error {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(v)
			return nil
		}
		return fmt.Errorf("invalid log_level: %s", v)
	},
	"log_format": func(c *Global, v string) error {
		if v != "console" && v != "json" {
			return fmt.Errorf("invalid log_format: %s (use console or json)", v)
		}
		c.LogFormat = v
		return nil
	},
	"log_file":    func(c *Global, v string) error { c.LogFile = v; return nil },
	"server_addr": func(c *Global, v string) error { c.ServerAddr = v; return nil },
}

// Set assigns one key from its string form.
func (c *Global) Set(key, val string) error {
	fn, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	return fn(c, val)
}

func setInt(dst *int, name, val string, lo, hi int) error {
	i, err := strconv.Atoi(val)
	if err != nil || i < lo || i > hi {
		return fmt.Errorf("invalid int for %s: %v", name, val)
	}
	*dst = i
	return nil
}
