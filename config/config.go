package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes the environment variables overriding the configuration,
// e.g. SIGBRIDGE_FREEZE_RESULTS or SIGBRIDGE_LOG_LEVEL.
const EnvPrefix = "SIGBRIDGE"

// Config represents the complete sigbridge configuration
type Config struct {
	// FreezeResults makes scopes store immutable copies of data results
	FreezeResults bool `mapstructure:"freeze_results"`
	// Server marks scopes as server-rendered
	Server bool `mapstructure:"server"`
	// SSR lets server-rendered scopes run their declarations
	SSR bool      `mapstructure:"ssr"`
	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls the logger built by NewLogger
type LogConfig struct {
	// Level is the minimum level logged
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Format is the encoding of log lines
	// Options: "json", "console"
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		FreezeResults: false,
		Server:        false,
		SSR:           true,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("freeze_results", defaults.FreezeResults)
	v.SetDefault("server", defaults.Server)
	v.SetDefault("ssr", defaults.SSR)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
}

// Load reads the configuration file at path, if any, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// NewLogger builds the zap logger described by the configuration
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
