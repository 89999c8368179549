// Package config loads runtime tunables for an unpack run: how large a file
// can grow before its staging buffer spills to disk, whether one file's
// failure aborts the whole run, and logging verbosity. Values come from an
// optional config file, VDFS4_-prefixed environment variables, and finally
// command-line flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved set of tunables for a single unpack invocation.
type Config struct {
	ScratchThresholdBytes int64
	ContinueOnError       bool
	LogLevel              string
	LogFormat             string
}

const (
	keyScratchThresholdBytes = "scratch-threshold-bytes"
	keyContinueOnError       = "continue-on-error"
	keyLogLevel              = "log-level"
	keyLogFormat             = "log-format"
)

// defaults mirrors the values a bare invocation with no file, env, or flag
// overrides should produce.
func defaults() map[string]any {
	return map[string]any{
		keyScratchThresholdBytes: int64(64 << 20), // 64 MiB
		keyContinueOnError:       false,
		keyLogLevel:              "info",
		keyLogFormat:             "text",
	}
}

// BindFlags registers the persistent flags Load reads back, on top of
// whatever a config file or environment already set.
func BindFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Int64("scratch-threshold-bytes", 0, "bytes a compressed file's staging buffer may use in memory before spilling to disk")
	flags.Bool("continue-on-error", false, "keep unpacking remaining files after one fails instead of aborting")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log output format (text, json)")

	_ = v.BindPFlag(keyScratchThresholdBytes, flags.Lookup("scratch-threshold-bytes"))
	_ = v.BindPFlag(keyContinueOnError, flags.Lookup("continue-on-error"))
	_ = v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyLogFormat, flags.Lookup("log-format"))
}

// Load resolves a Config from an optional file at configPath (skipped if
// empty), VDFS4_-prefixed environment variables, and flags already bound via
// BindFlags, with flags taking precedence.
func Load(v *viper.Viper, configPath string) (Config, error) {
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("vdfs4")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	cfg := Config{
		ScratchThresholdBytes: v.GetInt64(keyScratchThresholdBytes),
		ContinueOnError:       v.GetBool(keyContinueOnError),
		LogLevel:              v.GetString(keyLogLevel),
		LogFormat:             v.GetString(keyLogFormat),
	}
	if cfg.ScratchThresholdBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", keyScratchThresholdBytes, cfg.ScratchThresholdBytes)
	}
	return cfg, nil
}
