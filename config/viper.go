// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper builds the viper instance. The config file may be provided via
// the command line flag or environment variable; all other keys may come from
// the config file, flags, or environment variables.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) {
		// Everything can come from flags and env vars.
		return v, nil
	}

	filename := v.GetString(ConfigFileKey)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(GrantDurationKey, defaultGrantDurationDays)
}

// BuildConfig constructs the fhecli config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//
// Returns the Config
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

// BuildFlagSet returns the pflag set accepted by the fhecli tool.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fhecli", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Path to the JSON config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level")
	fs.String(RPCURLKey, "", "RPC endpoint of the FHE-capable chain")
	fs.String(FallbackRPCURLKey, "", "Fallback RPC endpoint")
	fs.Uint64(ChainIDKey, 0, "Expected chain id")
	fs.String(StoragePathKey, "", "Path of the sqlite grant store; in-memory when empty")
	fs.String(PrivateKeyKey, "", "Hex-encoded signing key")
	fs.Uint64(GrantDurationKey, defaultGrantDurationDays, "Validity window of new decryption grants")
	fs.Bool(DebugKey, false, "Verbose client logging")
	return fs
}
