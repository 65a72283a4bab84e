// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	LogLevelKey       = "log-level"
	RPCURLKey         = "rpc-url"
	FallbackRPCURLKey = "fallback-rpc-url"
	ChainIDKey        = "chain-id"
	LocalRPCsKey      = "local-rpcs"
	StoragePathKey    = "storage-path"
	PrivateKeyKey     = "private-key"
	GrantDurationKey  = "grant-duration-days"
	DebugKey          = "debug"
)

const (
	defaultLogLevel          = "info"
	defaultGrantDurationDays = 10
)
