// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the fhecli tool configuration from a JSON config
// file, flags, and environment variables.
package config

import (
	"fmt"
	"net/url"
)

// Config is the fhecli tool configuration.
type Config struct {
	LogLevel          string            `mapstructure:"log-level" json:"log-level"`
	RPCURL            string            `mapstructure:"rpc-url" json:"rpc-url"`
	FallbackRPCURL    string            `mapstructure:"fallback-rpc-url" json:"fallback-rpc-url"`
	ChainID           uint64            `mapstructure:"chain-id" json:"chain-id"`
	LocalRPCs         map[uint64]string `mapstructure:"local-rpcs" json:"local-rpcs"`
	StoragePath       string            `mapstructure:"storage-path" json:"storage-path"`
	PrivateKey        string            `mapstructure:"private-key" json:"private-key"`
	GrantDurationDays uint64            `mapstructure:"grant-duration-days" json:"grant-duration-days"`
	Debug             bool              `mapstructure:"debug" json:"debug"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%s is required", RPCURLKey)
	}
	if _, err := url.Parse(c.RPCURL); err != nil {
		return fmt.Errorf("invalid %s: %w", RPCURLKey, err)
	}
	if c.FallbackRPCURL != "" {
		if _, err := url.Parse(c.FallbackRPCURL); err != nil {
			return fmt.Errorf("invalid %s: %w", FallbackRPCURLKey, err)
		}
	}
	if c.GrantDurationDays == 0 {
		return fmt.Errorf("%s must be positive", GrantDurationKey)
	}
	return nil
}
