// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"github.com/luxfi/fhe-client/storage"
)

// ClientConfig is the connection material for one Client. It is captured once
// at construction and treated as read-only for the lifetime of that Client; a
// config change requires a new Client or a disconnect followed by a connect
// with new config.
type ClientConfig struct {
	// RPCURL identifies the FHE-capable chain endpoint. Mutually exclusive
	// with Provider; when both are set, Provider wins.
	RPCURL string
	// Provider is a wallet-style request-capable handle.
	Provider Provider
	// FallbackRPCURL is tried when the primary network reference fails.
	FallbackRPCURL string
	// ChainID pins the expected chain, zero when unknown.
	ChainID uint64
	// LocalRPCs maps chain id to local RPC endpoints for offline and test
	// chains.
	LocalRPCs map[uint64]string
	// Storage persists decryption grants. When nil, an in-memory store is
	// instantiated at construction.
	Storage storage.Storage
	// Debug enables verbose client logging.
	Debug bool

	// Deprecated: use RPCURL. Kept for older integrations; RPCURL wins when
	// both are set.
	NetworkURL string
	// Deprecated: use FallbackRPCURL. FallbackRPCURL wins when both are set.
	PublicRPCURL string
}

// normalize maps deprecated aliases onto their current fields and fills
// required defaults. Runs exactly once, at Client construction.
func (c ClientConfig) normalize() ClientConfig {
	if c.RPCURL == "" {
		c.RPCURL = c.NetworkURL
	}
	if c.FallbackRPCURL == "" {
		c.FallbackRPCURL = c.PublicRPCURL
	}
	c.NetworkURL = ""
	c.PublicRPCURL = ""
	if c.Storage == nil {
		c.Storage = storage.NewMemory()
	}
	return c
}

// instanceParams derives the factory inputs from the config.
func (c ClientConfig) instanceParams() InstanceParams {
	return InstanceParams{
		RPCURL:         c.RPCURL,
		Provider:       c.Provider,
		FallbackRPCURL: c.FallbackRPCURL,
		ChainID:        c.ChainID,
		LocalRPCs:      c.LocalRPCs,
	}
}
