// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer abstracts the wallet-side signing capability consumed by the
// FHE client: an address plus the ability to sign a structured, time-windowed
// decryption grant.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/crypto"
)

// Signer produces authenticated signatures over structured digests.
type Signer interface {
	// Address returns the account the signer controls.
	Address() common.Address

	// SignDigest signs a 32-byte structured-message digest, returning the
	// 65-byte [R || S || V] signature.
	SignDigest(ctx context.Context, digest common.Hash) ([]byte, error)
}

// LocalSigner signs with an in-process secp256k1 key. Intended for tests and
// tooling; production integrations wrap a wallet.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Generate returns a LocalSigner with a fresh random key.
func Generate() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// NewLocalSigner wraps an existing secp256k1 key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: common.PubkeyToAddress(key.PublicKey),
	}
}

// FromHex parses a hex-encoded secp256k1 private key.
func FromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignDigest(_ context.Context, digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}
