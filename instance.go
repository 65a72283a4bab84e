// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Handle is an opaque 32-byte ciphertext reference returned by encryption.
// It is passed to contracts as a call argument and later supplied to
// decryption.
type Handle = ids.ID

// Phase is a coarse sub-phase reported by an InstanceFactory while it creates
// an Instance.
type Phase string

const (
	PhaseSDKLoading      Phase = "sdk-loading"
	PhaseSDKInitializing Phase = "sdk-initializing"
	PhaseCreating        Phase = "creating"
)

// ProgressFunc receives sub-phase callbacks during instance creation.
type ProgressFunc func(Phase)

// InstanceParams is the connection material handed to an InstanceFactory,
// derived from ClientConfig by the Client.
type InstanceParams struct {
	// RPCURL is the endpoint of the FHE-capable chain, empty when Provider
	// is used instead.
	RPCURL string
	// Provider is a wallet-style request-capable handle, nil when RPCURL is
	// used instead.
	Provider Provider
	// FallbackRPCURL is tried by factories when the primary reference fails.
	FallbackRPCURL string
	// ChainID is the expected chain, zero when unknown.
	ChainID uint64
	// LocalRPCs maps chain id to a local RPC endpoint for offline or test
	// chains.
	LocalRPCs map[uint64]string
}

// InstanceFactory asynchronously yields a live Instance. Implementations must
// honor ctx cancellation at every I/O boundary and may report sub-phases via
// progress (which may be nil).
type InstanceFactory interface {
	CreateInstance(ctx context.Context, params InstanceParams, progress ProgressFunc) (Instance, error)
}

// InstanceFactoryFunc adapts a func to the InstanceFactory interface.
type InstanceFactoryFunc func(ctx context.Context, params InstanceParams, progress ProgressFunc) (Instance, error)

func (f InstanceFactoryFunc) CreateInstance(ctx context.Context, params InstanceParams, progress ProgressFunc) (Instance, error) {
	return f(ctx, params, progress)
}

// Instance is an opaque handle to the external FHE execution capability. It is
// owned exclusively by the Client; gateways borrow a reference on every ready
// event and must treat it as invalid once the client leaves the ready status.
type Instance interface {
	// ID returns a stable identity for the instance, used to key persisted
	// decryption grants.
	ID() string

	// ChainID returns the chain the instance is bound to.
	ChainID() uint64

	// CreateEncryptedInput returns a builder accumulating typed plaintext
	// values for the given contract and user, finalized by Builder.Encrypt.
	CreateEncryptedInput(contractAddress, userAddress common.Address) (Builder, error)

	// UserDecrypt decrypts a batch of handles using the fields of a
	// decryption grant, returning plaintext values keyed by handle.
	UserDecrypt(ctx context.Context, pairs []HandleContractPair, sig *DecryptionSignature) (map[Handle]*uint256.Int, error)
}

// Builder accumulates typed values for a single encrypted input. Methods may
// be chained; Encrypt finalizes the accumulated values into ciphertext
// handles and a validity proof.
type Builder interface {
	AddBool(v bool) Builder
	Add8(v uint8) Builder
	Add16(v uint16) Builder
	Add32(v uint32) Builder
	Add64(v uint64) Builder
	Add128(v *uint256.Int) Builder
	Add256(v *uint256.Int) Builder
	AddAddress(v common.Address) Builder

	Encrypt(ctx context.Context) (*EncryptionResult, error)
}

// Provider is a wallet-style request-capable network handle, accepted in
// place of an RPC endpoint.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (any, error)
}

// EncryptionResult is the output of finalizing an encrypted input: one handle
// per added value, in addition order, plus a single validity proof covering
// all of them. It is immutable and caller-owned.
type EncryptionResult struct {
	Handles    []Handle
	InputProof []byte
}

// HandleContractPair names one ciphertext and the contract it belongs to.
type HandleContractPair struct {
	Handle          Handle
	ContractAddress common.Address
}
