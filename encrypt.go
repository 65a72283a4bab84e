// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/fhe-client/signer"
)

// Builder method names, as returned by EncryptionMethod.
const (
	MethodAddBool    = "AddBool"
	MethodAdd8       = "Add8"
	MethodAdd16      = "Add16"
	MethodAdd32      = "Add32"
	MethodAdd64      = "Add64"
	MethodAdd128     = "Add128"
	MethodAdd256     = "Add256"
	MethodAddAddress = "AddAddress"
)

// abiTypeMethods maps a contract ABI's declared external ciphertext type to
// the builder method that encrypts a plaintext for it.
var abiTypeMethods = map[string]string{
	"externalEbool":    MethodAddBool,
	"externalEuint8":   MethodAdd8,
	"externalEuint16":  MethodAdd16,
	"externalEuint32":  MethodAdd32,
	"externalEuint64":  MethodAdd64,
	"externalEuint128": MethodAdd128,
	"externalEuint256": MethodAdd256,
	"externalEaddress": MethodAddAddress,
}

// EncryptionGateway turns plaintext values into ciphertext handles for one
// target contract. It borrows the client's instance reactively: the
// reference is refreshed on every ready event and dropped on error or
// disconnect, so encryption is only available while the client is ready.
type EncryptionGateway struct {
	log    log.Logger
	signer signer.Signer

	mu       sync.Mutex
	instance Instance
	contract common.Address
}

// NewEncryptionGateway builds a gateway bound to client's lifecycle events.
// signer and contract may be supplied later via SetSigner and SetContract.
func NewEncryptionGateway(client *Client, s signer.Signer, contract common.Address, logger log.Logger) *EncryptionGateway {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	g := &EncryptionGateway{
		log:      logger,
		signer:   s,
		contract: contract,
	}
	g.bind(client)
	return g
}

func (g *EncryptionGateway) bind(client *Client) {
	events := client.Events()
	events.On(EventReady, func(args ...any) {
		if len(args) == 1 {
			if inst, ok := args[0].(Instance); ok {
				g.setInstance(inst)
			}
		}
	})
	drop := func(...any) { g.setInstance(nil) }
	events.On(EventError, drop)
	events.On(EventDisconnect, drop)

	// The client may already be ready by the time the gateway attaches.
	g.setInstance(client.Instance())
}

func (g *EncryptionGateway) setInstance(inst Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instance = inst
}

// SetSigner replaces the signer whose address scopes encrypted inputs.
func (g *EncryptionGateway) SetSigner(s signer.Signer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signer = s
}

// SetContract replaces the target contract.
func (g *EncryptionGateway) SetContract(contract common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contract = contract
}

// CanEncrypt reports whether an instance, a signer, and a target contract are
// all present.
func (g *EncryptionGateway) CanEncrypt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.instance != nil && g.signer != nil && g.contract != (common.Address{})
}

// Encrypt creates an encrypted input scoped to (contract, signer address),
// lets build register one or more typed values on the builder, and finalizes
// them into ciphertext handles plus a validity proof.
//
// When CanEncrypt is false the result is (nil, nil): unavailability is an
// indication, not a failure, and callers are expected to gate on CanEncrypt.
func (g *EncryptionGateway) Encrypt(ctx context.Context, build func(Builder)) (*EncryptionResult, error) {
	g.mu.Lock()
	inst, s, contract := g.instance, g.signer, g.contract
	g.mu.Unlock()

	if inst == nil || s == nil || contract == (common.Address{}) {
		g.log.Debug("encryption unavailable",
			log.Bool("instance", inst != nil),
			log.Bool("signer", s != nil),
		)
		return nil, nil
	}

	builder, err := inst.CreateEncryptedInput(contract, s.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted input: %w", err)
	}
	build(builder)

	result, err := builder.Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt input: %w", err)
	}
	return result, nil
}

// EncryptionMethod maps an ABI-declared external ciphertext type name to the
// Builder method encrypting it. Unrecognized names map to Add64 with a
// logged warning; the mapping never fails.
func (g *EncryptionGateway) EncryptionMethod(abiType string) string {
	if method, ok := abiTypeMethods[abiType]; ok {
		return method
	}
	g.log.Warn("unknown external ciphertext type, defaulting to 64-bit",
		log.String("abiType", abiType),
	)
	return MethodAdd64
}
