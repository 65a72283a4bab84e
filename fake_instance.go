// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// FakeInstance is a test implementation of Instance backed by an in-memory
// plaintext table. Encryption assigns deterministic handles and records the
// plaintexts; UserDecrypt returns them after checking the grant covers the
// request.
type FakeInstance struct {
	InstanceID string
	Chain      uint64

	// DecryptGate, when non-nil, blocks UserDecrypt until the channel is
	// closed, letting tests hold a decryption in flight.
	DecryptGate chan struct{}
	// DecryptErr, when non-nil, is returned by UserDecrypt.
	DecryptErr error

	mu         sync.Mutex
	plaintexts map[Handle]*uint256.Int
	counter    uint64
}

var _ Instance = (*FakeInstance)(nil)

// NewFakeInstance returns a FakeInstance with the given identity.
func NewFakeInstance(id string, chainID uint64) *FakeInstance {
	return &FakeInstance{
		InstanceID: id,
		Chain:      chainID,
		plaintexts: make(map[Handle]*uint256.Int),
	}
}

func (f *FakeInstance) ID() string {
	return f.InstanceID
}

func (f *FakeInstance) ChainID() uint64 {
	return f.Chain
}

func (f *FakeInstance) CreateEncryptedInput(contractAddress, userAddress common.Address) (Builder, error) {
	return &fakeBuilder{
		instance: f,
		contract: contractAddress,
		user:     userAddress,
	}, nil
}

func (f *FakeInstance) UserDecrypt(
	ctx context.Context,
	pairs []HandleContractPair,
	sig *DecryptionSignature,
) (map[Handle]*uint256.Int, error) {
	if f.DecryptGate != nil {
		select {
		case <-f.DecryptGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.DecryptErr != nil {
		return nil, f.DecryptErr
	}

	contracts := make([]common.Address, 0, len(pairs))
	for _, p := range pairs {
		contracts = append(contracts, p.ContractAddress)
	}
	if !sig.Covers(contracts, sig.UserAddress, time.Now()) {
		return nil, fmt.Errorf("grant does not cover request")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	values := make(map[Handle]*uint256.Int, len(pairs))
	for _, p := range pairs {
		v, ok := f.plaintexts[p.Handle]
		if !ok {
			return nil, fmt.Errorf("unknown handle %s", p.Handle)
		}
		values[p.Handle] = v.Clone()
	}
	return values, nil
}

// Seed records a plaintext under a handle without going through encryption.
func (f *FakeInstance) Seed(h Handle, v *uint256.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plaintexts[h] = v.Clone()
}

func (f *FakeInstance) store(v *uint256.Int) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	h := Handle(ComputeHash256Array(fmt.Appendf(nil, "%s-%d", f.InstanceID, f.counter)))
	f.plaintexts[h] = v.Clone()
	return h
}

type fakeBuilder struct {
	instance *FakeInstance
	contract common.Address
	user     common.Address
	handles  []Handle
}

func (b *fakeBuilder) add(v *uint256.Int) Builder {
	b.handles = append(b.handles, b.instance.store(v))
	return b
}

func (b *fakeBuilder) AddBool(v bool) Builder {
	if v {
		return b.add(uint256.NewInt(1))
	}
	return b.add(uint256.NewInt(0))
}

func (b *fakeBuilder) Add8(v uint8) Builder   { return b.add(uint256.NewInt(uint64(v))) }
func (b *fakeBuilder) Add16(v uint16) Builder { return b.add(uint256.NewInt(uint64(v))) }
func (b *fakeBuilder) Add32(v uint32) Builder { return b.add(uint256.NewInt(uint64(v))) }
func (b *fakeBuilder) Add64(v uint64) Builder { return b.add(uint256.NewInt(v)) }

func (b *fakeBuilder) Add128(v *uint256.Int) Builder { return b.add(v) }
func (b *fakeBuilder) Add256(v *uint256.Int) Builder { return b.add(v) }

func (b *fakeBuilder) AddAddress(v common.Address) Builder {
	return b.add(new(uint256.Int).SetBytes(v.Bytes()))
}

func (b *fakeBuilder) Encrypt(_ context.Context) (*EncryptionResult, error) {
	proof := ComputeHash256(append(b.contract.Bytes(), b.user.Bytes()...))
	return &EncryptionResult{
		Handles:    b.handles,
		InputProof: proof,
	}, nil
}

// FakeFactory is a scripted InstanceFactory. Each CreateInstance call reports
// the standard sub-phases, optionally blocks on Gate, and then returns either
// Instance or Err.
type FakeFactory struct {
	Instance Instance
	Err      error

	// Gate, when non-nil, blocks creation after the sub-phases are reported
	// until the channel is closed.
	Gate chan struct{}

	mu    sync.Mutex
	calls int
}

var _ InstanceFactory = (*FakeFactory)(nil)

func (f *FakeFactory) CreateInstance(ctx context.Context, _ InstanceParams, progress ProgressFunc) (Instance, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	for _, phase := range []Phase{PhaseSDKLoading, PhaseSDKInitializing, PhaseCreating} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(phase)
		}
	}

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Instance, nil
}

// Calls returns how many times CreateInstance ran.
func (f *FakeFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
