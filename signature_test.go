// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/crypto"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhe-client/signer"
	"github.com/luxfi/fhe-client/storage"
)

// countingSigner counts how many grants it is asked to sign.
type countingSigner struct {
	signer.Signer

	mu    sync.Mutex
	signs int
}

func newCountingSigner(t *testing.T) *countingSigner {
	s, err := signer.Generate()
	require.NoError(t, err)
	return &countingSigner{Signer: s}
}

func (s *countingSigner) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	s.mu.Lock()
	s.signs++
	s.mu.Unlock()
	return s.Signer.SignDigest(ctx, digest)
}

func (s *countingSigner) Signs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signs
}

// gatedSigner blocks every SignDigest until released, signalling entry once.
type gatedSigner struct {
	*countingSigner

	entered sync.Once
	enter   chan struct{}
	release chan struct{}
}

func newGatedSigner(t *testing.T) *gatedSigner {
	return &gatedSigner{
		countingSigner: newCountingSigner(t),
		enter:          make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (s *gatedSigner) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	s.entered.Do(func() { close(s.enter) })
	<-s.release
	return s.countingSigner.SignDigest(ctx, digest)
}

// failingStorage errors on every operation.
type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, error) {
	return "", errors.New("backend offline")
}
func (failingStorage) Set(context.Context, string, string) error {
	return errors.New("backend offline")
}
func (failingStorage) Remove(context.Context, string) error {
	return errors.New("backend offline")
}

func TestSignatureReuseWithinWindow(t *testing.T) {
	const durationDays = 10

	start := time.Unix(1_700_000_000, 0)
	now := start
	var nowMu sync.Mutex
	clock := func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}
	setNow := func(at time.Time) {
		nowMu.Lock()
		defer nowMu.Unlock()
		now = at
	}

	inst := NewFakeInstance("inst-1", 1)
	s := newCountingSigner(t)
	store := storage.NewMemory()
	cache := NewSignatureCache(nil, WithClock(clock), WithGrantDuration(durationDays))
	contracts := []common.Address{common.HexToAddress("0xC0")}

	ctx := context.Background()
	first, err := cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())
	require.Equal(t, uint64(start.Unix()), first.StartTimestamp)

	// One second before the window lapses: the cached grant is reused.
	setNow(start.Add(durationDays*24*time.Hour - time.Second))
	again, err := cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())
	require.Equal(t, first.Signature, again.Signature)

	// One second after: a fresh signature is prompted for.
	setNow(start.Add(durationDays*24*time.Hour + time.Second))
	fresh, err := cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 2, s.Signs())
	require.NotEqual(t, first.Signature, fresh.Signature)
}

func TestSignatureReusedFromStorageAcrossCaches(t *testing.T) {
	inst := NewFakeInstance("inst-1", 1)
	s := newCountingSigner(t)
	store := storage.NewMemory()
	contracts := []common.Address{common.HexToAddress("0xC0"), common.HexToAddress("0xC1")}

	ctx := context.Background()
	first, err := NewSignatureCache(nil).LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())

	// A separate cache instance sharing the storage reuses the persisted
	// grant without prompting.
	second, err := NewSignatureCache(nil).LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())
	require.Equal(t, first.Signature, second.Signature)

	// Contract order does not change the grant key.
	swapped := []common.Address{contracts[1], contracts[0]}
	third, err := NewSignatureCache(nil).LoadOrSign(ctx, inst, swapped, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())
	require.Equal(t, first.Signature, third.Signature)
}

func TestConcurrentLoadOrSignSignsOnce(t *testing.T) {
	inst := NewFakeInstance("inst-1", 1)
	s := newGatedSigner(t)
	store := storage.NewMemory()
	cache := NewSignatureCache(nil)
	contracts := []common.Address{common.HexToAddress("0xC0")}

	// Hold the first creator inside the signer while the rest pile up on the
	// same key, then release them all at once.
	const callers = 8
	type result struct {
		sig *DecryptionSignature
		err error
	}
	results := make(chan result, callers)
	for i := 0; i < callers; i++ {
		go func() {
			sig, err := cache.LoadOrSign(context.Background(), inst, contracts, s, store)
			results <- result{sig: sig, err: err}
		}()
	}

	<-s.enter
	close(s.release)

	var first *DecryptionSignature
	for i := 0; i < callers; i++ {
		r := <-results
		require.NoError(t, r.err)
		if first == nil {
			first = r.sig
		}
		require.Equal(t, first.Signature, r.sig.Signature)
	}
	require.Equal(t, 1, s.Signs())
}

func TestCoversSupersetPolicy(t *testing.T) {
	user := common.HexToAddress("0xAA")
	c1 := common.HexToAddress("0xC1")
	c2 := common.HexToAddress("0xC2")
	c3 := common.HexToAddress("0xC3")
	now := time.Unix(1_700_000_000, 0)

	sig := &DecryptionSignature{
		ContractAddresses: []common.Address{c1, c2},
		UserAddress:       user,
		StartTimestamp:    uint64(now.Add(-time.Hour).Unix()),
		DurationDays:      10,
	}

	// A covered set that is a strict superset of the request is acceptable.
	require.True(t, sig.Covers([]common.Address{c1}, user, now))
	require.True(t, sig.Covers([]common.Address{c1, c2}, user, now))

	require.False(t, sig.Covers([]common.Address{c1, c3}, user, now))
	require.False(t, sig.Covers([]common.Address{c1}, common.HexToAddress("0xBB"), now))
	require.False(t, sig.Covers([]common.Address{c1}, user, now.Add(-2*time.Hour)))
	require.False(t, sig.Covers([]common.Address{c1}, user, now.Add(11*24*time.Hour)))
}

func TestHasValidSignature(t *testing.T) {
	inst := NewFakeInstance("inst-1", 1)
	s := newCountingSigner(t)
	store := storage.NewMemory()
	cache := NewSignatureCache(nil)
	contracts := []common.Address{common.HexToAddress("0xC0")}

	ctx := context.Background()
	require.False(t, cache.HasValidSignature(ctx, inst, contracts, s.Address(), store))

	_, err := cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.True(t, cache.HasValidSignature(ctx, inst, contracts, s.Address(), store))

	// A different user has no grant.
	require.False(t, cache.HasValidSignature(ctx, inst, contracts, common.HexToAddress("0xBB"), store))

	// Lookup errors read as false, never as a failure.
	require.False(t, NewSignatureCache(nil).HasValidSignature(ctx, inst, contracts, s.Address(), failingStorage{}))
}

func TestInvalidateForcesFreshSignature(t *testing.T) {
	inst := NewFakeInstance("inst-1", 1)
	s := newCountingSigner(t)
	store := storage.NewMemory()
	cache := NewSignatureCache(nil)
	contracts := []common.Address{common.HexToAddress("0xC0")}

	ctx := context.Background()
	_, err := cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 1, s.Signs())

	require.NoError(t, cache.Invalidate(ctx, inst, contracts, s.Address(), store))

	_, err = cache.LoadOrSign(ctx, inst, contracts, s, store)
	require.NoError(t, err)
	require.Equal(t, 2, s.Signs())
}

func TestGrantSignatureRecoversSignerAddress(t *testing.T) {
	inst := NewFakeInstance("inst-1", 1)
	local, err := signer.Generate()
	require.NoError(t, err)
	store := storage.NewMemory()
	contracts := []common.Address{common.HexToAddress("0xC0")}

	sig, err := NewSignatureCache(nil).LoadOrSign(context.Background(), inst, contracts, local, store)
	require.NoError(t, err)
	require.Len(t, sig.Signature, 65)

	digest := sig.Digest()
	pub, err := crypto.SigToPub(digest[:], sig.Signature)
	require.NoError(t, err)
	require.Equal(t, local.Address(), common.PubkeyToAddress(*pub))
}
