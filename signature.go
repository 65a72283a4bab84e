// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/crypto"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/fhe-client/cache"
	"github.com/luxfi/fhe-client/signer"
	"github.com/luxfi/fhe-client/storage"
)

// DefaultGrantDurationDays is the validity window of a freshly created
// decryption grant.
const DefaultGrantDurationDays = 10

// grantDomain separates decryption-grant digests from any other signed
// payload of the same account.
const grantDomain = "lux-fhe-user-decrypt-v1"

// DecryptionSignature is an authenticated grant binding a user to a set of
// contract addresses for decryption within a time window. The embedded
// keypair is ephemeral material the decryption capability uses to return
// values readable only by this grant's holder.
type DecryptionSignature struct {
	PublicKey         hexutil.Bytes    `json:"publicKey"`
	PrivateKey        hexutil.Bytes    `json:"privateKey"`
	Signature         hexutil.Bytes    `json:"signature"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	UserAddress       common.Address   `json:"userAddress"`
	StartTimestamp    uint64           `json:"startTimestamp"`
	DurationDays      uint64           `json:"durationDays"`
}

// Covers reports whether the grant authorizes decrypting for every requested
// contract, for the given user, at the given time. A covered set that is a
// strict superset of the request is acceptable.
func (s *DecryptionSignature) Covers(contracts []common.Address, user common.Address, now time.Time) bool {
	if s.UserAddress != user {
		return false
	}
	start := time.Unix(int64(s.StartTimestamp), 0)
	end := start.Add(time.Duration(s.DurationDays) * 24 * time.Hour)
	if now.Before(start) || now.After(end) {
		return false
	}
	covered := set.Of(s.ContractAddresses...)
	for _, c := range contracts {
		if !covered.Contains(c) {
			return false
		}
	}
	return true
}

// Digest returns the structured digest the user signs to issue the grant:
// keccak over the domain tag, the sorted covered contracts, the user, the
// ephemeral public key, and the validity window.
func (s *DecryptionSignature) Digest() common.Hash {
	sorted := sortAddresses(s.ContractAddresses)

	var buf bytes.Buffer
	buf.WriteString(grantDomain)
	for _, c := range sorted {
		buf.Write(c.Bytes())
	}
	buf.Write(s.UserAddress.Bytes())
	buf.Write(s.PublicKey)
	var window [16]byte
	binary.BigEndian.PutUint64(window[:8], s.StartTimestamp)
	binary.BigEndian.PutUint64(window[8:], s.DurationDays)
	buf.Write(window[:])

	return common.Keccak256Hash(buf.Bytes())
}

// SignatureCacheOption configures a SignatureCache.
type SignatureCacheOption func(*SignatureCache)

// WithGrantDuration overrides the validity window of new grants.
func WithGrantDuration(days uint64) SignatureCacheOption {
	return func(c *SignatureCache) {
		c.durationDays = days
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SignatureCacheOption {
	return func(c *SignatureCache) {
		c.now = now
	}
}

// SignatureCache creates, persists, and reuses decryption grants. Grants are
// keyed by (instance identity, sorted covered contracts, user). Persisted
// entries are shared across gateways; racing creators for the same key may
// both sign, with the later persisted write winning, which is acceptable
// because grants are idempotent. Within one process, concurrent creation for
// the same key is deduplicated.
type SignatureCache struct {
	log          log.Logger
	durationDays uint64
	now          func() time.Time

	mem *cache.ValidityCache[string, *DecryptionSignature]
	sf  singleflight.Group
}

// NewSignatureCache returns a SignatureCache. logger may be nil.
func NewSignatureCache(logger log.Logger, opts ...SignatureCacheOption) *SignatureCache {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	c := &SignatureCache{
		log:          logger,
		durationDays: DefaultGrantDurationDays,
		now:          time.Now,
		mem:          cache.NewValidityCache[string, *DecryptionSignature](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadOrSign returns a grant covering contracts for the signer's account:
// the in-memory copy when still valid, else the persisted one, else a fresh
// grant signed by s and persisted to store.
func (c *SignatureCache) LoadOrSign(
	ctx context.Context,
	inst Instance,
	contracts []common.Address,
	s signer.Signer,
	store storage.Storage,
) (*DecryptionSignature, error) {
	if inst == nil {
		return nil, ErrNoInstance
	}
	if s == nil {
		return nil, ErrNoSigner
	}
	if store == nil {
		return nil, ErrNoStorage
	}

	user := s.Address()
	key := grantKey(inst.ID(), contracts, user)
	covers := func(sig *DecryptionSignature) bool {
		return sig.Covers(contracts, user, c.now())
	}

	if sig, ok := c.mem.Get(key, covers); ok {
		return sig, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if sig, err := c.load(ctx, store, key); err == nil && covers(sig) {
			c.mem.Put(key, sig)
			return sig, nil
		}

		sig, err := c.sign(ctx, contracts, s)
		if err != nil {
			return nil, err
		}
		if err := c.persist(ctx, store, key, sig); err != nil {
			// The grant is usable for this session even if persistence
			// failed; the next session will sign again.
			c.log.Warn("failed to persist decryption grant", log.Err(err))
		}
		c.mem.Put(key, sig)
		return sig, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DecryptionSignature), nil
}

// HasValidSignature reports whether a grant covering contracts for user is
// already available without signing. Lookup errors read as false.
func (c *SignatureCache) HasValidSignature(
	ctx context.Context,
	inst Instance,
	contracts []common.Address,
	user common.Address,
	store storage.Storage,
) bool {
	if inst == nil || store == nil {
		return false
	}
	key := grantKey(inst.ID(), contracts, user)
	covers := func(sig *DecryptionSignature) bool {
		return sig.Covers(contracts, user, c.now())
	}
	if _, ok := c.mem.Get(key, covers); ok {
		return true
	}
	sig, err := c.load(ctx, store, key)
	return err == nil && covers(sig)
}

// Invalidate drops the grant for (instance, contracts, user) from memory and
// storage, forcing the next LoadOrSign to prompt for a fresh signature.
func (c *SignatureCache) Invalidate(
	ctx context.Context,
	inst Instance,
	contracts []common.Address,
	user common.Address,
	store storage.Storage,
) error {
	if inst == nil {
		return ErrNoInstance
	}
	key := grantKey(inst.ID(), contracts, user)
	c.mem.Evict(key)
	if store == nil {
		return nil
	}
	return store.Remove(ctx, key)
}

func (c *SignatureCache) sign(
	ctx context.Context,
	contracts []common.Address,
	s signer.Signer,
) (*DecryptionSignature, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate grant keypair: %w", err)
	}

	sig := &DecryptionSignature{
		PublicKey:         crypto.FromECDSAPub(&key.PublicKey),
		PrivateKey:        crypto.FromECDSA(key),
		ContractAddresses: sortAddresses(contracts),
		UserAddress:       s.Address(),
		StartTimestamp:    uint64(c.now().Unix()),
		DurationDays:      c.durationDays,
	}

	signature, err := s.SignDigest(ctx, sig.Digest())
	if err != nil {
		return nil, fmt.Errorf("failed to sign decryption grant: %w", err)
	}
	sig.Signature = signature

	c.log.Debug("signed new decryption grant",
		log.Stringer("user", sig.UserAddress),
		log.Int("contracts", len(sig.ContractAddresses)),
		log.Uint64("durationDays", sig.DurationDays),
	)
	return sig, nil
}

func (c *SignatureCache) load(ctx context.Context, store storage.Storage, key string) (*DecryptionSignature, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Debug("grant lookup failed", log.Err(err))
		}
		return nil, err
	}
	sig := new(DecryptionSignature)
	if err := json.Unmarshal([]byte(raw), sig); err != nil {
		return nil, fmt.Errorf("failed to decode persisted grant: %w", err)
	}
	return sig, nil
}

func (c *SignatureCache) persist(ctx context.Context, store storage.Storage, key string, sig *DecryptionSignature) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(raw))
}

// grantKey derives the storage key of a grant from the instance identity,
// the sorted covered contracts, and the user.
func grantKey(instanceID string, contracts []common.Address, user common.Address) string {
	var buf bytes.Buffer
	buf.WriteString(instanceID)
	for _, c := range sortAddresses(contracts) {
		buf.Write(c.Bytes())
	}
	buf.Write(user.Bytes())
	digest := ComputeHash256Array(buf.Bytes())
	return "fhe-grant-" + hexutil.Encode(digest[:])
}

// sortAddresses returns a sorted copy, leaving the input untouched.
func sortAddresses(addrs []common.Address) []common.Address {
	sorted := make([]common.Address, len(addrs))
	copy(sorted, addrs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Bytes(), sorted[j].Bytes()) < 0
	})
	return sorted
}
