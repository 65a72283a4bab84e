// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/fhe-client/signer"
	"github.com/luxfi/fhe-client/storage"
)

// Outcome is the result classification of one Decrypt call. Staleness is a
// cancellation, distinguishable from failure so callers do not present it as
// one.
type Outcome string

const (
	// OutcomeApplied means the batch decrypted and the results were stored.
	OutcomeApplied Outcome = "applied"
	// OutcomeUnavailable means CanDecrypt was false or a decryption was
	// already in flight; nothing happened.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeStale means the batch changed while decryption was in flight;
	// the late result was discarded.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed means signing or the decrypt capability failed; the
	// error is available via Err.
	OutcomeFailed Outcome = "failed"
)

// DecryptionGateway resolves batches of (handle, contract) pairs to
// plaintext values. It borrows the client's instance reactively, obtains or
// reuses a decryption grant through a SignatureCache, and guards against
// applying results whose batch changed while the decryption was in flight.
//
// At most one decryption runs per gateway; a Decrypt call while one is
// running is ignored, not queued. Failures are exposed as gateway state via
// Err, never panics; results replace wholesale via Results.
type DecryptionGateway struct {
	log     log.Logger
	sigs    *SignatureCache
	signer  signer.Signer
	storage storage.Storage

	guard RequestGuard

	mu       sync.Mutex
	instance Instance
	requests []HandleContractPair
	inFlight bool
	results  map[Handle]*uint256.Int
	err      error
}

// NewDecryptionGateway builds a gateway bound to client's lifecycle events,
// persisting grants to the client's configured storage.
func NewDecryptionGateway(client *Client, s signer.Signer, sigs *SignatureCache, logger log.Logger) *DecryptionGateway {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	if sigs == nil {
		sigs = NewSignatureCache(logger)
	}
	g := &DecryptionGateway{
		log:     logger,
		sigs:    sigs,
		signer:  s,
		storage: client.Config().Storage,
	}
	g.bind(client)
	return g
}

func (g *DecryptionGateway) bind(client *Client) {
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

	g.setInstance(client.Instance())
}

func (g *DecryptionGateway) setInstance(inst Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instance = inst
}

// SetRequests replaces the batch to decrypt. Any decryption already in
// flight for the previous batch will discard its result as stale.
func (g *DecryptionGateway) SetRequests(pairs []HandleContractPair) {
	batch := make([]HandleContractPair, len(pairs))
	copy(batch, pairs)

	g.mu.Lock()
	g.requests = batch
	g.mu.Unlock()
	g.guard.Update(BatchID(batch))
}

// Requests returns a copy of the current batch.
func (g *DecryptionGateway) Requests() []HandleContractPair {
	g.mu.Lock()
	defer g.mu.Unlock()
	batch := make([]HandleContractPair, len(g.requests))
	copy(batch, g.requests)
	return batch
}

// CanDecrypt reports whether an instance, a signer, a storage adapter, and a
// non-empty batch are all present.
func (g *DecryptionGateway) CanDecrypt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canDecryptLocked()
}

func (g *DecryptionGateway) canDecryptLocked() bool {
	return g.instance != nil && g.signer != nil && g.storage != nil && len(g.requests) > 0
}

// InFlight reports whether a decryption is currently running.
func (g *DecryptionGateway) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Results returns a copy of the mapping produced by the last applied
// decryption, nil before the first one. A failed or superseded call
// contributes nothing.
func (g *DecryptionGateway) Results() map[Handle]*uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.results == nil {
		return nil
	}
	values := make(map[Handle]*uint256.Int, len(g.results))
	for h, v := range g.results {
		values[h] = v
	}
	return values
}

// Err returns the error of the last failed decryption, nil after an applied
// one. Stale outcomes leave it untouched.
func (g *DecryptionGateway) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Decrypt resolves the current batch. It is a no-op returning
// OutcomeUnavailable when CanDecrypt is false or another decryption is in
// flight. A result arriving after the batch changed is discarded and
// reported as OutcomeStale.
func (g *DecryptionGateway) Decrypt(ctx context.Context) Outcome {
	g.mu.Lock()
	if !g.canDecryptLocked() || g.inFlight {
		g.mu.Unlock()
		return OutcomeUnavailable
	}
	g.inFlight = true
	inst := g.instance
	batch := make([]HandleContractPair, len(g.requests))
	copy(batch, g.requests)
	g.mu.Unlock()

	// The captured token comes from the snapshot, not the guard, so a batch
	// swapped in between the snapshot and completion always reads as stale.
	captured := BatchID(batch)

	values, err := g.decryptBatch(ctx, inst, batch)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false

	if g.guard.Stale(captured) {
		// The caller changed the batch mid-flight. Whatever happened, the
		// outcome must not touch results or error.
		g.log.Debug("discarding stale decryption result",
			log.Stringer("batch", captured),
		)
		return OutcomeStale
	}
	if err != nil {
		g.log.Warn("decryption failed", log.Err(err))
		g.err = err
		return OutcomeFailed
	}
	g.results = values
	g.err = nil
	return OutcomeApplied
}

func (g *DecryptionGateway) decryptBatch(
	ctx context.Context,
	inst Instance,
	batch []HandleContractPair,
) (map[Handle]*uint256.Int, error) {
	contracts := distinctContracts(batch)

	sig, err := g.sigs.LoadOrSign(ctx, inst, contracts, g.signer, g.storage)
	if err != nil {
		return nil, err
	}
	return inst.UserDecrypt(ctx, batch, sig)
}

// distinctContracts returns the sorted distinct contract addresses of a
// batch.
func distinctContracts(batch []HandleContractPair) []common.Address {
	seen := set.NewSet[common.Address](len(batch))
	for _, p := range batch {
		seen.Add(p.ContractAddress)
	}
	return sortAddresses(seen.List())
}
