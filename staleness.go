// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"sort"
	"sync"

	"github.com/luxfi/ids"
)

// RequestGuard detects that the parameters of an in-flight operation changed
// before the operation completed, so a late result can be discarded instead
// of applied.
//
// Usage: call Update whenever the caller's request parameters change, Capture
// immediately before starting the long-running operation, and Stale with the
// captured token when the result arrives.
type RequestGuard struct {
	mu      sync.Mutex
	current ids.ID
}

// Update records the identity token of the caller's current parameters.
func (g *RequestGuard) Update(token ids.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = token
}

// Capture returns the identity token at the start of an operation.
func (g *RequestGuard) Capture() ids.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Stale reports whether the parameters have advanced past the captured token.
func (g *RequestGuard) Stale(captured ids.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != captured
}

// BatchID is the identity token of a decryption batch: the hash of its
// sorted-by-handle stable serialization. Order of the input slice does not
// affect the token.
func BatchID(pairs []HandleContractPair) ids.ID {
	sorted := make([]HandleContractPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Handle.Compare(sorted[j].Handle) < 0
	})

	buf := make([]byte, 0, len(sorted)*52)
	for _, p := range sorted {
		buf = append(buf, p.Handle[:]...)
		buf = append(buf, p.ContractAddress.Bytes()...)
	}
	return ids.ID(ComputeHash256(buf))
}
