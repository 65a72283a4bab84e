// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fheclient is the client SDK for the Lux FHE relayer. It owns the
// connection lifecycle to the FHE execution environment and exposes gateways
// that encrypt plaintext values into ciphertext handles and decrypt handles
// back under an authenticated, time-windowed grant.
package fheclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"
)

// Client drives the connect/disconnect protocol against an InstanceFactory
// and owns the resulting live Instance. One Client corresponds to one logical
// connection session; its ClientConfig is immutable for the Client's
// lifetime.
//
// Lifecycle notifications are published on Events: EventStatus on every
// status change, EventReady with the Instance on success, EventError with a
// normalized error on a failed attempt, EventDisconnect on disconnect.
// Exactly one ready or one error is emitted per connection attempt;
// superseded attempts emit neither. Events are queued under the same lock
// that records the transition and delivered outside it, so listeners may
// call back into the Client and always observe events in transition order.
type Client struct {
	log     log.Logger
	cfg     ClientConfig
	factory InstanceFactory
	events  *Emitter

	mu       sync.Mutex
	status   Status
	instance Instance
	chainID  uint64

	// attempt is the generation counter of connection attempts. Every status
	// or instance mutation made on behalf of an attempt first checks that
	// the attempt is still current, which makes cancellation races
	// auditable in one place.
	attempt uint64
	cancel  context.CancelFunc

	pending  []queuedEvent
	flushing bool
}

type queuedEvent struct {
	name string
	args []any
}

// NewClient constructs a Client. cfg is normalized once (deprecated aliases
// mapped, default in-memory storage instantiated) and then never mutated.
// logger may be nil.
func NewClient(cfg ClientConfig, factory InstanceFactory, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Client{
		log:     logger,
		cfg:     cfg.normalize(),
		factory: factory,
		events:  NewEmitter(logger),
		status:  StatusIdle,
	}
}

// Events returns the emitter carrying the client's lifecycle events.
func (c *Client) Events() *Emitter {
	return c.events
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Instance returns the live instance, or nil unless the status is ready.
func (c *Client) Instance() Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instance
}

// ChainID returns the chain id of the live instance, or zero.
func (c *Client) ChainID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chainID
}

// Config returns a copy of the normalized config.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Connect establishes a live instance. It returns immediately with no error
// if a connection attempt is already in flight or the client is ready.
// Otherwise it cancels any superseded attempt, walks the status through the
// factory's sub-phases, and blocks until the attempt resolves.
//
// A failure that is not a cancellation moves the status to error, emits
// EventError, and is returned to the caller. A cancelled attempt (a newer
// Connect or a Disconnect superseded it, or ctx was cancelled) resolves
// silently with a nil error and emits neither ready nor error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status.connecting() || c.status == StatusReady {
		c.mu.Unlock()
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.attempt++
	gen := c.attempt
	c.transitionLocked(StatusConnecting)
	c.mu.Unlock()
	c.flush()

	inst, err := c.factory.CreateInstance(attemptCtx, c.cfg.instanceParams(), func(p Phase) {
		c.advance(gen, p)
	})

	if err != nil || attemptCtx.Err() != nil {
		return c.resolveFailure(gen, attemptCtx, err)
	}
	return c.resolveSuccess(gen, inst)
}

// Disconnect cancels any in-flight attempt, drops the instance and chain id,
// and moves the status to disconnected. Idempotent: repeated calls emit
// nothing new.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.releaseAttemptLocked()
	// Bump the generation so a resolving attempt sees itself superseded.
	c.attempt++
	c.instance = nil
	c.chainID = 0
	if c.transitionLocked(StatusDisconnected) {
		c.enqueueLocked(EventDisconnect)
	}
	c.mu.Unlock()
	c.flush()
}

// Reconnect is Disconnect followed by Connect, as one caller-visible
// operation.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// advance moves the status through a factory sub-phase, unless the attempt
// has been superseded.
func (c *Client) advance(gen uint64, phase Phase) {
	var next Status
	switch phase {
	case PhaseSDKLoading:
		next = StatusSDKLoading
	case PhaseSDKInitializing:
		next = StatusSDKInitializing
	case PhaseCreating:
		next = StatusCreatingInstance
	default:
		c.log.Debug("ignoring unknown instance-creation phase",
			log.String("phase", string(phase)),
		)
		return
	}

	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(next)
	c.mu.Unlock()
	c.flush()
}

func (c *Client) resolveSuccess(gen uint64, inst Instance) error {
	c.mu.Lock()
	if gen != c.attempt {
		// Superseded while resolving. The newer attempt owns the status.
		c.mu.Unlock()
		return nil
	}
	c.instance = inst
	c.chainID = inst.ChainID()
	c.releaseAttemptLocked()
	c.transitionLocked(StatusReady)
	c.enqueueLocked(EventReady, inst)
	c.mu.Unlock()

	c.log.Info("fhe client ready",
		log.String("instance", inst.ID()),
		log.Uint64("chainID", inst.ChainID()),
	)
	c.flush()
	return nil
}

func (c *Client) resolveFailure(gen uint64, attemptCtx context.Context, err error) error {
	cancelled := attemptCtx.Err() != nil

	c.mu.Lock()
	if gen != c.attempt {
		// A newer Connect or Disconnect already set the status it wants;
		// this attempt must not touch it or emit anything.
		c.mu.Unlock()
		return nil
	}
	c.releaseAttemptLocked()
	if cancelled {
		// The caller's own context expired mid-attempt. Not an error.
		c.transitionLocked(StatusDisconnected)
		c.mu.Unlock()
		c.flush()
		return nil
	}
	err = normalizeError(err)
	c.transitionLocked(StatusError)
	c.enqueueLocked(EventError, err)
	c.mu.Unlock()

	c.log.Warn("fhe instance creation failed", log.Err(err))
	c.flush()
	return fmt.Errorf("failed to create fhe instance: %w", err)
}

// releaseAttemptLocked cancels the attempt's derived context so it detaches
// from the caller's context, which may outlive many reconnect cycles.
func (c *Client) releaseAttemptLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// transitionLocked records a status change, queues its EventStatus, and
// reports whether the value actually changed. Assigning the current status
// again is a no-op.
func (c *Client) transitionLocked(next Status) bool {
	if c.status == next {
		return false
	}
	if c.cfg.Debug {
		c.log.Debug("status change",
			log.Stringer("from", c.status),
			log.Stringer("to", next),
		)
	}
	c.status = next
	c.enqueueLocked(EventStatus, next)
	return true
}

func (c *Client) enqueueLocked(event string, args ...any) {
	c.pending = append(c.pending, queuedEvent{name: event, args: args})
}

// flush delivers queued events outside the lock, in the order their
// transitions were recorded. One goroutine drains at a time; a mutator that
// finds a drain in progress appends and returns, so listeners never see a
// later transition's event before an earlier one's.
func (c *Client) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.events.Emit(next.name, next.args...)
		c.mu.Lock()
	}
	c.flushing = false
	c.mu.Unlock()
}
