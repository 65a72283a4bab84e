// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

// Status is the connection status of a Client. Statuses advance monotonically
// along the happy path idle -> connecting -> sdk-loading -> sdk-initializing ->
// creating-instance -> ready; error and disconnected are reachable from any
// non-terminal state.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusConnecting       Status = "connecting"
	StatusSDKLoading       Status = "sdk-loading"
	StatusSDKInitializing  Status = "sdk-initializing"
	StatusCreatingInstance Status = "creating-instance"
	StatusReady            Status = "ready"
	StatusError            Status = "error"
	StatusDisconnected     Status = "disconnected"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// connecting reports whether the status belongs to an in-flight connection
// attempt. Connect is a no-op while one of these is active.
func (s Status) connecting() bool {
	switch s {
	case StatusConnecting, StatusSDKLoading, StatusSDKInitializing, StatusCreatingInstance:
		return true
	default:
		return false
	}
}

// Event names published by the Client on its Emitter.
const (
	// EventStatus carries the new Status on every status change.
	EventStatus = "status"
	// EventReady carries the live Instance once a connection attempt succeeds.
	EventReady = "ready"
	// EventError carries the error of a failed, non-cancelled connection attempt.
	EventError = "error"
	// EventDisconnect carries no arguments.
	EventDisconnect = "disconnect"
)
