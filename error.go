// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNoInstance is returned when an operation needs a live instance but
	// the client is not ready.
	ErrNoInstance = errors.New("no live instance")
	// ErrNoSigner is returned when an operation needs a signer and none was
	// supplied.
	ErrNoSigner = errors.New("no signer")
	// ErrNoStorage is returned when signature persistence is required but no
	// storage adapter is available.
	ErrNoStorage = errors.New("no storage adapter")
)

// normalizeError coerces an arbitrary recovered or returned value into an
// error, so event payloads always carry a real error value.
func normalizeError(v any) error {
	switch err := v.(type) {
	case nil:
		return nil
	case error:
		return err
	default:
		return fmt.Errorf("%v", v)
	}
}
