// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import "crypto/sha256"

// ComputeHash256 computes SHA256 hash
func ComputeHash256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// ComputeHash256Array computes SHA256 hash as a fixed-size array
func ComputeHash256Array(data []byte) [32]byte {
	return sha256.Sum256(data)
}
