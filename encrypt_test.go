// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fheclient

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhe-client/signer"
)

func readyClient(t *testing.T) (*Client, *FakeInstance) {
	t.Helper()
	inst := NewFakeInstance("inst-1", 1)
	client := newTestClient(&FakeFactory{Instance: inst})
	require.NoError(t, client.Connect(context.Background()))
	return client, inst
}

func TestEncryptionMethodMapping(t *testing.T) {
	client, _ := readyClient(t)
	s, err := signer.Generate()
	require.NoError(t, err)
	g := NewEncryptionGateway(client, s, common.HexToAddress("0xC0"), nil)

	tests := []struct {
		abiType string
		method  string
	}{
		{abiType: "externalEbool", method: "AddBool"},
		{abiType: "externalEuint8", method: "Add8"},
		{abiType: "externalEuint16", method: "Add16"},
		{abiType: "externalEuint32", method: "Add32"},
		{abiType: "externalEuint64", method: "Add64"},
		{abiType: "externalEuint128", method: "Add128"},
		{abiType: "externalEuint256", method: "Add256"},
		{abiType: "externalEaddress", method: "AddAddress"},
		// Unrecognized names default to the 64-bit mapping.
		{abiType: "externalEuint512", method: "Add64"},
		{abiType: "", method: "Add64"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.method, g.EncryptionMethod(tt.abiType), tt.abiType)
	}
}

func TestCanEncryptGating(t *testing.T) {
	client, _ := readyClient(t)
	s, err := signer.Generate()
	require.NoError(t, err)

	tests := []struct {
		name     string
		signer   signer.Signer
		contract common.Address
		want     bool
	}{
		{
			name:     "all present",
			signer:   s,
			contract: common.HexToAddress("0xC0"),
			want:     true,
		},
		{
			name:     "no signer",
			signer:   nil,
			contract: common.HexToAddress("0xC0"),
			want:     false,
		},
		{
			name:     "no contract",
			signer:   s,
			contract: common.Address{},
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewEncryptionGateway(client, tt.signer, tt.contract, nil)
			require.Equal(t, tt.want, g.CanEncrypt())
		})
	}
}

func TestEncryptUnavailableYieldsNilResult(t *testing.T) {
	// Client never connected: no instance.
	client := newTestClient(&FakeFactory{Instance: NewFakeInstance("inst-1", 1)})
	s, err := signer.Generate()
	require.NoError(t, err)
	g := NewEncryptionGateway(client, s, common.HexToAddress("0xC0"), nil)

	require.False(t, g.CanEncrypt())
	result, err := g.Encrypt(context.Background(), func(b Builder) { b.Add64(1) })
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestEncryptTypedValues(t *testing.T) {
	client, _ := readyClient(t)
	s, err := signer.Generate()
	require.NoError(t, err)
	g := NewEncryptionGateway(client, s, common.HexToAddress("0xC0"), nil)

	result, err := g.Encrypt(context.Background(), func(b Builder) {
		b.AddBool(true).
			Add8(8).
			Add32(32).
			Add256(uint256.NewInt(256)).
			AddAddress(common.HexToAddress("0xAA"))
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Handles, 5)
	require.NotEmpty(t, result.InputProof)

	// Handles are distinct and ordered by addition.
	seen := make(map[Handle]struct{}, len(result.Handles))
	for _, h := range result.Handles {
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
	}
}

func TestEncryptLosesInstanceOnDisconnect(t *testing.T) {
	client, _ := readyClient(t)
	s, err := signer.Generate()
	require.NoError(t, err)
	g := NewEncryptionGateway(client, s, common.HexToAddress("0xC0"), nil)
	require.True(t, g.CanEncrypt())

	client.Disconnect()
	require.False(t, g.CanEncrypt())

	result, err := g.Encrypt(context.Background(), func(b Builder) { b.Add64(1) })
	require.NoError(t, err)
	require.Nil(t, result)

	// Reconnect restores the borrowed reference.
	require.NoError(t, client.Connect(context.Background()))
	require.True(t, g.CanEncrypt())
}
