// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/crypto"
	"github.com/stretchr/testify/require"
)

func TestLocalSignerRoundTrip(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, s.Address())

	digest := common.Keccak256Hash([]byte("grant"))
	sig, err := s.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), common.PubkeyToAddress(*pub))
}

func TestFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	hexKey := hex.EncodeToString(crypto.FromECDSA(key))
	s, err := FromHex(hexKey)
	require.NoError(t, err)
	require.Equal(t, common.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = FromHex("not-a-key")
	require.Error(t, err)
}
