// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/luxfi/geth/common"

	fheclient "github.com/luxfi/fhe-client"
	"github.com/luxfi/fhe-client/signer"
)

func main() {
	// In a real integration the factory wraps the relayer SDK; here an
	// in-process fake stands in for it.
	factory := &fheclient.FakeFactory{
		Instance: fheclient.NewFakeInstance("example", 96369),
	}

	client := fheclient.NewClient(fheclient.ClientConfig{
		RPCURL: "http://localhost:9650",
	}, factory, nil)

	client.Events().On(fheclient.EventStatus, func(args ...any) {
		fmt.Printf("status: %s\n", args[0])
	})

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect()

	s, err := signer.Generate()
	if err != nil {
		log.Fatal(err)
	}
	contract := common.HexToAddress("0x0100000000000000000000000000000000000080")

	// Encrypt a 64-bit value into a ciphertext handle.
	enc := fheclient.NewEncryptionGateway(client, s, contract, nil)
	result, err := enc.Encrypt(ctx, func(b fheclient.Builder) {
		b.Add64(42)
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("handle: %s\n", result.Handles[0])

	// Decrypt it back under a signed grant.
	dec := fheclient.NewDecryptionGateway(client, s, nil, nil)
	dec.SetRequests([]fheclient.HandleContractPair{{
		Handle:          result.Handles[0],
		ContractAddress: contract,
	}})
	if outcome := dec.Decrypt(ctx); outcome != fheclient.OutcomeApplied {
		log.Fatalf("decrypt: %s (%v)", outcome, dec.Err())
	}
	for h, v := range dec.Results() {
		fmt.Printf("decrypted %s = %s\n", h, v.Dec())
	}
}
