// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	fheclient "github.com/luxfi/fhe-client"
	"github.com/luxfi/fhe-client/config"
	"github.com/luxfi/fhe-client/signer"
	"github.com/luxfi/fhe-client/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fhecli",
	Short: "Lux FHE client SDK smoke-test tool",
	Long: `fhecli exercises the FHE client SDK lifecycle end to end against an
in-process instance: connect, encrypt typed values into ciphertext handles,
and decrypt them back under a signed grant.

Integrations embed the SDK directly; this tool exists to verify config,
storage, and signing wiring without a live relayer.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(config.BuildFlagSet())
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(grantCmd)
}

func buildConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	return config.NewConfig(v)
}

func buildDeps(cfg config.Config) (signer.Signer, storage.Storage, error) {
	var (
		s   signer.Signer
		err error
	)
	if cfg.PrivateKey != "" {
		s, err = signer.FromHex(cfg.PrivateKey)
	} else {
		s, err = signer.Generate()
	}
	if err != nil {
		return nil, nil, err
	}

	var store storage.Storage
	if cfg.StoragePath != "" {
		store, err = storage.OpenSQLite(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		store = storage.NewMemory()
	}
	return s, store, nil
}

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run a connect/encrypt/decrypt round trip",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		s, store, err := buildDeps(cfg)
		if err != nil {
			return err
		}
		logger := log.NewLogger("fhecli")

		factory := &fheclient.FakeFactory{
			Instance: fheclient.NewFakeInstance("fhecli-smoke", cfg.ChainID),
		}
		client := fheclient.NewClient(fheclient.ClientConfig{
			RPCURL:         cfg.RPCURL,
			FallbackRPCURL: cfg.FallbackRPCURL,
			ChainID:        cfg.ChainID,
			LocalRPCs:      cfg.LocalRPCs,
			Storage:        store,
			Debug:          cfg.Debug,
		}, factory, logger)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Disconnect()

		contract := common.HexToAddress("0x0100000000000000000000000000000000000080")
		enc := fheclient.NewEncryptionGateway(client, s, contract, logger)
		result, err := enc.Encrypt(ctx, func(b fheclient.Builder) {
			b.Add64(42)
		})
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("encryption unavailable; status %s", client.Status())
		}
		fmt.Printf("encrypted 1 value, handle %s\n", result.Handles[0])

		sigs := fheclient.NewSignatureCache(logger, fheclient.WithGrantDuration(cfg.GrantDurationDays))
		dec := fheclient.NewDecryptionGateway(client, s, sigs, logger)
		dec.SetRequests([]fheclient.HandleContractPair{{
			Handle:          result.Handles[0],
			ContractAddress: contract,
		}})
		if outcome := dec.Decrypt(ctx); outcome != fheclient.OutcomeApplied {
			return fmt.Errorf("decryption not applied: %s (%v)", outcome, dec.Err())
		}
		for h, v := range dec.Results() {
			fmt.Printf("decrypted %s = %s\n", h, v.Dec())
		}
		if want := uint256.NewInt(42); dec.Results()[result.Handles[0]].Cmp(want) != 0 {
			return fmt.Errorf("round trip mismatch")
		}
		fmt.Println("round trip ok")
		return nil
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant [contract-address...]",
	Short: "Check whether a valid decryption grant is cached for the given contracts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		s, store, err := buildDeps(cfg)
		if err != nil {
			return err
		}

		contracts := make([]common.Address, 0, len(args))
		for _, arg := range args {
			if !common.IsHexAddress(arg) {
				return fmt.Errorf("invalid contract address %q", arg)
			}
			contracts = append(contracts, common.HexToAddress(arg))
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		inst := fheclient.NewFakeInstance("fhecli-smoke", cfg.ChainID)
		sigs := fheclient.NewSignatureCache(log.NewLogger("fhecli"))
		if sigs.HasValidSignature(ctx, inst, contracts, s.Address(), store) {
			fmt.Println("valid grant cached")
		} else {
			fmt.Println("no valid grant; next decryption will prompt for a signature")
		}
		return nil
	},
}
