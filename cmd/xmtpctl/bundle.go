// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/xmtp-go/core/identity"
)

var bundleKeyHex string

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Publish key bundles for a wallet identity",
	Long: `Generates a fresh identity key and pre-key pair rooted at a wallet
signature: the owner's wallet key signs the identity key and the identity
key signs the pre-key, the way a client would before publishing to the
directory.`,
}

var bundlePublishV1Cmd = &cobra.Command{
	Use:   "publish-v1",
	Short: "Publish a v1 (non-expiring) key bundle",
	RunE:  runBundlePublishV1,
}

var bundlePublishV2Cmd = &cobra.Command{
	Use:   "publish-v2",
	Short: "Publish a v2 (timestamped, rotatable) key bundle",
	RunE:  runBundlePublishV2,
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.AddCommand(bundlePublishV1Cmd)
	bundleCmd.AddCommand(bundlePublishV2Cmd)

	bundleCmd.PersistentFlags().StringVar(&bundleKeyHex, "wallet-key", "", "hex-encoded wallet private key (generates one if omitted)")
}

func loadOrGenerateWallet() (*identity.KeyPair, identity.Address, error) {
	if bundleKeyHex == "" {
		keyPair, err := identity.GenerateKeyPair()
		if err != nil {
			return nil, identity.Address{}, fmt.Errorf("generate wallet key: %w", err)
		}
		return keyPair, identity.AddressFromPublicKey(keyPair.PublicKey().ToECDSA()), nil
	}
	raw, err := hex.DecodeString(bundleKeyHex)
	if err != nil {
		return nil, identity.Address{}, fmt.Errorf("decode wallet key: %w", err)
	}
	keyPair := identity.KeyPairFromPrivate(secp256k1.PrivKeyFromBytes(raw))
	return keyPair, identity.AddressFromPublicKey(keyPair.PublicKey().ToECDSA()), nil
}

func runBundlePublishV1(cmd *cobra.Command, args []string) error {
	wallet, owner, err := loadOrGenerateWallet()
	if err != nil {
		return err
	}
	priv, err := identity.NewPrivateBundle(owner)
	if err != nil {
		return fmt.Errorf("create private bundle: %w", err)
	}
	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }

	bundle, err := identity.PublishBundleV1(priv, sign)
	if err != nil {
		return fmt.Errorf("publish v1 bundle: %w", err)
	}

	fmt.Printf("Owner:              %s\n", bundle.Owner.String())
	fmt.Printf("Identity public key: %x\n", bundle.IdentityPublicKey)
	fmt.Printf("Pre-key public key:  %x\n", bundle.PreKeyPublicKey)
	return nil
}

func runBundlePublishV2(cmd *cobra.Command, args []string) error {
	wallet, owner, err := loadOrGenerateWallet()
	if err != nil {
		return err
	}
	priv, err := identity.NewPrivateBundle(owner)
	if err != nil {
		return fmt.Errorf("create private bundle: %w", err)
	}
	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }

	bundle, err := identity.PublishBundleV2(priv, sign, time.Now())
	if err != nil {
		return fmt.Errorf("publish v2 bundle: %w", err)
	}

	fmt.Printf("Owner:              %s\n", bundle.Owner.String())
	fmt.Printf("Identity public key: %x (created_ns=%d)\n", bundle.Identity.KeyBytes, bundle.Identity.CreatedNs)
	fmt.Printf("Pre-key public key:  %x (created_ns=%d)\n", bundle.PreKey.KeyBytes, bundle.PreKey.CreatedNs)
	return nil
}
