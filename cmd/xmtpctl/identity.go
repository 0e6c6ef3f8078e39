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

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/xmtp-go/core/identity"
)

var identityKeyHex string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Generate and inspect wallet identities",
}

var identityGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new wallet identity",
	Example: `  # Generate a new identity and print its private key and address
  xmtpctl identity generate`,
	RunE: runIdentityGenerate,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Derive the wallet address for an existing private key",
	Example: `  # Show the address for a hex-encoded private key
  xmtpctl identity show --key 1f2e3d...`,
	RunE: runIdentityShow,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityGenerateCmd)
	identityCmd.AddCommand(identityShowCmd)

	identityShowCmd.Flags().StringVar(&identityKeyHex, "key", "", "hex-encoded secp256k1 private key (required)")
}

func runIdentityGenerate(cmd *cobra.Command, args []string) error {
	keyPair, err := identity.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	addr := identity.AddressFromPublicKey(keyPair.PublicKey().ToECDSA())

	fmt.Printf("Private key: %s\n", hex.EncodeToString(keyPair.Private().Serialize()))
	fmt.Printf("Address:     %s\n", addr.String())
	return nil
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	if identityKeyHex == "" {
		return fmt.Errorf("--key is required")
	}
	raw, err := hex.DecodeString(identityKeyHex)
	if err != nil {
		return fmt.Errorf("decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	keyPair := identity.KeyPairFromPrivate(priv)
	addr := identity.AddressFromPublicKey(keyPair.PublicKey().ToECDSA())

	fmt.Printf("Address: %s\n", addr.String())
	return nil
}
