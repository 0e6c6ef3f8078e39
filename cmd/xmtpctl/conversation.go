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
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/codec/text"
	"github.com/xmtp-go/core/conversation"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/relay/wsrelay"
	"github.com/xmtp-go/core/xerrors"
)

var (
	conversationRelayURL string
	conversationWalletKey string
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Inspect conversations against a relay endpoint",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known conversations (existing sessions plus intro/invite discovery)",
	Example: `  xmtpctl conversation list --relay ws://localhost:8080/ws --wallet-key 1f2e3d...`,
	RunE: runConversationList,
}

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationListCmd)

	conversationListCmd.Flags().StringVar(&conversationRelayURL, "relay", "", "relay websocket URL (required)")
	conversationListCmd.Flags().StringVar(&conversationWalletKey, "wallet-key", "", "hex-encoded wallet private key (required)")
}

// unresolvedDirectory reports every lookup as unresolved. The CLI has no
// directory service of its own; it lists whatever the registry can derive
// from intro/invite discovery and prior imports without one.
type unresolvedDirectory struct{}

func (unresolvedDirectory) LookupV1(ctx context.Context, addr identity.Address) (*identity.BundleV1, error) {
	return nil, fmt.Errorf("%w: no contact directory configured", xerrors.ErrNotFound)
}

func (unresolvedDirectory) LookupV2(ctx context.Context, addr identity.Address) (*identity.BundleV2, error) {
	return nil, fmt.Errorf("%w: no contact directory configured", xerrors.ErrNotFound)
}

func runConversationList(cmd *cobra.Command, args []string) error {
	if conversationRelayURL == "" || conversationWalletKey == "" {
		return fmt.Errorf("--relay and --wallet-key are required")
	}
	raw, err := hex.DecodeString(conversationWalletKey)
	if err != nil {
		return fmt.Errorf("decode wallet key: %w", err)
	}
	wallet := identity.KeyPairFromPrivate(secp256k1.PrivKeyFromBytes(raw))
	owner := identity.AddressFromPublicKey(wallet.PublicKey().ToECDSA())

	priv, err := identity.NewPrivateBundle(owner)
	if err != nil {
		return fmt.Errorf("create private bundle: %w", err)
	}
	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }

	bundleV1, err := identity.PublishBundleV1(priv, sign)
	if err != nil {
		return fmt.Errorf("publish v1 bundle: %w", err)
	}
	bundleV2, err := identity.PublishBundleV2(priv, sign, time.Now())
	if err != nil {
		return fmt.Errorf("publish v2 bundle: %w", err)
	}

	client := wsrelay.New(conversationRelayURL)
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer client.Close()

	codecs := codec.NewRegistry()
	codecs.Register(text.New())

	reg := conversation.NewRegistry(priv, *bundleV1, *bundleV2, client, codecs, unresolvedDirectory{})

	conversations, err := reg.List(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}
	for _, conv := range conversations {
		fmt.Printf("%s\tpeer=%s\tcreated=%s\n", conv.Topic().String(), conv.PeerAddress().String(), conv.CreatedAt().Format(time.RFC3339))
	}
	return nil
}
