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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "xmtpctl",
	Short: "xmtpctl - identity, key bundle, and conversation inspection CLI",
	Long: `xmtpctl provides local tooling for the messaging core: generating wallet
identities, publishing key bundles, and inspecting conversations against a
relay endpoint.

This tool supports:
- Wallet identity generation (secp256k1)
- v1/v2 key bundle publication
- Conversation registry listing against a running relay`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Commands are registered in their respective files:
	// - identity.go: identityCmd (generate, show)
	// - bundle.go: bundleCmd (publish-v1, publish-v2)
	// - conversation.go: conversationCmd (list)
	// - serve.go: serveCmd (metrics/health endpoints)
}
