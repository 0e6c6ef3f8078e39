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

	"github.com/spf13/cobra"

	"github.com/xmtp-go/core/config"
	"github.com/xmtp-go/core/internal/metrics"
)

var serveConfigDir string
var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the metrics and health endpoints configured for this environment",
	Long: `serve loads configuration the same way a long-running agent embedding
this module would, then blocks serving on --addr whichever of the metrics
and health endpoints the configuration enables, at the paths it names.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", "config", "directory containing <env>.yaml/default.yaml/config.yaml")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9090", "address to serve /metrics and /healthz on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: serveConfigDir})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	fmt.Printf("serving metrics=%v(%s) health=%v(%s) on %s\n",
		cfg.Metrics.Enabled, cfg.Metrics.Path, cfg.Health.Enabled, cfg.Health.Path, serveAddr)
	return metrics.StartServer(serveAddr, cfg.Metrics.Enabled, cfg.Metrics.Path, cfg.Health.Enabled, cfg.Health.Path)
}
