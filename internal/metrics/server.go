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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP handler serving this package's Prometheus
// registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// HealthHandler returns a handler reporting liveness: 200 once called,
// since a client-side conversation registry has no deeper health signal of
// its own (no listener, no background workers that can wedge).
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// StartServer starts a standalone HTTP server exposing metricsPath (if
// metricsEnabled) and healthPath (if healthEnabled) on addr. It blocks
// until the server exits.
func StartServer(addr string, metricsEnabled bool, metricsPath string, healthEnabled bool, healthPath string) error {
	mux := http.NewServeMux()
	if metricsEnabled {
		mux.Handle(metricsPath, Handler())
	}
	if healthEnabled {
		mux.Handle(healthPath, HealthHandler())
	}
	return http.ListenAndServe(addr, mux)
}
