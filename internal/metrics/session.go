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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversationsCreated tracks conversations created, by kind and outcome.
	ConversationsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "created_total",
			Help:      "Total number of conversations created",
		},
		[]string{"kind", "status"}, // v1/v2, success/failure
	)

	// RegistrySize tracks the number of sessions currently held by a
	// registry.
	RegistrySize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "registry_size",
			Help:      "Number of conversations currently tracked by the registry",
		},
	)

	// StreamReconnects tracks stream resubscriptions, e.g. after a topic
	// set expansion or a transport error.
	StreamReconnects = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "stream_reconnects_total",
			Help:      "Total number of stream resubscriptions",
		},
		[]string{"reason"}, // topic_expansion, transport_error
	)

	// ConversationOperationDuration tracks registry operation durations.
	ConversationOperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "operation_duration_seconds",
			Help:      "Conversation operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
		[]string{"operation"}, // new_conversation, list, send
	)

	// ConversationMessageSize tracks message sizes handled by conversations.
	ConversationMessageSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "message_size_bytes",
			Help:      "Size of messages processed by conversations",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
		[]string{"direction"}, // inbound, outbound
	)
)
