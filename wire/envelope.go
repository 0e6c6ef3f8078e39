// Package wire defines the relay's atomic unit (Envelope), the topic naming
// grammar, and the two sealed-message wire formats (v1 direct-addressed and
// v2 session-based).
package wire

import "time"

// Envelope is the atomic unit exchanged with the relay: a topic, a
// timestamp in nanoseconds, and an opaque payload.
type Envelope struct {
	ContentTopic string
	TimestampNs  uint64
	Message      []byte
}

// NewEnvelope builds an envelope stamped with the current time.
func NewEnvelope(topic Topic, message []byte) Envelope {
	return Envelope{
		ContentTopic: topic.String(),
		TimestampNs:  uint64(time.Now().UnixNano()),
		Message:      message,
	}
}
