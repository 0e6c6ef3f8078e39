// Package conversation implements the per-peer cryptographic sessions (v1
// direct-addressed, v2 invitation-based) and the registry that multiplexes
// them over a topic-addressed relay.
package conversation

import (
	"context"
	"time"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/wire"
)

// DecodedMessage is a fully decoded, decrypted message as returned from
// Messages or a stream.
type DecodedMessage struct {
	Topic         string
	SenderAddress identity.Address
	TimestampNs   uint64
	ContentType   codec.ContentTypeId
	Content       interface{}
}

// SendOptions controls optional per-message behavior.
type SendOptions struct {
	Compression   CompressionKind
	ShouldPush    bool   // v2 only; ignored by v1
	ParentMessage string // v2 only; ignored by v1
}

// QueryOptions bounds a Messages() call. Per the source behavior being
// treated as a bug (see DESIGN.md open-question log), these are forwarded
// to the underlying relay query rather than silently ignored.
type QueryOptions struct {
	Limit  int
	Before uint64
	After  uint64
}

// Conversation is the shared operation set both session variants implement.
// The registry dispatches to the appropriate implementation at its
// boundary; callers holding a Conversation don't need to know which kind it
// is.
type Conversation interface {
	Topic() wire.Topic
	PeerAddress() identity.Address
	CreatedAt() time.Time

	// Send encodes value with the registered codec for contentType, seals
	// it, and publishes it (plus any side-effect envelopes, e.g. v1
	// introductions).
	Send(ctx context.Context, contentType codec.ContentTypeId, value interface{}, opts SendOptions) error

	// Messages queries the relay for this conversation's topic and returns
	// fully decoded, decrypted messages.
	Messages(ctx context.Context, opts QueryOptions) ([]DecodedMessage, error)

	// Decrypt unseals env's payload without decoding its content, returning
	// the raw codec wire bytes.
	Decrypt(env wire.Envelope) ([]byte, error)

	// Decode parses decrypted content bytes into a DecodedMessage using the
	// registered codec declared within.
	Decode(env wire.Envelope, plaintext []byte) (DecodedMessage, error)
}
