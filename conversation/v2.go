package conversation

import (
	"context"
	"time"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/internal/logger"
	"github.com/xmtp-go/core/internal/metrics"
	"github.com/xmtp-go/core/invitation"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/wire"
)

// V2 is an invitation-based session: both sides hold the same key_material
// and topic, derived once at session creation, so per-message sealing never
// performs ECDH.
type V2 struct {
	topic       wire.Topic
	peerAddress identity.Address
	createdAt   time.Time
	keyMaterial [32]byte
	context     invitation.Context
	reg         *Registry
}

func newV2(reg *Registry, peerAddress identity.Address, inv *invitation.InvitationV1, createdAt time.Time) *V2 {
	return &V2{
		topic:       inv.Topic,
		peerAddress: peerAddress,
		createdAt:   createdAt,
		keyMaterial: inv.KeyMaterial,
		context:     inv.Context,
		reg:         reg,
	}
}

// Topic implements Conversation.
func (v *V2) Topic() wire.Topic { return v.topic }

// PeerAddress implements Conversation.
func (v *V2) PeerAddress() identity.Address { return v.peerAddress }

// CreatedAt implements Conversation.
func (v *V2) CreatedAt() time.Time { return v.createdAt }

// Send implements Conversation: encode, optionally compress, seal with the
// session's key_material, and publish on the session topic.
func (v *V2) Send(ctx context.Context, contentType codec.ContentTypeId, value interface{}, opts SendOptions) error {
	encoded, err := v.reg.codecs.Encode(contentType, value)
	if err != nil {
		return err
	}
	plaintext, err := encodeContent(encoded, opts.Compression)
	if err != nil {
		return err
	}

	msg, err := wire.SealMessageV2(v.keyMaterial[:], v.reg.selfBundleV2, opts.ParentMessage, plaintext, uint64(time.Now().UnixNano()), opts.ShouldPush)
	if err != nil {
		return err
	}
	metrics.ConversationMessageSize.WithLabelValues("outbound").Observe(float64(len(plaintext)))

	start := time.Now()
	envelope := wire.NewEnvelope(v.topic, wire.EncodeMessageV2(msg))
	if err := v.reg.relay.Publish(ctx, []wire.Envelope{envelope}); err != nil {
		metrics.EnvelopesPublished.WithLabelValues(string(wire.KindV2), "failure").Inc()
		return err
	}
	metrics.EnvelopesPublished.WithLabelValues(string(wire.KindV2), "success").Inc()
	metrics.ConversationOperationDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
	return nil
}

// Messages implements Conversation.
func (v *V2) Messages(ctx context.Context, opts QueryOptions) ([]DecodedMessage, error) {
	resp, err := v.reg.relay.Query(ctx, relay.QueryRequest{
		Topics: []string{v.topic.String()},
		Paging: relay.PageInfo{Limit: opts.Limit, Before: opts.Before, After: opts.After},
	})
	if err != nil {
		return nil, err
	}

	var out []DecodedMessage
	for _, env := range resp.Envelopes {
		plaintext, err := v.Decrypt(env)
		if err != nil {
			logger.Debugf("conversation: skipping undecryptable v2 envelope on %s: %v", v.topic.String(), err)
			continue
		}
		msg, err := v.Decode(env, plaintext)
		if err != nil {
			logger.Debugf("conversation: skipping undecodable v2 envelope on %s: %v", v.topic.String(), err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Decrypt implements Conversation using the session's key_material; no
// per-message ECDH is performed.
func (v *V2) Decrypt(env wire.Envelope) ([]byte, error) {
	msg, err := wire.DecodeMessageV2(env.Message)
	if err != nil {
		return nil, err
	}
	plaintext, _, err := wire.OpenMessageV2(v.keyMaterial[:], msg)
	if err != nil {
		return nil, err
	}
	metrics.ConversationMessageSize.WithLabelValues("inbound").Observe(float64(len(plaintext)))
	return plaintext, nil
}

// Decode implements Conversation.
func (v *V2) Decode(env wire.Envelope, plaintext []byte) (DecodedMessage, error) {
	content, err := decodeContent(plaintext)
	if err != nil {
		return DecodedMessage{}, err
	}
	value, err := v.reg.codecs.Decode(content)
	if err != nil {
		return DecodedMessage{}, err
	}
	return DecodedMessage{
		Topic:         env.ContentTopic,
		SenderAddress: v.peerAddress,
		TimestampNs:   env.TimestampNs,
		ContentType:   content.Type,
		Content:       value,
	}, nil
}
