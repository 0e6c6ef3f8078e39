package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/internal/logger"
	"github.com/xmtp-go/core/internal/metrics"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/wire"
	"github.com/xmtp-go/core/xerrors"
)

// V1 is a direct-addressed session: every send recomputes the four-way
// combined ECDH secret from the sender and recipient's published bundles,
// with no persistent session key. The peer's bundle is resolved lazily (and
// cached) the first time it's actually needed, so a session reconstructed
// from persisted state (import_topic_data) performs no network I/O until a
// send or receive actually requires the bundle.
type V1 struct {
	topic       wire.Topic
	peerAddress identity.Address
	createdAt   time.Time
	reg         *Registry

	mu         sync.Mutex
	peerBundle *identity.BundleV1
}

func newV1(reg *Registry, peerAddress identity.Address, createdAt time.Time) *V1 {
	return &V1{
		topic:       wire.DMTopic(reg.selfAddress, peerAddress),
		peerAddress: peerAddress,
		createdAt:   createdAt,
		reg:         reg,
	}
}

// newV1WithBundle constructs a V1 whose peer bundle is already known (e.g.
// recovered from an intro envelope's header), avoiding a directory lookup.
func newV1WithBundle(reg *Registry, bundle identity.BundleV1, createdAt time.Time) *V1 {
	v := newV1(reg, bundle.Owner, createdAt)
	v.peerBundle = &bundle
	return v
}

// Topic implements Conversation.
func (v *V1) Topic() wire.Topic { return v.topic }

// PeerAddress implements Conversation.
func (v *V1) PeerAddress() identity.Address { return v.peerAddress }

// CreatedAt implements Conversation.
func (v *V1) CreatedAt() time.Time { return v.createdAt }

func (v *V1) resolvePeerBundle(ctx context.Context) (identity.BundleV1, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.peerBundle != nil {
		return *v.peerBundle, nil
	}
	bundle, err := v.reg.contacts.LookupV1(ctx, v.peerAddress)
	if err != nil {
		return identity.BundleV1{}, err
	}
	v.peerBundle = bundle
	return *bundle, nil
}

// Send implements Conversation. It requires the peer bundle to carry a
// valid identity signature, seals a MessageV1, publishes it on the dm
// topic, and — the first time this peer is messaged — duplicates the
// publication onto both participants' intro channels.
func (v *V1) Send(ctx context.Context, contentType codec.ContentTypeId, value interface{}, opts SendOptions) error {
	peerBundle, err := v.resolvePeerBundle(ctx)
	if err != nil {
		return err
	}
	if err := peerBundle.Verify(); err != nil {
		return fmt.Errorf("%w: peer bundle failed verification", xerrors.ErrAuthFailure)
	}

	encoded, err := v.reg.codecs.Encode(contentType, value)
	if err != nil {
		return err
	}
	plaintext, err := encodeContent(encoded, opts.Compression)
	if err != nil {
		return err
	}

	msg, err := wire.SealMessageV1(v.reg.self, v.reg.selfBundleV1, peerBundle, plaintext, uint64(time.Now().UnixNano()))
	if err != nil {
		return err
	}

	metrics.ConversationMessageSize.WithLabelValues("outbound").Observe(float64(len(plaintext)))

	envelope := wire.NewEnvelope(v.topic, wire.EncodeMessageV1(msg))
	toPublish := []wire.Envelope{envelope}

	if !v.reg.hasIntroduced(v.peerAddress) {
		toPublish = append(toPublish,
			wire.NewEnvelope(wire.IntroTopic(v.reg.selfAddress), wire.EncodeMessageV1(msg)),
			wire.NewEnvelope(wire.IntroTopic(v.peerAddress), wire.EncodeMessageV1(msg)),
		)
	}

	start := time.Now()
	if err := v.reg.relay.Publish(ctx, toPublish); err != nil {
		metrics.EnvelopesPublished.WithLabelValues(string(wire.KindDM), "failure").Add(float64(len(toPublish)))
		return err
	}
	metrics.EnvelopesPublished.WithLabelValues(string(wire.KindDM), "success").Add(float64(len(toPublish)))
	metrics.ConversationOperationDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
	v.reg.markIntroduced(v.peerAddress)
	return nil
}

// Messages implements Conversation: query the dm topic and decode every
// envelope, skipping (and logging) ones that fail to decrypt.
func (v *V1) Messages(ctx context.Context, opts QueryOptions) ([]DecodedMessage, error) {
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
			logger.Debugf("conversation: skipping undecryptable v1 envelope on %s: %v", v.topic.String(), err)
			continue
		}
		msg, err := v.Decode(env, plaintext)
		if err != nil {
			logger.Debugf("conversation: skipping undecodable v1 envelope on %s: %v", v.topic.String(), err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Decrypt implements Conversation: recompute the four-way ECDH secret from
// the header's claimed bundles and open the sealed payload.
func (v *V1) Decrypt(env wire.Envelope) ([]byte, error) {
	msg, err := wire.DecodeMessageV1(env.Message)
	if err != nil {
		return nil, err
	}
	plaintext, _, err := wire.OpenMessageV1(v.reg.self, v.reg.selfAddress, msg)
	if err != nil {
		return nil, err
	}
	metrics.ConversationMessageSize.WithLabelValues("inbound").Observe(float64(len(plaintext)))
	return plaintext, nil
}

// Decode implements Conversation.
func (v *V1) Decode(env wire.Envelope, plaintext []byte) (DecodedMessage, error) {
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
