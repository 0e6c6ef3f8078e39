package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/internal/logger"
	"github.com/xmtp-go/core/internal/metrics"
	"github.com/xmtp-go/core/invitation"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/store"
	"github.com/xmtp-go/core/wire"
	"github.com/xmtp-go/core/xerrors"
)

// ContactDirectory resolves a peer's published key bundles. A real
// implementation queries a relay-backed contact topic or an on-chain
// registry; tests typically use a fixed in-memory map.
type ContactDirectory interface {
	LookupV1(ctx context.Context, addr identity.Address) (*identity.BundleV1, error)
	LookupV2(ctx context.Context, addr identity.Address) (*identity.BundleV2, error)
}

// Registry owns the topic->Conversation map for one participant: the only
// mutable shared state in this module. All accessors are safe for
// concurrent use; the protocol itself doesn't require parallelism, but
// exposing the registry across worker goroutines is supported.
type Registry struct {
	self         *identity.PrivateBundle
	selfAddress  identity.Address
	selfBundleV1 identity.BundleV1
	selfBundleV2 identity.BundleV2
	relay        relay.Client
	codecs       *codec.Registry
	contacts     ContactDirectory

	mu            sync.RWMutex
	sessions      map[string]Conversation // topic string -> Conversation
	contextIndex  map[string]string       // peerAddress|conversationID -> topic
	introduced    map[identity.Address]struct{}
	lastIntroSeen uint64
	lastInvSeen   uint64

	group singleflight.Group
}

// NewRegistry creates a Registry for the local participant identified by
// self, publishing as selfBundleV1/selfBundleV2.
func NewRegistry(self *identity.PrivateBundle, selfBundleV1 identity.BundleV1, selfBundleV2 identity.BundleV2, relayClient relay.Client, codecs *codec.Registry, contacts ContactDirectory) *Registry {
	return &Registry{
		self:         self,
		selfAddress:  self.Owner,
		selfBundleV1: selfBundleV1,
		selfBundleV2: selfBundleV2,
		relay:        relayClient,
		codecs:       codecs,
		contacts:     contacts,
		sessions:     make(map[string]Conversation),
		contextIndex: make(map[string]string),
		introduced:   make(map[identity.Address]struct{}),
	}
}

func (r *Registry) hasIntroduced(addr identity.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.introduced[addr]
	return ok
}

func (r *Registry) markIntroduced(addr identity.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.introduced[addr] = struct{}{}
}

func contextKey(peer identity.Address, ctx *invitation.Context) string {
	convID := ""
	if ctx != nil {
		convID = ctx.ConversationID
	}
	return peer.String() + "|" + convID
}

// add inserts conv into the map unless a session already exists at its
// topic, in which case the existing entry wins.
func (r *Registry) add(conv Conversation, ctxKey string) Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic := conv.Topic().String()
	if existing, ok := r.sessions[topic]; ok {
		return existing
	}
	r.sessions[topic] = conv
	if ctxKey != "" {
		r.contextIndex[ctxKey] = topic
	}
	metrics.RegistrySize.Set(float64(len(r.sessions)))
	return conv
}

func (r *Registry) lookupByContext(key string) (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.contextIndex[key]
	if !ok {
		return nil, false
	}
	conv, ok := r.sessions[topic]
	return conv, ok
}

// NewConversation resolves an existing session for (peer, ctx) or creates
// one. With no context and a peer that has published a v1 bundle, it
// reuses or creates a V1 session, even if the peer also has a v2 bundle. Otherwise it looks for a matching v2
// context and, failing that, derives a new V2 session deterministically and
// publishes a sealed invitation to both participants' invite channels.
// Concurrent calls for the same (peer, ctx) are deduplicated so only one
// actually creates and publishes.
func (r *Registry) NewConversation(ctx context.Context, peer identity.Address, convCtx *invitation.Context) (Conversation, error) {
	start := time.Now()
	defer func() {
		metrics.ConversationOperationDuration.WithLabelValues("new_conversation").Observe(time.Since(start).Seconds())
	}()

	key := contextKey(peer, convCtx)
	if conv, ok := r.lookupByContext(key); ok {
		return conv, nil
	}

	result, err, _ := r.group.Do(key, func() (interface{}, error) {
		if conv, ok := r.lookupByContext(key); ok {
			return conv, nil
		}
		return r.createConversation(ctx, peer, convCtx, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(Conversation), nil
}

func (r *Registry) createConversation(ctx context.Context, peer identity.Address, convCtx *invitation.Context, key string) (Conversation, error) {
	if convCtx == nil {
		v1Bundle, err := r.contacts.LookupV1(ctx, peer)
		if err == nil {
			conv := newV1WithBundle(r, *v1Bundle, time.Now())
			metrics.ConversationsCreated.WithLabelValues("v1", "success").Inc()
			return r.add(conv, key), nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			metrics.ConversationsCreated.WithLabelValues("v1", "failure").Inc()
			return nil, err
		}
	}

	peerV2, err := r.contacts.LookupV2(ctx, peer)
	if err != nil {
		metrics.ConversationsCreated.WithLabelValues("v2", "failure").Inc()
		return nil, err
	}

	effectiveCtx := invitation.Context{}
	if convCtx != nil {
		effectiveCtx = *convCtx
	}

	inv, err := invitation.NewDeterministicInvitation(r.self, r.selfBundleV2, *peerV2, effectiveCtx)
	if err != nil {
		metrics.ConversationsCreated.WithLabelValues("v2", "failure").Inc()
		return nil, err
	}

	if existing, ok := r.sessionByTopic(inv.Topic.String()); ok {
		return existing, nil
	}

	sealed, err := invitation.Seal(r.self, r.selfBundleV2, *peerV2, inv, uint64(time.Now().UnixNano()))
	if err != nil {
		metrics.ConversationsCreated.WithLabelValues("v2", "failure").Inc()
		return nil, err
	}
	sealedBytes := invitation.EncodeSealed(sealed)

	inviteEnvelopes := []wire.Envelope{
		wire.NewEnvelope(wire.InviteTopic(peer), sealedBytes),
		wire.NewEnvelope(wire.InviteTopic(r.selfAddress), sealedBytes),
	}
	err = r.relay.Publish(ctx, inviteEnvelopes)
	if err != nil {
		metrics.ConversationsCreated.WithLabelValues("v2", "failure").Inc()
		metrics.EnvelopesPublished.WithLabelValues(string(wire.KindInvite), "failure").Add(float64(len(inviteEnvelopes)))
		return nil, err
	}
	metrics.EnvelopesPublished.WithLabelValues(string(wire.KindInvite), "success").Add(float64(len(inviteEnvelopes)))

	conv := newV2(r, peer, inv, time.Now())
	metrics.ConversationsCreated.WithLabelValues("v2", "success").Inc()
	return r.add(conv, key), nil
}

func (r *Registry) sessionByTopic(topic string) (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.sessions[topic]
	return conv, ok
}

// FromIntro synchronously builds a V1 session from an intro envelope,
// recovering the peer's bundle from the message header. No network I/O is
// performed.
func (r *Registry) FromIntro(env wire.Envelope) (*V1, error) {
	msg, err := wire.DecodeMessageV1(env.Message)
	if err != nil {
		return nil, err
	}
	header, err := wire.DecodeHeaderV1(msg.HeaderBytes)
	if err != nil {
		return nil, err
	}
	peer := header.Sender
	if peer.Owner == r.selfAddress {
		peer = header.Recipient
	}
	return newV1WithBundle(r, peer, time.Unix(0, int64(env.TimestampNs))), nil
}

// FromInvite synchronously builds a V2 session from a sealed invitation
// envelope. No network I/O is performed.
func (r *Registry) FromInvite(env wire.Envelope) (*V2, error) {
	sealed, err := invitation.DecodeSealed(env.Message)
	if err != nil {
		return nil, err
	}
	inv, header, err := invitation.Open(r.self, sealed)
	if err != nil {
		return nil, err
	}
	peer := header.Sender.Owner
	if peer == r.selfAddress {
		peer = header.Recipient.Owner
	}
	return newV2(r, peer, inv, time.Unix(0, int64(env.TimestampNs))), nil
}

// ImportTopicData reconstructs a session from a previously persisted
// Record without any network I/O. A v1 session's peer bundle is resolved
// lazily, on first send; receiving needs no lookup because each message
// header carries the sender's bundle.
func (r *Registry) ImportTopicData(rec store.Record) (Conversation, error) {
	if rec.IsV2() {
		return newV2(r, rec.PeerAddress, rec.Invitation, time.Unix(0, int64(rec.CreatedNs))), nil
	}
	return newV1(r, rec.PeerAddress, time.Unix(0, int64(rec.CreatedNs))), nil
}

// List returns every known session sorted by CreatedAt strictly descending
// (ties broken by topic string ascending), merging in peers newly
// discovered via the intro and invite channels. Newly discovered sessions
// are added to the registry; an existing entry at the same topic is never
// replaced.
func (r *Registry) List(ctx context.Context) ([]Conversation, error) {
	start := time.Now()
	defer func() {
		metrics.ConversationOperationDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	}()

	if err := r.discoverIntros(ctx); err != nil {
		return nil, err
	}
	if err := r.discoverInvites(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]Conversation, 0, len(r.sessions))
	for _, conv := range r.sessions {
		out = append(out, conv)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt(), out[j].CreatedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Topic().String() < out[j].Topic().String()
	})
	return out, nil
}

func (r *Registry) discoverIntros(ctx context.Context) error {
	topic := wire.IntroTopic(r.selfAddress)
	r.mu.RLock()
	after := r.lastIntroSeen
	r.mu.RUnlock()
	resp, err := r.relay.Query(ctx, relay.QueryRequest{
		Topics: []string{topic.String()},
		Paging: relay.PageInfo{After: after},
	})
	if err != nil {
		return err
	}
	for _, env := range resp.Envelopes {
		conv, err := r.FromIntro(env)
		if err != nil {
			logger.Debugf("conversation: skipping malformed intro envelope: %v", err)
			metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
			continue
		}
		r.add(conv, contextKey(conv.PeerAddress(), nil))
		r.mu.Lock()
		if env.TimestampNs > r.lastIntroSeen {
			r.lastIntroSeen = env.TimestampNs
		}
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) discoverInvites(ctx context.Context) error {
	topic := wire.InviteTopic(r.selfAddress)
	r.mu.RLock()
	after := r.lastInvSeen
	r.mu.RUnlock()
	resp, err := r.relay.Query(ctx, relay.QueryRequest{
		Topics: []string{topic.String()},
		Paging: relay.PageInfo{After: after},
	})
	if err != nil {
		return err
	}
	for _, env := range resp.Envelopes {
		conv, err := r.FromInvite(env)
		if err != nil {
			logger.Debugf("conversation: skipping malformed invite envelope: %v", err)
			metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
			continue
		}
		r.add(conv, contextKey(conv.PeerAddress(), &conv.context))
		r.mu.Lock()
		if env.TimestampNs > r.lastInvSeen {
			r.lastInvSeen = env.TimestampNs
		}
		r.mu.Unlock()
	}
	return nil
}

// BatchQuery describes one topic's paged query for ListBatchMessages.
type BatchQuery struct {
	Topic  string
	Paging relay.PageInfo
}

// ListBatchMessages chunks reqs into groups of at most relay.MaxBatchSize,
// dispatches each chunk as one multiplexed relay call, and decodes every
// returned envelope via its owning session. Envelopes on topics with no
// known session are discarded with a debug log.
func (r *Registry) ListBatchMessages(ctx context.Context, reqs []BatchQuery) ([]DecodedMessage, error) {
	return r.listBatch(ctx, reqs, true)
}

// ListBatchDecryptedMessages is like ListBatchMessages but stops at the
// decrypted-plaintext stage: callers wanting raw bytes without running the
// content codec use this. Envelopes on a topic with no known session are
// dropped here too, with only a debug log, so callers needing complete
// delivery must call List first to populate the registry.
func (r *Registry) ListBatchDecryptedMessages(ctx context.Context, reqs []BatchQuery) ([]DecodedMessage, error) {
	return r.listBatch(ctx, reqs, false)
}

func (r *Registry) listBatch(ctx context.Context, reqs []BatchQuery, decode bool) ([]DecodedMessage, error) {
	var out []DecodedMessage
	for start := 0; start < len(reqs); start += relay.MaxBatchSize {
		end := start + relay.MaxBatchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		chunk := reqs[start:end]

		requests := make([]relay.QueryRequest, len(chunk))
		for i, c := range chunk {
			requests[i] = relay.QueryRequest{Topics: []string{c.Topic}, Paging: c.Paging}
		}
		responses, err := r.relay.BatchQuery(ctx, requests)
		if err != nil {
			return nil, err
		}

		for i, resp := range responses {
			topic := chunk[i].Topic
			conv, ok := r.sessionByTopic(topic)
			if !ok {
				logger.Debugf("conversation: discarding %d envelopes on unknown topic %s", len(resp.Envelopes), topic)
				metrics.EnvelopesDropped.WithLabelValues("unknown_topic").Add(float64(len(resp.Envelopes)))
				continue
			}
			for _, env := range resp.Envelopes {
				plaintext, err := conv.Decrypt(env)
				if err != nil {
					logger.Debugf("conversation: skipping undecryptable envelope on %s: %v", topic, err)
					metrics.EnvelopesDropped.WithLabelValues("undecryptable").Inc()
					continue
				}
				if !decode {
					out = append(out, DecodedMessage{Topic: env.ContentTopic, TimestampNs: env.TimestampNs, SenderAddress: conv.PeerAddress(), Content: plaintext})
					continue
				}
				msg, err := conv.Decode(env, plaintext)
				if err != nil {
					logger.Debugf("conversation: skipping undecodable envelope on %s: %v", topic, err)
					metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// Stream subscribes to the local participant's intro and invite channels
// and emits each newly discovered session exactly once. It returns when ctx
// is cancelled; cancellation is not reported as an error.
func (r *Registry) Stream(ctx context.Context) (<-chan Conversation, error) {
	topics := []string{wire.IntroTopic(r.selfAddress).String(), wire.InviteTopic(r.selfAddress).String()}
	envelopes, err := r.relay.Subscribe(ctx, topics)
	if err != nil {
		return nil, err
	}

	out := make(chan Conversation, 16)
	go func() {
		defer close(out)
		seen := make(map[string]struct{})
		for env := range envelopes {
			conv, err := r.classifyDiscovery(env)
			if err != nil {
				logger.Debugf("conversation: skipping malformed discovery envelope: %v", err)
				continue
			}
			topic := conv.Topic().String()
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			r.add(conv, "")
			select {
			case out <- conv:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *Registry) classifyDiscovery(env wire.Envelope) (Conversation, error) {
	topic, err := wire.Parse(env.ContentTopic)
	if err != nil {
		return nil, err
	}
	switch topic.Kind() {
	case wire.KindIntro:
		return r.FromIntro(env)
	case wire.KindInvite:
		return r.FromInvite(env)
	default:
		return nil, fmt.Errorf("%w: unexpected discovery topic kind %q", xerrors.ErrInvalidArgument, topic.Kind())
	}
}

// StreamAllMessages subscribes to introductions, invitations, and every
// currently known conversation topic. On a new intro/invite it constructs
// the session, adds its topic to the live subscription set, and the stream
// re-scopes to include it via Subscribe2. If the relay returns
// relay.ErrSubscribe2Unsupported, the stream is a single Subscribe over the
// topics known when it started and is not resubscribed: sessions discovered
// later are added to the registry, but messages on their topics are not
// received on this stream. Envelopes routed to existing sessions are
// decoded and emitted as DecodedMessage; discovery events are not emitted
// on this channel (use Stream for those).
func (r *Registry) StreamAllMessages(ctx context.Context) (<-chan DecodedMessage, error) {
	return r.streamAll(ctx, true)
}

// StreamAllDecryptedMessages mirrors StreamAllMessages but stops at the
// decrypted-plaintext stage.
func (r *Registry) StreamAllDecryptedMessages(ctx context.Context) (<-chan DecodedMessage, error) {
	return r.streamAll(ctx, false)
}

func (r *Registry) streamAll(ctx context.Context, decode bool) (<-chan DecodedMessage, error) {
	r.mu.RLock()
	initial := make([]string, 0, len(r.sessions)+2)
	initial = append(initial, wire.IntroTopic(r.selfAddress).String(), wire.InviteTopic(r.selfAddress).String())
	for topic := range r.sessions {
		initial = append(initial, topic)
	}
	r.mu.RUnlock()

	topicSet := relay.NewTopicSet(initial...)
	envelopes, err := r.relay.Subscribe2(ctx, topicSet)
	if errors.Is(err, relay.ErrSubscribe2Unsupported) {
		metrics.StreamReconnects.WithLabelValues("transport_error").Inc()
		envelopes, err = r.relay.Subscribe(ctx, topicSet.Snapshot())
	}
	if err != nil {
		return nil, err
	}

	out := make(chan DecodedMessage, 16)
	go func() {
		defer close(out)
		for env := range envelopes {
			r.routeStreamedEnvelope(ctx, env, topicSet, decode, out)
		}
	}()
	return out, nil
}

func (r *Registry) routeStreamedEnvelope(ctx context.Context, env wire.Envelope, topicSet *relay.TopicSet, decode bool, out chan<- DecodedMessage) {
	topic, err := wire.Parse(env.ContentTopic)
	if err != nil {
		logger.Debugf("conversation: skipping malformed topic %q: %v", env.ContentTopic, err)
		metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
		return
	}

	if topic.Kind() == wire.KindIntro || topic.Kind() == wire.KindInvite {
		conv, err := r.classifyDiscovery(env)
		if err != nil {
			logger.Debugf("conversation: skipping malformed discovery envelope: %v", err)
			metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
			return
		}
		r.add(conv, "")
		topicSet.Add(conv.Topic().String())
		metrics.StreamReconnects.WithLabelValues("topic_expansion").Inc()
		return
	}

	conv, ok := r.sessionByTopic(env.ContentTopic)
	if !ok {
		logger.Debugf("conversation: discarding envelope on unknown topic %s", env.ContentTopic)
		metrics.EnvelopesDropped.WithLabelValues("unknown_topic").Inc()
		return
	}

	plaintext, err := conv.Decrypt(env)
	if err != nil {
		logger.Debugf("conversation: skipping undecryptable envelope on %s: %v", env.ContentTopic, err)
		metrics.EnvelopesDropped.WithLabelValues("undecryptable").Inc()
		return
	}
	if !decode {
		select {
		case out <- DecodedMessage{Topic: env.ContentTopic, TimestampNs: env.TimestampNs, SenderAddress: conv.PeerAddress(), Content: plaintext}:
		case <-ctx.Done():
		}
		return
	}

	msg, err := conv.Decode(env, plaintext)
	if err != nil {
		logger.Debugf("conversation: skipping undecodable envelope on %s: %v", env.ContentTopic, err)
		metrics.EnvelopesDropped.WithLabelValues("undecodable").Inc()
		return
	}
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
