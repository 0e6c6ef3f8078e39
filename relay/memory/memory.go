// Package memory is an in-process relay.Client used for tests and local
// development: envelopes live in a topic-keyed slice, and subscriptions are
// fanned out over channels with no network involved.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/wire"
)

// Relay is a relay.Client backed by an in-memory topic store, safe for
// concurrent use by multiple simulated participants in the same process.
type Relay struct {
	mu   sync.RWMutex
	logs map[string][]wire.Envelope

	subMu    sync.Mutex
	subs     []*subscription
	liveSubs []*liveSubscription
}

type subscription struct {
	topics map[string]struct{}
	ch     chan wire.Envelope
}

// New creates an empty Relay.
func New() *Relay {
	return &Relay{logs: make(map[string][]wire.Envelope)}
}

// Publish appends envelopes to their topic logs and fans them out to any
// live subscriptions whose topic set matches.
func (r *Relay) Publish(ctx context.Context, envelopes []wire.Envelope) error {
	r.mu.Lock()
	for _, e := range envelopes {
		r.logs[e.ContentTopic] = append(r.logs[e.ContentTopic], e)
	}
	r.mu.Unlock()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, sub := range r.subs {
		for _, e := range envelopes {
			if _, ok := sub.topics[e.ContentTopic]; ok {
				select {
				case sub.ch <- e:
				case <-ctx.Done():
				}
			}
		}
	}
	for _, sub := range r.liveSubs {
		live := sub.set.Snapshot()
		liveSet := make(map[string]struct{}, len(live))
		for _, t := range live {
			liveSet[t] = struct{}{}
		}
		for _, e := range envelopes {
			if _, ok := liveSet[e.ContentTopic]; ok {
				select {
				case sub.ch <- e:
				case <-ctx.Done():
				}
			}
		}
	}
	return nil
}

// Query returns the envelopes logged for req.Topics, applying req.Paging.
func (r *Relay) Query(ctx context.Context, req relay.QueryRequest) (relay.QueryResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []wire.Envelope
	for _, topic := range req.Topics {
		out = append(out, r.logs[topic]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampNs < out[j].TimestampNs })

	out = applyPaging(out, req.Paging)
	return relay.QueryResponse{Envelopes: out}, nil
}

func applyPaging(envelopes []wire.Envelope, p relay.PageInfo) []wire.Envelope {
	filtered := envelopes[:0:0]
	for _, e := range envelopes {
		if p.After != 0 && e.TimestampNs <= p.After {
			continue
		}
		if p.Before != 0 && e.TimestampNs >= p.Before {
			continue
		}
		filtered = append(filtered, e)
	}
	if p.Limit > 0 && len(filtered) > p.Limit {
		filtered = filtered[:p.Limit]
	}
	return filtered
}

// BatchQuery runs Query once per request, in order. The core is responsible
// for chunking to relay.MaxBatchSize before calling this.
func (r *Relay) BatchQuery(ctx context.Context, reqs []relay.QueryRequest) ([]relay.QueryResponse, error) {
	out := make([]relay.QueryResponse, len(reqs))
	for i, req := range reqs {
		resp, err := r.Query(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = resp
	}
	return out, nil
}

// Subscribe returns a channel of envelopes published to topics after the
// call, closed when ctx is done.
func (r *Relay) Subscribe(ctx context.Context, topics []string) (<-chan wire.Envelope, error) {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	sub := &subscription{topics: set, ch: make(chan wire.Envelope, 64)}

	r.subMu.Lock()
	r.subs = append(r.subs, sub)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeSub(sub)
		close(sub.ch)
	}()

	return sub.ch, nil
}

// Subscribe2 mirrors Subscribe but re-reads topics.Snapshot() on every
// Publish, so appending to the live TopicSet re-scopes the stream without
// tearing it down — this in-memory relay supports live re-scoping natively.
func (r *Relay) Subscribe2(ctx context.Context, topics *relay.TopicSet) (<-chan wire.Envelope, error) {
	ch := make(chan wire.Envelope, 64)
	sub := &liveSubscription{set: topics, ch: ch}

	r.subMu.Lock()
	r.liveSubs = append(r.liveSubs, sub)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeLiveSub(sub)
		close(ch)
	}()

	return ch, nil
}

func (r *Relay) removeSub(target *subscription) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for i, s := range r.subs {
		if s == target {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *Relay) removeLiveSub(target *liveSubscription) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for i, s := range r.liveSubs {
		if s == target {
			r.liveSubs = append(r.liveSubs[:i], r.liveSubs[i+1:]...)
			return
		}
	}
}

type liveSubscription struct {
	set *relay.TopicSet
	ch  chan wire.Envelope
}
