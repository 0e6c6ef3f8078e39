// Package wsrelay is a gorilla/websocket-backed reference implementation of
// relay.Client: a single persistent connection multiplexes query, batch
// query, publish, and subscribe traffic as JSON frames.
package wsrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xmtp-go/core/internal/logger"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/wire"
	"github.com/xmtp-go/core/xerrors"
)

// Client is a relay.Client that speaks a JSON framing over one WebSocket
// connection. It is a reference transport for testing against a real relay
// server; production deployments may prefer a generated gRPC client against
// the same contract.
type Client struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan frame

	subMu sync.Mutex
	subs  map[string]chan wire.Envelope
}

// New creates a client for the given WebSocket URL. Connect must be called
// before use.
func New(url string) *Client {
	return &Client{
		url:          url,
		dialTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
		pending:      make(map[string]chan frame),
		subs:         make(map[string]chan wire.Envelope),
	}
}

type frameKind string

const (
	kindQuery      frameKind = "query"
	kindBatchQuery frameKind = "batch_query"
	kindPublish    frameKind = "publish"
	kindSubscribe  frameKind = "subscribe"
	kindResult     frameKind = "result"
	kindEnvelope   frameKind = "envelope"
)

type frame struct {
	Kind      frameKind         `json:"kind"`
	ID        string            `json:"id"`
	Topics    []string          `json:"topics,omitempty"`
	Requests  []relay.QueryRequest `json:"requests,omitempty"`
	Envelopes []wire.Envelope   `json:"envelopes,omitempty"`
	Responses []relay.QueryResponse `json:"responses,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Connect dials the relay server and starts the background reader.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("wsrelay: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("%w: wsrelay dial failed: %v", xerrors.ErrTransport, err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			logger.Warnf("wsrelay: read loop ended: %v", err)
			c.closeAllSubs()
			return
		}
		switch f.Kind {
		case kindResult:
			c.pendingMu.Lock()
			ch, ok := c.pending[f.ID]
			c.pendingMu.Unlock()
			if ok {
				ch <- f
			}
		case kindEnvelope:
			c.subMu.Lock()
			ch, ok := c.subs[f.ID]
			c.subMu.Unlock()
			if ok {
				for _, e := range f.Envelopes {
					ch <- e
				}
			}
		}
	}
}

func (c *Client) closeAllSubs() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Client) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%w: wsrelay not connected", xerrors.ErrTransport)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrTransport, err)
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrTransport, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, f frame) (frame, error) {
	respCh := make(chan frame, 1)
	c.pendingMu.Lock()
	c.pending[f.ID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case resp := <-respCh:
		if resp.Error != "" {
			return frame{}, fmt.Errorf("%w: %s", xerrors.ErrTransport, resp.Error)
		}
		return resp, nil
	}
}

// Query implements relay.Client.
func (c *Client) Query(ctx context.Context, req relay.QueryRequest) (relay.QueryResponse, error) {
	resp, err := c.roundTrip(ctx, frame{Kind: kindQuery, ID: uuid.NewString(), Topics: req.Topics, Requests: []relay.QueryRequest{req}})
	if err != nil {
		return relay.QueryResponse{}, err
	}
	if len(resp.Responses) != 1 {
		return relay.QueryResponse{Envelopes: resp.Envelopes}, nil
	}
	return resp.Responses[0], nil
}

// BatchQuery implements relay.Client. reqs must not exceed relay.MaxBatchSize;
// the conversation registry is responsible for chunking.
func (c *Client) BatchQuery(ctx context.Context, reqs []relay.QueryRequest) ([]relay.QueryResponse, error) {
	if len(reqs) > relay.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds max %d", xerrors.ErrInvalidArgument, len(reqs), relay.MaxBatchSize)
	}
	resp, err := c.roundTrip(ctx, frame{Kind: kindBatchQuery, ID: uuid.NewString(), Requests: reqs})
	if err != nil {
		return nil, err
	}
	return resp.Responses, nil
}

// Publish implements relay.Client.
func (c *Client) Publish(ctx context.Context, envelopes []wire.Envelope) error {
	_, err := c.roundTrip(ctx, frame{Kind: kindPublish, ID: uuid.NewString(), Envelopes: envelopes})
	return err
}

// Subscribe implements relay.Client with a fixed topic set.
func (c *Client) Subscribe(ctx context.Context, topics []string) (<-chan wire.Envelope, error) {
	id := uuid.NewString()
	ch := make(chan wire.Envelope, 64)

	c.subMu.Lock()
	c.subs[id] = ch
	c.subMu.Unlock()

	if err := c.send(frame{Kind: kindSubscribe, ID: id, Topics: topics}); err != nil {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}()

	return ch, nil
}

// Subscribe2 is unsupported by this reference transport: the wire framing
// here has no server-side notion of a mutable topic set. Callers receive
// relay.ErrSubscribe2Unsupported and can fall back to Subscribe.
func (c *Client) Subscribe2(ctx context.Context, topics *relay.TopicSet) (<-chan wire.Envelope, error) {
	return nil, relay.ErrSubscribe2Unsupported
}

// Close tears down the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
