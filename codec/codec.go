// Package codec defines the pluggable content encoding contract and a
// process-wide registry of content-type codecs, mirroring the chain-registry
// pattern used elsewhere in this module for pluggable algorithm families.
package codec

import (
	"fmt"
	"sync"

	"github.com/xmtp-go/core/xerrors"
)

// ContentTypeId identifies a content encoding, analogous to a MIME type
// with an explicit major/minor version.
type ContentTypeId struct {
	AuthorityID  string
	TypeID       string
	VersionMajor uint32
	VersionMinor uint32
}

// String renders a ContentTypeId as "authority/type:major.minor".
func (c ContentTypeId) String() string {
	return fmt.Sprintf("%s/%s:%d.%d", c.AuthorityID, c.TypeID, c.VersionMajor, c.VersionMinor)
}

// EncodedContent is the codec-agnostic wire shape a Codec produces: the
// declared type, free-form parameters, opaque content bytes, and an
// optional plain-text fallback for clients that can't decode it.
type EncodedContent struct {
	Type       ContentTypeId
	Parameters map[string]string
	Content    []byte
	Fallback   string
}

// Codec encodes and decodes a single Go type T's wire representation. Each
// codec owns exactly one ContentTypeId.
type Codec interface {
	ContentType() ContentTypeId
	Encode(value interface{}) (EncodedContent, error)
	Decode(content EncodedContent) (interface{}, error)
}

// Registry is a process-wide mapping from ContentTypeId to Codec. A real
// deployment registers its codecs once at startup, before any send/receive
// call; this module treats that as a precondition rather than enforcing
// initialization order.
type Registry struct {
	mu     sync.RWMutex
	codecs map[ContentTypeId]Codec
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[ContentTypeId]Codec)}
}

// Register adds codec under its own ContentType, replacing any codec
// previously registered for the same type.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ContentType()] = c
}

// Lookup returns the codec registered for t, or xerrors.ErrInvalidArgument
// if no codec is registered.
func (r *Registry) Lookup(t ContentTypeId) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[t]
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for content type %s", xerrors.ErrInvalidArgument, t)
	}
	return c, nil
}

// Encode looks up the codec for t and encodes value with it.
func (r *Registry) Encode(t ContentTypeId, value interface{}) (EncodedContent, error) {
	c, err := r.Lookup(t)
	if err != nil {
		return EncodedContent{}, err
	}
	return c.Encode(value)
}

// Decode looks up the codec declared by content.Type and decodes it.
func (r *Registry) Decode(content EncodedContent) (interface{}, error) {
	c, err := r.Lookup(content.Type)
	if err != nil {
		return nil, err
	}
	return c.Decode(content)
}
