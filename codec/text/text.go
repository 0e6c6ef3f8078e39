// Package text is the reference content codec for plain UTF-8 message
// bodies, the simplest concrete Codec the registry can hold.
package text

import (
	"fmt"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/xerrors"
)

// ContentType is the text codec's content-type identifier.
var ContentType = codec.ContentTypeId{
	AuthorityID:  "xmtp.org",
	TypeID:       "text",
	VersionMajor: 1,
	VersionMinor: 0,
}

const encodingParam = "encoding"

// Codec encodes and decodes plain strings as UTF-8 bytes.
type Codec struct{}

// New returns a text Codec ready to register.
func New() Codec { return Codec{} }

// ContentType implements codec.Codec.
func (Codec) ContentType() codec.ContentTypeId { return ContentType }

// Encode implements codec.Codec. value must be a string.
func (Codec) Encode(value interface{}) (codec.EncodedContent, error) {
	s, ok := value.(string)
	if !ok {
		return codec.EncodedContent{}, fmt.Errorf("%w: text codec requires a string, got %T", xerrors.ErrInvalidArgument, value)
	}
	return codec.EncodedContent{
		Type:       ContentType,
		Parameters: map[string]string{encodingParam: "utf-8"},
		Content:    []byte(s),
		Fallback:   s,
	}, nil
}

// Decode implements codec.Codec.
func (Codec) Decode(content codec.EncodedContent) (interface{}, error) {
	return string(content.Content), nil
}
