package conversation

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/xmtp-go/core/codec"
)

// CompressionKind names an optional transport compression applied to an
// EncodedContent's bytes before sealing.
type CompressionKind string

const (
	CompressionNone    CompressionKind = ""
	CompressionDeflate CompressionKind = "deflate"
	CompressionGzip    CompressionKind = "gzip"
)

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

func readLP(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("conversation: truncated field")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("conversation: truncated field body")
	}
	return data[:n], data[n:], nil
}

// encodeContent serializes an EncodedContent plus the compression kind
// applied to its Content, so the receiver knows how to invert it before
// handing bytes to the codec.
func encodeContent(c codec.EncodedContent, compression CompressionKind) ([]byte, error) {
	content := c.Content
	if compression != CompressionNone {
		compressed, err := compress(compression, content)
		if err != nil {
			return nil, err
		}
		content = compressed
	}

	out := appendLP(nil, []byte(compression))
	out = appendLP(out, []byte(c.Type.AuthorityID))
	out = appendLP(out, []byte(c.Type.TypeID))
	out = append(out, uint32Bytes(c.Type.VersionMajor)...)
	out = append(out, uint32Bytes(c.Type.VersionMinor)...)
	out = appendLP(out, []byte(c.Fallback))

	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out = append(out, uint32Bytes(uint32(len(keys)))...)
	for _, k := range keys {
		out = appendLP(out, []byte(k))
		out = appendLP(out, []byte(c.Parameters[k]))
	}

	out = appendLP(out, content)
	return out, nil
}

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// decodeContent is the inverse of encodeContent, decompressing Content
// before returning it.
func decodeContent(data []byte) (codec.EncodedContent, error) {
	var c codec.EncodedContent

	compressionBytes, rest, err := readLP(data)
	if err != nil {
		return c, err
	}
	authority, rest, err := readLP(rest)
	if err != nil {
		return c, err
	}
	typeID, rest, err := readLP(rest)
	if err != nil {
		return c, err
	}
	if len(rest) < 8 {
		return c, fmt.Errorf("conversation: truncated content type version")
	}
	major := binary.BigEndian.Uint32(rest[:4])
	minor := binary.BigEndian.Uint32(rest[4:8])
	rest = rest[8:]

	fallback, rest, err := readLP(rest)
	if err != nil {
		return c, err
	}

	if len(rest) < 4 {
		return c, fmt.Errorf("conversation: truncated parameter count")
	}
	count := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	params := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		k, r, err := readLP(rest)
		if err != nil {
			return c, err
		}
		v, r2, err := readLP(r)
		if err != nil {
			return c, err
		}
		params[string(k)] = string(v)
		rest = r2
	}

	contentBytes, rest, err := readLP(rest)
	if err != nil {
		return c, err
	}
	if len(rest) != 0 {
		return c, fmt.Errorf("conversation: trailing bytes after content")
	}

	compression := CompressionKind(compressionBytes)
	if compression != CompressionNone {
		decompressed, err := decompress(compression, contentBytes)
		if err != nil {
			return c, err
		}
		contentBytes = decompressed
	}

	c.Type = codec.ContentTypeId{
		AuthorityID:  string(authority),
		TypeID:       string(typeID),
		VersionMajor: major,
		VersionMinor: minor,
	}
	c.Fallback = string(fallback)
	c.Parameters = params
	c.Content = contentBytes
	return c, nil
}
