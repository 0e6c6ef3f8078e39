package conversation

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
)

// compress and decompress implement the two compression variants
// SendOptions can declare. Both flate and gzip come from the standard
// library: no example repo in the corpus pulls in a third-party general-
// purpose compression codec, and stdlib's is the idiomatic choice here.
func compress(kind CompressionKind, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch kind {
	case CompressionDeflate:
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("conversation: new deflate writer: %w", err)
		}
		w = fw
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("conversation: unknown compression kind %q", kind)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("conversation: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("conversation: compress close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(kind CompressionKind, data []byte) ([]byte, error) {
	var r io.ReadCloser
	switch kind {
	case CompressionDeflate:
		r = flate.NewReader(bytes.NewReader(data))
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("conversation: new gzip reader: %w", err)
		}
		r = gr
	default:
		return nil, fmt.Errorf("conversation: unknown compression kind %q", kind)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("conversation: decompress: %w", err)
	}
	return out, nil
}
