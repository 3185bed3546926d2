package compress

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// Compressor compresses byte arrays.
type Compressor interface {
	Compress(b []byte) ([]byte, error)
}

// Decompressor is a fast, single threaded decompressor.
type Decompressor interface {
	// Decompress decompresses the byte array
	Decompress(b []byte) ([]byte, error)
}

// NoOpCompressor is a Compressor that does nothing.  Useful for tests.
type NoOpCompressor struct{}

func (c *NoOpCompressor) Compress(b []byte) ([]byte, error) {
	return b, nil
}

// NoOpDecompressor is a Decompressor that does nothing.  Useful for tests.
type NoOpDecompressor struct{}

func (c *NoOpDecompressor) Decompress(b []byte) ([]byte, error) {
	return b, nil
}

// ZlibCompressor compresses to zlib at a fixed level.
type ZlibCompressor struct {
	level int
}

func NewZlibCompressor(level int) (*ZlibCompressor, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, errors.Errorf("invalid zlib compression level %d", level)
	}
	return &ZlibCompressor{level: level}, nil
}

func (c *ZlibCompressor) Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// ZlibDecompressor decompresses zlib. Safe for concurrent use: every call gets its own reader.
type ZlibDecompressor struct{}

func NewZlibDecompressor() *ZlibDecompressor {
	return &ZlibDecompressor{}
}

func (d *ZlibDecompressor) Decompress(b []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer reader.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, reader); err != nil {
		return nil, errors.WithStack(err)
	}
	return out.Bytes(), nil
}

// TextCodec stores compressed payloads in text columns: compress, then base64.
type TextCodec struct {
	compressor   Compressor
	decompressor Decompressor
}

func NewTextCodec(compressor Compressor, decompressor Decompressor) *TextCodec {
	return &TextCodec{compressor: compressor, decompressor: decompressor}
}

// NewZlibTextCodec returns a TextCodec using zlib at the default compression level.
func NewZlibTextCodec() *TextCodec {
	compressor, _ := NewZlibCompressor(zlib.DefaultCompression)
	return NewTextCodec(compressor, NewZlibDecompressor())
}

func (c *TextCodec) Encode(s string) (string, error) {
	compressed, err := c.compressor.Compress([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func (c *TextCodec) Decode(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", errors.WithStack(err)
	}
	decompressed, err := c.decompressor.Decompress(raw)
	if err != nil {
		return "", err
	}
	return string(decompressed), nil
}
