// Package codec detects the compressed container a replay was written in and
// streams it back to plain bytes.
package codec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec describes a streaming compressed container that replay files may arrive in.
type Codec interface {
	//1.- Name returns the identifier used in logs and file naming.
	Name() string
	//2.- Detect reports whether the leading bytes carry the container's magic number.
	Detect(head []byte) bool
	//3.- NewReader wraps r with a streaming decompressor.
	NewReader(r io.Reader) (io.ReadCloser, error)
	//4.- NewWriter wraps w with a streaming compressor.
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

var (
	// ErrEmpty is returned when there is nothing to decompress.
	ErrEmpty = errors.New("codec: empty input")
	// ErrTooLarge is returned when the decompressed payload exceeds the configured limit.
	ErrTooLarge = errors.New("codec: decompressed payload exceeds limit")
	// ErrUnknownCodec is returned by ByName for unregistered names.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic   = []byte{0x1f, 0x8b}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
	lz4Magic    = []byte{0x04, 0x22, 0x4d, 0x18}
)

// headLen covers the longest magic number among the registered containers.
const headLen = 10

type zstdCodec struct{}

// NewZstd returns the Zstandard codec, the native container for compressed replays.
func NewZstd() Codec { return zstdCodec{} }

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Detect(head []byte) bool { return bytes.HasPrefix(head, zstdMagic) }

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return dec.IOReadCloser(), nil
}

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return enc, nil
}

type gzipCodec struct{}

// NewGzip returns the gzip codec.
func NewGzip() Codec { return gzipCodec{} }

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Detect(head []byte) bool { return bytes.HasPrefix(head, gzipMagic) }

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return reader, nil
}

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

type snappyCodec struct{}

// NewSnappy returns the framed snappy codec.
func NewSnappy() Codec { return snappyCodec{} }

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Detect(head []byte) bool { return bytes.HasPrefix(head, snappyMagic) }

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

type lz4Codec struct{}

// NewLZ4 returns the lz4 frame codec.
func NewLZ4() Codec { return lz4Codec{} }

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Detect(head []byte) bool { return bytes.HasPrefix(head, lz4Magic) }

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

// registry lists codecs in detection order; zstd doubles as the fallback.
var registry = []Codec{NewZstd(), NewGzip(), NewSnappy(), NewLZ4()}

// All returns the registered codecs in detection order.
func All() []Codec {
	out := make([]Codec, len(registry))
	copy(out, registry)
	return out
}

// ByName resolves a registered codec by its identifier.
func ByName(name string) (Codec, error) {
	for _, c := range registry {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// Detect picks the codec whose magic number prefixes head. Unrecognised input
// falls back to zstd because replays from the game engine carry no other container.
func Detect(head []byte) Codec {
	for _, c := range registry {
		if c.Detect(head) {
			return c
		}
	}
	return registry[0]
}

// Decompress streams r through the detected codec into memory. A limit of
// zero or less disables the size check.
func Decompress(ctx context.Context, r io.Reader, limit int64) ([]byte, Codec, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(headLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, fmt.Errorf("peek container header: %w", err)
	}
	if len(head) == 0 {
		return nil, nil, ErrEmpty
	}

	//1.- Select the container by magic number before building the decoder.
	c := Detect(head)
	reader, err := c.NewReader(buffered)
	if err != nil {
		return nil, c, err
	}
	defer reader.Close()

	//2.- Copy through a context-aware reader so shutdown can abandon long decodes.
	var src io.Reader = &contextReader{ctx: ctx, r: reader}
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, c, fmt.Errorf("%s decompress: %w", c.Name(), err)
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, c, ErrTooLarge
	}
	return buf.Bytes(), c, nil
}

// DecompressFile opens path and decompresses its contents.
func DecompressFile(ctx context.Context, path string, limit int64) ([]byte, Codec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return Decompress(ctx, file, limit)
}

// Compress encodes data with c and returns the compressed bytes.
func Compress(c Codec, data []byte) ([]byte, error) {
	if c == nil {
		return nil, ErrUnknownCodec
	}
	var buf bytes.Buffer
	writer, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("%s write: %w", c.Name(), err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s close: %w", c.Name(), err)
	}
	return buf.Bytes(), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
