package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/n0madic/go-discrete-choice/model"
)

// ErrUnknownCodec is returned for an unsupported compression name.
var ErrUnknownCodec = fmt.Errorf("%w: unknown cache compression", model.ErrInvalidConfig)

// Codec compresses encoded frames. Implementations are safe for concurrent
// use.
type Codec interface {
	Name() string
	// Ext is appended to entry names so that entries written with
	// different codecs never collide.
	Ext() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// CodecByName returns the codec registered under name. The empty name
// selects snappy.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "snappy":
		return snappyCodec{}, nil
	case "s2":
		return s2Codec{}, nil
	case "zstd":
		return newZstdCodec()
	case "gzip":
		return gzipCodec{}, nil
	case "none":
		return noneCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

type snappyCodec struct{}

func (snappyCodec) Name() string                      { return "snappy" }
func (snappyCodec) Ext() string                       { return ".snappy" }
func (snappyCodec) Encode(src []byte) ([]byte, error) { return snappy.Encode(nil, src), nil }
func (snappyCodec) Decode(src []byte) ([]byte, error) { return snappy.Decode(nil, src) }

type s2Codec struct{}

func (s2Codec) Name() string                      { return "s2" }
func (s2Codec) Ext() string                       { return ".s2" }
func (s2Codec) Encode(src []byte) ([]byte, error) { return s2.Encode(nil, src), nil }
func (s2Codec) Decode(src []byte) ([]byte, error) { return s2.Decode(nil, src) }

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (*zstdCodec) Name() string                        { return "zstd" }
func (*zstdCodec) Ext() string                         { return ".zst" }
func (c *zstdCodec) Encode(src []byte) ([]byte, error) { return c.enc.EncodeAll(src, nil), nil }
func (c *zstdCodec) Decode(src []byte) ([]byte, error) { return c.dec.DecodeAll(src, nil) }

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }
func (gzipCodec) Ext() string  { return ".gz" }

func (gzipCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type noneCodec struct{}

func (noneCodec) Name() string                      { return "none" }
func (noneCodec) Ext() string                       { return "" }
func (noneCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (noneCodec) Decode(src []byte) ([]byte, error) { return src, nil }

func encodeFrame(c Codec, f Frame) ([]byte, error) {
	raw, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out, err := c.Encode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", c.Name(), err)
	}
	return out, nil
}

func decodeFrame(c Codec, data []byte) (Frame, error) {
	raw, err := c.Decode(data)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s decode: %v", ErrCorruptFrame, c.Name(), err)
	}
	var f Frame
	if err := f.UnmarshalBinary(raw); err != nil {
		return Frame{}, err
	}
	return f, nil
}
