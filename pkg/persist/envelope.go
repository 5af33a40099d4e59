package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for envelope decoding.
var (
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTruncated          = errors.New("truncated header")
)

// magicLen is the length of an envelope magic tag.
const magicLen = 4

// EnvelopeCodec prefixes the inner payload with a four-byte magic tag and a
// big-endian uint16 format version. Decoding refuses payloads carrying a
// different tag or version.
type EnvelopeCodec struct {
	Magic   [magicLen]byte
	Version uint16
	Inner   Codec
	Ext     string
}

// NewEnvelopeCodec creates an envelope around inner. magic must be exactly
// four bytes long; ext is the file extension reported by the codec.
func NewEnvelopeCodec(magic string, version uint16, ext string, inner Codec) *EnvelopeCodec {
	if len(magic) != magicLen {
		panic(fmt.Sprintf("persist: envelope magic must be %d bytes, got %q", magicLen, magic))
	}

	c := &EnvelopeCodec{
		Version: version,
		Inner:   inner,
		Ext:     ext,
	}
	copy(c.Magic[:], magic)

	return c
}

// Encode implements Codec.Encode.
func (c *EnvelopeCodec) Encode(w io.Writer, state any) error {
	var header [magicLen + 2]byte

	copy(header[:magicLen], c.Magic[:])
	binary.BigEndian.PutUint16(header[magicLen:], c.Version)

	_, err := w.Write(header[:])
	if err != nil {
		return fmt.Errorf("write envelope header: %w", err)
	}

	return c.Inner.Encode(w, state)
}

// Decode implements Codec.Decode.
func (c *EnvelopeCodec) Decode(r io.Reader, state any) error {
	var header [magicLen + 2]byte

	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	if [magicLen]byte(header[:magicLen]) != c.Magic {
		return fmt.Errorf("%w: want %q, got %q", ErrBadMagic, c.Magic[:], header[:magicLen])
	}

	version := binary.BigEndian.Uint16(header[magicLen:])
	if version != c.Version {
		return fmt.Errorf("%w: want %d, got %d", ErrUnsupportedVersion, c.Version, version)
	}

	return c.Inner.Decode(r, state)
}

// Extension implements Codec.Extension.
func (c *EnvelopeCodec) Extension() string {
	return c.Ext
}
