// Package persist serializes hallsweep state: checkpoint records, the wire
// payloads exchanged between workers, run artifacts and the resolved
// configuration.
//
// A Codec turns a value into bytes. Codecs compose: an envelope tags and
// versions a payload, LZ4 compresses it, and gob, JSON or YAML do the actual
// encoding.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	jsonIndent    = "  "
)

// Codec serializes a value to a stream and back.
type Codec interface {
	Encode(w io.Writer, state any) error
	// Decode reads into state, which must be a pointer.
	Decode(r io.Reader, state any) error
	// Extension is the file suffix, dot included.
	Extension() string
}

// JSONCodec is used for files people read: checkpoint metadata and
// trajectory dumps.
type JSONCodec struct {
	// Indent is the per-level indentation. Empty means compact output.
	Indent string
}

// NewJSONCodec returns a JSONCodec indenting by two spaces.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: jsonIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", c.Indent)

	err := enc.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string { return jsonExtension }

// GobCodec is the binary encoding under every tensor-bearing payload. gob
// keeps float64 values bit-exact.
type GobCodec struct{}

// NewGobCodec returns a GobCodec.
func NewGobCodec() *GobCodec { return &GobCodec{} }

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	err := gob.NewEncoder(w).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string { return gobExtension }
