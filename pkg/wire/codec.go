// Package wire implements a framed, typed message channel: an 8-byte
// little-endian size header, a length-prefixed kind tag, and a
// registry-dispatched polymorphic body.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder serializes a message body using the wire's primitive encodings:
// little-endian fixed-width integers and uint32-length-prefixed strings.
type Encoder struct {
	buf *bytes.Buffer
}

func newEncoder() *Encoder {
	return &Encoder{buf: new(bytes.Buffer)}
}

func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteInt32(v int32) {
	e.WriteUint32(uint32(v))
}

func (e *Encoder) WriteFloat32(v float32) {
	e.WriteUint32(math.Float32bits(v))
}

func (e *Encoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

// Decoder deserializes a message body previously written by Encoder. Every
// Read method returns an error (rather than panicking) so the Channel can
// surface a malformed body as ErrMalformed instead of crashing the process
// on untrusted network input.
type Decoder struct {
	r *bytes.Reader
}

func newDecoder(body []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(body)}
}

func (d *Decoder) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := readFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := readFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := readFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return n, fmt.Errorf("%w: short body", ErrMalformed)
	}
	return n, nil
}
