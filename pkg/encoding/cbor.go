package encoding

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same values always
// produce the same bytes, which keeps snapshot checksums stable.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("encoding: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("encoding: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORWriter writes every primitive as one item of a CBOR sequence
// (RFC 8742).
type CBORWriter struct {
	enc *cbor.Encoder
}

func NewCBORWriter(w io.Writer) *CBORWriter {
	return &CBORWriter{enc: encMode.NewEncoder(w)}
}

func (c *CBORWriter) WriteBool(v bool) error       { return c.enc.Encode(v) }
func (c *CBORWriter) WriteUint8(v uint8) error     { return c.enc.Encode(v) }
func (c *CBORWriter) WriteUint16(v uint16) error   { return c.enc.Encode(v) }
func (c *CBORWriter) WriteUint32(v uint32) error   { return c.enc.Encode(v) }
func (c *CBORWriter) WriteUint64(v uint64) error   { return c.enc.Encode(v) }
func (c *CBORWriter) WriteInt8(v int8) error       { return c.enc.Encode(v) }
func (c *CBORWriter) WriteInt16(v int16) error     { return c.enc.Encode(v) }
func (c *CBORWriter) WriteInt32(v int32) error     { return c.enc.Encode(v) }
func (c *CBORWriter) WriteInt64(v int64) error     { return c.enc.Encode(v) }
func (c *CBORWriter) WriteFloat32(v float32) error { return c.enc.Encode(v) }
func (c *CBORWriter) WriteFloat64(v float64) error { return c.enc.Encode(v) }
func (c *CBORWriter) WriteString(v string) error   { return c.enc.Encode(v) }
func (c *CBORWriter) WriteLen(n int) error         { return c.enc.Encode(uint64(n)) }

func (c *CBORWriter) WriteBytes(v []byte) error {
	if v == nil {
		v = []byte{}
	}
	return c.enc.Encode(v)
}

// CBORReader reads what CBORWriter writes.
type CBORReader struct {
	dec *cbor.Decoder
	// MaxLen bounds accepted length prefixes.
	MaxLen int
}

func NewCBORReader(r io.Reader) *CBORReader {
	return &CBORReader{dec: decMode.NewDecoder(r), MaxLen: DefaultMaxLen}
}

func decode[T any](c *CBORReader) (T, error) {
	var v T
	err := c.dec.Decode(&v)
	return v, err
}

func (c *CBORReader) ReadBool() (bool, error)       { return decode[bool](c) }
func (c *CBORReader) ReadUint8() (uint8, error)     { return decode[uint8](c) }
func (c *CBORReader) ReadUint16() (uint16, error)   { return decode[uint16](c) }
func (c *CBORReader) ReadUint32() (uint32, error)   { return decode[uint32](c) }
func (c *CBORReader) ReadUint64() (uint64, error)   { return decode[uint64](c) }
func (c *CBORReader) ReadInt8() (int8, error)       { return decode[int8](c) }
func (c *CBORReader) ReadInt16() (int16, error)     { return decode[int16](c) }
func (c *CBORReader) ReadInt32() (int32, error)     { return decode[int32](c) }
func (c *CBORReader) ReadInt64() (int64, error)     { return decode[int64](c) }
func (c *CBORReader) ReadFloat32() (float32, error) { return decode[float32](c) }
func (c *CBORReader) ReadFloat64() (float64, error) { return decode[float64](c) }
func (c *CBORReader) ReadString() (string, error)   { return decode[string](c) }

func (c *CBORReader) ReadBytes() ([]byte, error) {
	p, err := decode[[]byte](c)
	if err != nil || len(p) == 0 {
		return nil, err
	}
	return p, nil
}

func (c *CBORReader) ReadLen() (int, error) {
	n, err := decode[uint64](c)
	if err != nil {
		return 0, err
	}
	return checkLen(n, c.MaxLen)
}
