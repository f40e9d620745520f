package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

var order = binary.LittleEndian

// bytesChunk is the largest byte string allocated in one piece up front.
const bytesChunk = 64 << 10

// BinaryWriter writes fixed-width little-endian integers and
// uint64 length-prefixed strings, byte slices and sequences.
type BinaryWriter struct {
	w       io.Writer
	scratch [8]byte
}

func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

func (b *BinaryWriter) write(n int) error {
	_, err := b.w.Write(b.scratch[:n])
	return err
}

func (b *BinaryWriter) WriteBool(v bool) error {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

func (b *BinaryWriter) WriteUint8(v uint8) error {
	b.scratch[0] = v
	return b.write(1)
}

func (b *BinaryWriter) WriteUint16(v uint16) error {
	order.PutUint16(b.scratch[:2], v)
	return b.write(2)
}

func (b *BinaryWriter) WriteUint32(v uint32) error {
	order.PutUint32(b.scratch[:4], v)
	return b.write(4)
}

func (b *BinaryWriter) WriteUint64(v uint64) error {
	order.PutUint64(b.scratch[:8], v)
	return b.write(8)
}

func (b *BinaryWriter) WriteInt8(v int8) error       { return b.WriteUint8(uint8(v)) }
func (b *BinaryWriter) WriteInt16(v int16) error     { return b.WriteUint16(uint16(v)) }
func (b *BinaryWriter) WriteInt32(v int32) error     { return b.WriteUint32(uint32(v)) }
func (b *BinaryWriter) WriteInt64(v int64) error     { return b.WriteUint64(uint64(v)) }
func (b *BinaryWriter) WriteFloat32(v float32) error { return b.WriteUint32(math.Float32bits(v)) }
func (b *BinaryWriter) WriteFloat64(v float64) error { return b.WriteUint64(math.Float64bits(v)) }

func (b *BinaryWriter) WriteString(v string) error {
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	_, err := io.WriteString(b.w, v)
	return err
}

func (b *BinaryWriter) WriteBytes(v []byte) error {
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	_, err := b.w.Write(v)
	return err
}

func (b *BinaryWriter) WriteLen(n int) error {
	return b.WriteUint64(uint64(n))
}

// BinaryReader reads what BinaryWriter writes.
type BinaryReader struct {
	r       io.Reader
	scratch [8]byte
	// MaxLen bounds accepted length prefixes.
	MaxLen int
}

func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{r: r, MaxLen: DefaultMaxLen}
}

func (b *BinaryReader) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(b.r, b.scratch[:n]); err != nil {
		return nil, err
	}
	return b.scratch[:n], nil
}

func (b *BinaryReader) ReadBool() (bool, error) {
	v, err := b.ReadUint8()
	return v != 0, err
}

func (b *BinaryReader) ReadUint8() (uint8, error) {
	p, err := b.read(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *BinaryReader) ReadUint16() (uint16, error) {
	p, err := b.read(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(p), nil
}

func (b *BinaryReader) ReadUint32() (uint32, error) {
	p, err := b.read(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

func (b *BinaryReader) ReadUint64() (uint64, error) {
	p, err := b.read(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(p), nil
}

func (b *BinaryReader) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

func (b *BinaryReader) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *BinaryReader) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *BinaryReader) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *BinaryReader) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *BinaryReader) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *BinaryReader) ReadString() (string, error) {
	p, err := b.ReadBytes()
	return string(p), err
}

func (b *BinaryReader) ReadBytes() ([]byte, error) {
	n, err := b.ReadLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n <= bytesChunk {
		p := make([]byte, n)
		if _, err = io.ReadFull(b.r, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	// Large prefixes grow the buffer as data arrives.
	var buf bytes.Buffer
	if _, err = io.CopyN(&buf, b.r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BinaryReader) ReadLen() (int, error) {
	n, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	return checkLen(n, b.MaxLen)
}
