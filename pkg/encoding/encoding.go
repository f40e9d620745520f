package encoding

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrLengthLimit   = errors.New("length prefix exceeds limit")
	ErrUnknownFormat = errors.New("unknown encoding format")
)

// DefaultMaxLen bounds length prefixes accepted by readers so corrupt input
// cannot trigger huge allocations.
const DefaultMaxLen = 64 << 20

// Writer writes primitive values. Implementations define the wire grammar;
// callers only decide which values to write and in what order.
type Writer interface {
	WriteBool(v bool) error
	WriteUint8(v uint8) error
	WriteUint16(v uint16) error
	WriteUint32(v uint32) error
	WriteUint64(v uint64) error
	WriteInt8(v int8) error
	WriteInt16(v int16) error
	WriteInt32(v int32) error
	WriteInt64(v int64) error
	WriteFloat32(v float32) error
	WriteFloat64(v float64) error
	WriteString(v string) error
	WriteBytes(v []byte) error
	// WriteLen writes the element count of a sequence or map.
	WriteLen(n int) error
}

// Reader is the counterpart of Writer.
type Reader interface {
	ReadBool() (bool, error)
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadInt8() (int8, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadBytes() ([]byte, error)
	ReadLen() (int, error)
}

// Format selects a byte codec.
type Format uint8

const (
	FormatBinary Format = iota + 1
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat parses the String form of a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "bin":
		return FormatBinary, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// NewWriter returns a Writer for the given format.
func NewWriter(f Format, w io.Writer) (Writer, error) {
	switch f {
	case FormatBinary:
		return NewBinaryWriter(w), nil
	case FormatCBOR:
		return NewCBORWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// NewReader returns a Reader for the given format.
func NewReader(f Format, r io.Reader) (Reader, error) {
	switch f {
	case FormatBinary:
		return NewBinaryReader(r), nil
	case FormatCBOR:
		return NewCBORReader(r), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

func checkLen(n uint64, limit int) (int, error) {
	if n > uint64(limit) {
		return 0, fmt.Errorf("%w: %d > %d", ErrLengthLimit, n, limit)
	}
	return int(n), nil
}
