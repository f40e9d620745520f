package encoding

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormats = []Format{FormatBinary, FormatCBOR}

func writeAll(t *testing.T, w Writer) {
	t.Helper()
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteUint8(math.MaxUint8))
	require.NoError(t, w.WriteUint16(math.MaxUint16))
	require.NoError(t, w.WriteUint32(math.MaxUint32))
	require.NoError(t, w.WriteUint64(math.MaxUint64))
	require.NoError(t, w.WriteInt8(math.MinInt8))
	require.NoError(t, w.WriteInt16(-300))
	require.NoError(t, w.WriteInt32(math.MinInt32))
	require.NoError(t, w.WriteInt64(math.MaxInt64))
	require.NoError(t, w.WriteFloat32(1.5))
	require.NoError(t, w.WriteFloat64(-2.25))
	require.NoError(t, w.WriteString("héllo"))
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3}))
	require.NoError(t, w.WriteBytes(nil))
	require.NoError(t, w.WriteLen(42))
}

func TestPrimitiveRoundTrip(t *testing.T) {
	for _, f := range testFormats {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(f, &buf)
			require.NoError(t, err)
			writeAll(t, w)

			r, err := NewReader(f, &buf)
			require.NoError(t, err)

			b, err := r.ReadBool()
			require.NoError(t, err)
			assert.True(t, b)

			u8, _ := r.ReadUint8()
			u16, _ := r.ReadUint16()
			u32, _ := r.ReadUint32()
			u64, _ := r.ReadUint64()
			assert.Equal(t, uint8(math.MaxUint8), u8)
			assert.Equal(t, uint16(math.MaxUint16), u16)
			assert.Equal(t, uint32(math.MaxUint32), u32)
			assert.Equal(t, uint64(math.MaxUint64), u64)

			i8, _ := r.ReadInt8()
			i16, _ := r.ReadInt16()
			i32, _ := r.ReadInt32()
			i64, _ := r.ReadInt64()
			assert.Equal(t, int8(math.MinInt8), i8)
			assert.Equal(t, int16(-300), i16)
			assert.Equal(t, int32(math.MinInt32), i32)
			assert.Equal(t, int64(math.MaxInt64), i64)

			f32, _ := r.ReadFloat32()
			f64, _ := r.ReadFloat64()
			assert.Equal(t, float32(1.5), f32)
			assert.Equal(t, -2.25, f64)

			s, err := r.ReadString()
			require.NoError(t, err)
			assert.Equal(t, "héllo", s)

			p, err := r.ReadBytes()
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3}, p)

			p, err = r.ReadBytes()
			require.NoError(t, err)
			assert.Nil(t, p)

			n, err := r.ReadLen()
			require.NoError(t, err)
			assert.Equal(t, 42, n)

			_, err = r.ReadUint8()
			assert.Error(t, err, "stream should be exhausted")
		})
	}
}

func TestBinaryLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewBinaryWriter(&buf)
	require.NoError(t, w.WriteUint16(0x0102))
	require.NoError(t, w.WriteString("ab"))
	assert.Equal(t, []byte{0x02, 0x01, 2, 0, 0, 0, 0, 0, 0, 0, 'a', 'b'}, buf.Bytes())
}

func TestBinaryTruncated(t *testing.T) {
	r := NewBinaryReader(bytes.NewReader([]byte{1, 2, 3}))
	_, err := r.ReadUint32()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBinaryBytesTruncated(t *testing.T) {
	for _, n := range []int{16, DefaultMaxLen} {
		var buf bytes.Buffer
		w := NewBinaryWriter(&buf)
		require.NoError(t, w.WriteLen(n))
		buf.WriteString("abc")

		_, err := NewBinaryReader(&buf).ReadBytes()
		require.ErrorIs(t, err, io.ErrUnexpectedEOF, "length %d", n)
	}

	var buf bytes.Buffer
	big := bytes.Repeat([]byte{7}, 3*bytesChunk+5)
	require.NoError(t, NewBinaryWriter(&buf).WriteBytes(big))
	got, err := NewBinaryReader(&buf).ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestLengthLimit(t *testing.T) {
	for _, f := range testFormats {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, _ := NewWriter(f, &buf)
			require.NoError(t, w.WriteLen(DefaultMaxLen+1))

			r, _ := NewReader(f, &buf)
			_, err := r.ReadLen()
			require.ErrorIs(t, err, ErrLengthLimit)
		})
	}
}

func TestCBORRejectsOverflow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCBORWriter(&buf).WriteUint16(300))
	_, err := NewCBORReader(&buf).ReadUint8()
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("CBOR")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)

	f, err = ParseFormat("binary")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)

	_, err = ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = NewWriter(Format(9), io.Discard)
	require.ErrorIs(t, err, ErrUnknownFormat)
}
