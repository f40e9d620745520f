package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

type letter uint16

const (
	letterX letter = iota
	letterY
)

// X exists at [0,1]; Y from 2 on and decodes as X for older readers.
func letterDescriptor() *schema.TypeDescriptor {
	return schema.Enum[letter]("letter").
		Unit("X", uint32(letterX), version.Between(0, 1)).
		Unit("Y", uint32(letterY), version.Since(2), schema.FallbackTo(uint32(letterX))).
		MustBuild()
}

type shape interface{ sides() int }

type dot struct{}

type circle struct{ R float64 }

type square struct{ Side float64 }

type triangle struct{ A, B, C float64 }

func (dot) sides() int      { return 0 }
func (circle) sides() int   { return 0 }
func (square) sides() int   { return 4 }
func (triangle) sides() int { return 3 }

func shapeDescriptor() *schema.TypeDescriptor {
	return schema.Enum[shape]("shape").
		Variant("dot", 0, version.Always(), dot{}).
		Variant("circle", 1, version.Always(), circle{}).
		Variant("square", 2, version.Since(2), square{},
			schema.FallbackTo(1),
			schema.SubstituteOnEncode(),
			schema.WithDowngrade(func(p any, _ version.Version) (any, error) {
				return circle{R: p.(square).Side / 2}, nil
			})).
		Variant("triangle", 3, version.Since(3), triangle{}, schema.FallbackTo(0)).
		MustBuild()
}

func TestLetterExample(t *testing.T) {
	e := newEngine(t)

	var buf bytes.Buffer
	err := e.Encode(encoding.NewBinaryWriter(&buf), letterY, 1)
	require.ErrorIs(t, err, schema.ErrVariantNotYetSupported)

	buf.Reset()
	require.NoError(t, e.Encode(encoding.NewBinaryWriter(&buf), letterY, 2))
	assert.Equal(t, []byte{1, 0, 0, 0}, buf.Bytes())

	got, err := DecodeAs[letter](e, encoding.NewBinaryReader(bytes.NewReader(buf.Bytes())), 0)
	require.NoError(t, err)
	assert.Equal(t, letterX, got, "Y resolves to X at 0")

	got, err = DecodeAs[letter](e, encoding.NewBinaryReader(bytes.NewReader(buf.Bytes())), 2)
	require.NoError(t, err)
	assert.Equal(t, letterY, got)

	_, err = DecodeAs[letter](e, encoding.NewBinaryReader(bytes.NewReader([]byte{0, 0, 0, 0})), 2)
	require.ErrorIs(t, err, schema.ErrUnsupportedVariant)

	_, err = DecodeAs[letter](e, encoding.NewBinaryReader(bytes.NewReader([]byte{9, 0, 0, 0})), 2)
	require.ErrorIs(t, err, schema.ErrUnsupportedVariant)

	err = e.Encode(encoding.NewBinaryWriter(&buf), letter(5), 2)
	require.ErrorIs(t, err, schema.ErrUnsupportedVariant)
}

func TestShapeRoundTrip(t *testing.T) {
	for _, f := range formats {
		t.Run(f.name, func(t *testing.T) {
			e := newEngine(t)
			for _, s := range []shape{dot{}, circle{R: 1.5}, square{Side: 3}, triangle{A: 3, B: 4, C: 5}} {
				var buf bytes.Buffer
				require.NoError(t, EncodeAs(e, f.newWriter(&buf), s, 3))
				got, err := DecodeAs[shape](e, f.newReader(&buf), 3)
				require.NoError(t, err)
				assert.Equal(t, s, got)
			}
		})
	}
}

type round interface{ sides() int }

func TestBarePayloadEncodesAsEnum(t *testing.T) {
	e := newEngine(t)

	var want bytes.Buffer
	require.NoError(t, EncodeAs[shape](e, encoding.NewBinaryWriter(&want), circle{R: 2}, 1))

	for _, v := range []any{circle{R: 2}, &circle{R: 2}} {
		var buf bytes.Buffer
		require.NoError(t, e.Encode(encoding.NewBinaryWriter(&buf), v, 1))
		assert.Equal(t, want.Bytes(), buf.Bytes())

		got, err := DecodeAs[shape](e, encoding.NewBinaryReader(&buf), 1)
		require.NoError(t, err)
		assert.Equal(t, circle{R: 2}, got)
	}
}

func TestBarePayloadOfSeveralEnums(t *testing.T) {
	reg := registry.New().MustRegister(
		shapeDescriptor(),
		schema.Enum[round]("round").Variant("circle", 0, version.Always(), circle{}).MustBuild(),
	)
	reg.Freeze()
	e := New(reg)

	var buf bytes.Buffer
	err := e.Encode(encoding.NewBinaryWriter(&buf), circle{R: 2}, 1)
	require.ErrorIs(t, err, schema.ErrInvalidValue)

	var r round = circle{R: 2}
	require.NoError(t, e.Encode(encoding.NewBinaryWriter(&buf), &r, 1))
	got, err := DecodeAs[round](e, encoding.NewBinaryReader(&buf), 1)
	require.NoError(t, err)
	assert.Equal(t, circle{R: 2}, got)
}

func TestShapeEncodeSubstitution(t *testing.T) {
	e := newEngine(t)

	var buf bytes.Buffer
	require.NoError(t, EncodeAs[shape](e, encoding.NewBinaryWriter(&buf), square{Side: 4}, 1))
	got, err := DecodeAs[shape](e, encoding.NewBinaryReader(&buf), 1)
	require.NoError(t, err)
	assert.Equal(t, circle{R: 2}, got)

	buf.Reset()
	err = EncodeAs[shape](e, encoding.NewBinaryWriter(&buf), triangle{A: 1, B: 1, C: 1}, 2)
	require.ErrorIs(t, err, schema.ErrVariantNotYetSupported)

	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "shape", schemaErr.Type)
	assert.Equal(t, "triangle", schemaErr.Path)
}

func TestShapeDecodeFallback(t *testing.T) {
	e := newEngine(t)

	t.Run("downgrade", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeAs[shape](e, encoding.NewBinaryWriter(&buf), square{Side: 6}, 2))
		var got shape
		require.NoError(t, e.DecodeFrom(encoding.NewBinaryReader(&buf), &got, 2, 1))
		assert.Equal(t, circle{R: 3}, got)
		assert.Zero(t, buf.Len())
	})

	t.Run("unit fallback", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeAs[shape](e, encoding.NewBinaryWriter(&buf), triangle{A: 1, B: 2, C: 2}, 3))
		var got shape
		require.NoError(t, e.DecodeFrom(encoding.NewBinaryReader(&buf), &got, 3, 2))
		assert.Equal(t, dot{}, got)
		assert.Zero(t, buf.Len(), "payload of the wire variant is consumed")
	})

	t.Run("nil value", func(t *testing.T) {
		var buf bytes.Buffer
		var s shape
		err := EncodeAs(e, encoding.NewBinaryWriter(&buf), s, 1)
		require.ErrorIs(t, err, schema.ErrInvalidValue)
	})
}

type drawing struct {
	Title  string
	Letter letter
	Main   shape
	Extra  []shape
	Best   *circle
}

func TestEnumsInsideStructs(t *testing.T) {
	reg := registry.New().MustRegister(
		letterDescriptor(),
		shapeDescriptor(),
		schema.Struct[drawing]("drawing").MustBuild(),
	)
	e := New(reg)

	in := drawing{
		Title:  "sketch",
		Letter: letterY,
		Main:   square{Side: 2},
		Extra:  []shape{dot{}, circle{R: 1}},
		Best:   &circle{R: 9},
	}

	var buf bytes.Buffer
	require.NoError(t, e.Encode(encoding.NewBinaryWriter(&buf), in, 2))
	var out drawing
	require.NoError(t, e.Decode(encoding.NewBinaryReader(bytes.NewReader(buf.Bytes())), &out, 2))
	assert.Equal(t, in, out)

	var old drawing
	require.NoError(t, e.DecodeFrom(encoding.NewBinaryReader(bytes.NewReader(buf.Bytes())), &old, 2, 1))
	assert.Equal(t, letterX, old.Letter)
	assert.Equal(t, circle{R: 1}, old.Main)

	err := e.Encode(encoding.NewBinaryWriter(&buf), in, 1)
	require.ErrorIs(t, err, schema.ErrVariantNotYetSupported)
	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "Letter.Y", schemaErr.Path)
}

type inner struct {
	X int32
	Y int32 `versionize:"since=2,optional"`
}

type outer struct {
	In   inner
	Note string `versionize:"since=2,optional"`
}

func TestNestedPropagation(t *testing.T) {
	reg := registry.New().MustRegister(
		schema.Struct[inner]("inner").MustBuild(),
		schema.Struct[outer]("outer").MustBuild(),
	)
	e := New(reg)
	in := outer{In: inner{X: 1, Y: 2}, Note: "n"}

	m := version.NewMap()
	_, err := m.NewVersion()
	require.NoError(t, err)
	require.NoError(t, m.Set("inner", 2))
	m.Freeze()
	sel1, err := m.At(1)
	require.NoError(t, err)
	sel2, err := m.At(2)
	require.NoError(t, err)

	encode := func(sel version.Selector) []byte {
		var buf bytes.Buffer
		require.NoError(t, e.EncodeSelected(encoding.NewBinaryWriter(&buf), in, sel))
		return buf.Bytes()
	}

	t.Run("fixed version reaches every type", func(t *testing.T) {
		assert.Len(t, encode(version.Fixed(1)), 4)
		assert.Len(t, encode(version.Fixed(2)), 4+4+8+1)
	})

	t.Run("umbrella resolves per type", func(t *testing.T) {
		data := encode(sel2)
		assert.Len(t, data, 8, "inner at 2, outer at 1")

		var out outer
		require.NoError(t, e.DecodeSelected(encoding.NewBinaryReader(bytes.NewReader(data)), &out, sel2, sel2))
		assert.Equal(t, outer{In: inner{X: 1, Y: 2}}, out)

		var older outer
		require.NoError(t, e.DecodeSelected(encoding.NewBinaryReader(bytes.NewReader(data)), &older, sel2, sel1))
		assert.Equal(t, outer{In: inner{X: 1}}, older)
	})
}
