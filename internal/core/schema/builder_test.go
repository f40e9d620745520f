package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/versionize/pkg/version"
)

type device struct {
	Name     string
	Firmware string `versionize:"since=2,default=firmware"`
	Legacy   int    `versionize:"until=3,optional"`
	Serial   *string
	Ignored  int `versionize:"-"`
	internal int
}

func deviceDefaults() map[string]DefaultFunc {
	return map[string]DefaultFunc{
		"firmware": func(version.Version) any { return "unknown" },
	}
}

func TestStructFromTags(t *testing.T) {
	d, err := Struct[device]("device").Defaults(deviceDefaults()).Build()
	require.NoError(t, err)

	assert.Equal(t, "device", d.Name())
	assert.Equal(t, KindStruct, d.Kind())
	assert.Equal(t, reflect.TypeFor[device](), d.GoType())

	fields := d.Fields()
	require.Len(t, fields, 4)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"Name", "Firmware", "Legacy", "Serial"}, names)

	assert.Equal(t, version.Since(0), fields[0].Range)
	assert.Equal(t, version.Since(2), fields[1].Range)
	assert.Equal(t, version.Between(0, 3), fields[2].Range)
	assert.True(t, fields[2].Optional)
	assert.Equal(t, 1, fields[1].Index)
	assert.Equal(t, version.Version(3), d.Latest())
}

func TestStructFieldOverridesTag(t *testing.T) {
	d, err := Struct[device]("device").
		Field("Firmware", version.Since(4), WithConstDefault("n/a")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, version.Since(4), d.Fields()[1].Range)
	assert.Equal(t, version.Version(4), d.Latest())

	v, err := d.Fields()[1].Absent("device", 1)
	require.NoError(t, err)
	assert.Equal(t, "n/a", v.Interface())
}

func TestStructSkip(t *testing.T) {
	d, err := Struct[device]("device").
		Defaults(deviceDefaults()).
		Skip("Legacy").
		Field("Serial", version.Since(5)).
		Build()
	require.NoError(t, err)
	require.Len(t, d.Fields(), 3)
	assert.Equal(t, "Serial", d.Fields()[2].Name)
	assert.Equal(t, version.Since(5), d.Fields()[2].Range)
}

func TestStructBuildErrors(t *testing.T) {
	t.Run("unknown default function", func(t *testing.T) {
		_, err := Struct[device]("device").Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
		assert.Contains(t, err.Error(), "firmware")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Struct[device]("device").Defaults(deviceDefaults()).Field("Nope", version.Always()).Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := Struct[device]("device").Defaults(deviceDefaults()).Field("Name", version.Between(5, 2)).Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
		require.ErrorIs(t, err, version.ErrInvalidRange)
	})

	t.Run("not a struct", func(t *testing.T) {
		_, err := Struct[int]("int").Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := Struct[device]("").Defaults(deviceDefaults()).Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("default of wrong type", func(t *testing.T) {
		_, err := Struct[device]("device").
			Field("Firmware", version.Since(2), WithDefaultValue(func(version.Version) int { return 1 })).
			Build()
		require.ErrorIs(t, err, ErrDefaultType)
	})

	t.Run("bad tag", func(t *testing.T) {
		type bad struct {
			A int `versionize:"since=x"`
		}
		_, err := Struct[bad]("bad").Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("unknown tag option", func(t *testing.T) {
		type bad struct {
			A int `versionize:"sometimes"`
		}
		_, err := Struct[bad]("bad").Build()
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})
}

func TestParseFieldTag(t *testing.T) {
	tests := []struct {
		tag  string
		want version.Range
	}{
		{"since=2", version.Since(2)},
		{"start=2,end=4", version.Between(2, 4)},
		{"until=3", version.Until(3)},
		{"range=2..5", version.Between(2, 5)},
		{"range=3..", version.Since(3)},
		{"optional", version.Always()},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			f := FieldSpec{}
			require.NoError(t, parseFieldTag(&f, tt.tag))
			assert.Equal(t, tt.want, f.Range)
		})
	}

	f := FieldSpec{}
	require.Error(t, parseFieldTag(&f, "since=4,until=2"))
	require.Error(t, parseFieldTag(&f, "default="))
}

func TestFieldAbsent(t *testing.T) {
	strType := reflect.TypeFor[string]()

	t.Run("default", func(t *testing.T) {
		f := FieldSpec{Name: "b", Type: strType, Default: func(v version.Version) any {
			if v < 3 {
				return "old"
			}
			return "new"
		}}
		v, err := f.Absent("t", 1)
		require.NoError(t, err)
		assert.Equal(t, "old", v.String())
		v, err = f.Absent("t", 3)
		require.NoError(t, err)
		assert.Equal(t, "new", v.String())
	})

	t.Run("optional", func(t *testing.T) {
		f := FieldSpec{Name: "b", Type: strType, Optional: true}
		v, err := f.Absent("t", 1)
		require.NoError(t, err)
		assert.Equal(t, "", v.String())
	})

	t.Run("pointer", func(t *testing.T) {
		f := FieldSpec{Name: "p", Type: reflect.TypeFor[*int]()}
		assert.True(t, f.CanBeAbsent())
		v, err := f.Absent("t", 1)
		require.NoError(t, err)
		assert.True(t, v.IsNil())
	})

	t.Run("missing", func(t *testing.T) {
		f := FieldSpec{Name: "b", Type: strType}
		assert.False(t, f.CanBeAbsent())
		_, err := f.Absent("t", 1)
		require.ErrorIs(t, err, ErrMissingDefault)

		var schemaErr *Error
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "b", schemaErr.Path)
		assert.True(t, schemaErr.IsVersionMismatch())
	})

	t.Run("convertible", func(t *testing.T) {
		type label string
		f := FieldSpec{Name: "l", Type: reflect.TypeFor[label](), Default: func(version.Version) any { return "x" }}
		v, err := f.Absent("t", 1)
		require.NoError(t, err)
		assert.Equal(t, label("x"), v.Interface())
	})

	t.Run("wrong type", func(t *testing.T) {
		f := FieldSpec{Name: "b", Type: strType, Default: func(version.Version) any { return 42 }}
		_, err := f.Absent("t", 1)
		require.ErrorIs(t, err, ErrDefaultType)
	})

	t.Run("nil for slice", func(t *testing.T) {
		f := FieldSpec{Name: "s", Type: reflect.TypeFor[[]int](), Default: func(version.Version) any { return nil }}
		v, err := f.Absent("t", 1)
		require.NoError(t, err)
		assert.True(t, v.IsNil())
	})
}

func TestFingerprint(t *testing.T) {
	a := Struct[device]("device").Defaults(deviceDefaults()).MustBuild()
	b := Struct[device]("device").Defaults(deviceDefaults()).MustBuild()
	c := Struct[device]("device").Defaults(deviceDefaults()).Field("Legacy", version.Until(4), AsOptional()).MustBuild()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestMustBuildPanics(t *testing.T) {
	assert.Panics(t, func() { Struct[device]("device").MustBuild() })
}
