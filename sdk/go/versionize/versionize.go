// Package versionize is the public entry point of the versionize
// serialization core. It re-exports the descriptor builders and error
// values, and wraps a frozen registry and an encode/decode engine in a
// Codec working on byte slices.
package versionize

import (
	"bytes"
	"context"

	"github.com/zeusync/versionize/internal/core/codec"
	"github.com/zeusync/versionize/internal/core/compat"
	"github.com/zeusync/versionize/internal/core/migrator"
	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/resolver"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/internal/core/snapshot"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

type (
	Version  = version.Version
	Range    = version.Range
	Selector = version.Selector
	Fixed    = version.Fixed
	Map      = version.Map

	TypeDescriptor = schema.TypeDescriptor
	FieldSpec      = schema.FieldSpec
	VariantSpec    = schema.VariantSpec
	DefaultFunc    = schema.DefaultFunc
	DowngradeFunc  = schema.DowngradeFunc
	Error          = schema.Error
	ErrorCode      = schema.ErrorCode

	Marshaler   = codec.Marshaler
	Unmarshaler = codec.Unmarshaler
	Writer      = encoding.Writer
	Reader      = encoding.Reader
	Format      = encoding.Format

	Matrix = compat.Matrix
	Plan   = migrator.Plan
)

const (
	Unversioned = version.Unversioned
	Initial     = version.Initial

	FormatBinary = encoding.FormatBinary
	FormatCBOR   = encoding.FormatCBOR
)

var (
	Always  = version.Always
	Since   = version.Since
	Between = version.Between
	Until   = version.Until
	NewMap  = version.NewMap

	FallbackTo         = schema.FallbackTo
	SubstituteOnEncode = schema.SubstituteOnEncode
	WithDowngrade      = schema.WithDowngrade
	AsOptional         = schema.AsOptional
	WithDefault        = schema.WithDefault
	WithConstDefault   = schema.WithConstDefault

	ErrMissingDefault         = schema.ErrMissingDefault
	ErrUnsupportedVariant     = schema.ErrUnsupportedVariant
	ErrVersionTooNew          = schema.ErrVersionTooNew
	ErrVariantNotYetSupported = schema.ErrVariantNotYetSupported
	ErrIO                     = schema.ErrIO
	ErrUnsupportedVersion     = schema.ErrUnsupportedVersion
	ErrNotRegistered          = schema.ErrNotRegistered
)

// Struct starts a struct descriptor for T; see schema.Struct.
func Struct[T any](name string) *schema.StructBuilder { return schema.Struct[T](name) }

// Enum starts an enum descriptor for T; see schema.Enum.
func Enum[T any](name string) *schema.EnumBuilder { return schema.Enum[T](name) }

// Option configures a Codec.
type Option func(*options)

type options struct {
	format encoding.Format
	logger log.Log
}

// WithFormat selects the byte codec. The default is FormatBinary.
func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

// WithLogger sets the logger of the underlying engine.
func WithLogger(l log.Log) Option {
	return func(o *options) { o.logger = l }
}

// Codec encodes and decodes registered types to and from byte slices. It
// is safe for concurrent use.
type Codec struct {
	engine *codec.Engine
	format encoding.Format
	logger log.Log
}

// New registers descs in a fresh registry, freezes it and returns a Codec
// over it.
func New(descs []*TypeDescriptor, opts ...Option) (*Codec, error) {
	o := options{format: encoding.FormatBinary, logger: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	reg := registry.New(registry.WithLogger(o.logger))
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return &Codec{
		engine: codec.New(reg, codec.WithLogger(o.logger), codec.WithResolutionCache(resolver.NewCache())),
		format: o.format,
		logger: o.logger,
	}, nil
}

// Engine exposes the streaming engine.
func (c *Codec) Engine() *codec.Engine { return c.engine }

// Marshal encodes value at v.
func (c *Codec) Marshal(value any, v Version) ([]byte, error) {
	return c.MarshalSelected(value, version.Fixed(v))
}

// MarshalSelected encodes value with a per-type version selector such as
// Map.At(umbrella).
func (c *Codec) MarshalSelected(value any, target Selector) ([]byte, error) {
	var buf bytes.Buffer
	w, err := encoding.NewWriter(c.format, &buf)
	if err != nil {
		return nil, err
	}
	if err = c.engine.EncodeSelected(w, value, target); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data written at v into ptr.
func (c *Codec) Unmarshal(data []byte, ptr any, v Version) error {
	return c.UnmarshalFrom(data, ptr, v, v)
}

// UnmarshalFrom decodes data written at wire into ptr at target.
func (c *Codec) UnmarshalFrom(data []byte, ptr any, wire, target Version) error {
	return c.UnmarshalSelected(data, ptr, version.Fixed(wire), version.Fixed(target))
}

// UnmarshalSelected decodes with per-type selectors for the wire and target
// versions.
func (c *Codec) UnmarshalSelected(data []byte, ptr any, wire, target Selector) error {
	r, err := encoding.NewReader(c.format, bytes.NewReader(data))
	if err != nil {
		return err
	}
	return c.engine.DecodeSelected(r, ptr, wire, target)
}

// Snapshots returns a snapshot codec writing bodies in the Codec's format.
func (c *Codec) Snapshots(opts ...snapshot.Option) *snapshot.Codec {
	base := []snapshot.Option{snapshot.WithFormat(c.format), snapshot.WithLogger(c.logger)}
	return snapshot.New(c.engine, append(base, opts...)...)
}

// Migrator returns a migrator over the Codec's engine.
func (c *Codec) Migrator() *migrator.Migrator { return migrator.NewMigrator(c.engine) }

// Check computes the compatibility matrix of sample across its versions.
func (c *Codec) Check(ctx context.Context, sample any) (*Matrix, error) {
	return compat.New(c.engine, compat.WithFormat(c.format), compat.WithLogger(c.logger)).CheckType(ctx, sample)
}

// MarshalAs is Marshal for a statically typed value. Interface enums keep
// their discriminant.
func MarshalAs[T any](c *Codec, value T, v Version) ([]byte, error) {
	return c.Marshal(&value, v)
}

// UnmarshalAs decodes data written at wire into a new T at target.
func UnmarshalAs[T any](c *Codec, data []byte, wire, target Version) (T, error) {
	var out T
	err := c.UnmarshalFrom(data, &out, wire, target)
	return out, err
}
