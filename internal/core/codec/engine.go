// Package codec walks Go values with their registered descriptors and
// drives an encoding.Writer or encoding.Reader field by field, choosing the
// fields and variants that exist at the requested version.
//
// Sequences and maps are written as a length followed by their elements,
// with no presence marker, so an empty collection and a nil one share an
// encoding. Decoding yields nil for both.
package codec

import (
	"reflect"

	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/resolver"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

// Marshaler is implemented by types that write their own versioned form.
type Marshaler interface {
	MarshalVersioned(w encoding.Writer, target version.Selector) error
}

// Unmarshaler is the decode counterpart of Marshaler. wire selects the
// versions the data was written at, target the versions to produce.
type Unmarshaler interface {
	UnmarshalVersioned(r encoding.Reader, wire, target version.Selector) error
}

var (
	marshalerType   = reflect.TypeFor[Marshaler]()
	unmarshalerType = reflect.TypeFor[Unmarshaler]()
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report failed calls.
func WithLogger(l log.Log) Option {
	return func(e *Engine) { e.logger = l }
}

// WithResolutionCache memoizes field resolution per (type, version).
func WithResolutionCache(c *resolver.Cache) Option {
	return func(e *Engine) { e.res = resolver.New(c) }
}

// Engine encodes and decodes values of registered types. It keeps no
// per-call state and is safe for concurrent use once its registry is no
// longer modified.
type Engine struct {
	reg    registry.SchemaRegistry
	res    resolver.Resolver
	logger log.Log
}

// New creates an engine over reg.
func New(reg registry.SchemaRegistry, opts ...Option) *Engine {
	e := &Engine{
		reg:    reg,
		res:    resolver.New(nil),
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves types with.
func (e *Engine) Registry() registry.SchemaRegistry { return e.reg }

// Encode writes value at version v. Every nested versioned type is written
// at the same numeric version. Pass a pointer to an interface variable to
// encode an interface enum at top level; a bare variant payload is written
// as its enum when exactly one registered enum carries it.
func (e *Engine) Encode(w encoding.Writer, value any, v version.Version) error {
	return e.EncodeSelected(w, value, version.Fixed(v))
}

// EncodeSelected is Encode with a per-type version selector, typically
// obtained from version.Map.At.
func (e *Engine) EncodeSelected(w encoding.Writer, value any, target version.Selector) error {
	rv, err := e.root(value)
	if err != nil {
		return err
	}
	p := &encoder{engine: e, w: w, target: target}
	if err = p.value(rv); err != nil {
		err = schema.AtPath(err, e.typeName(rv.Type()), "")
		e.logger.Debug("Encode failed",
			log.String("type", e.typeName(rv.Type())),
			log.Error(err),
		)
	}
	return err
}

// Decode reads data written at v into the value ptr points to.
func (e *Engine) Decode(r encoding.Reader, ptr any, v version.Version) error {
	return e.DecodeSelected(r, ptr, version.Fixed(v), version.Fixed(v))
}

// DecodeFrom reads data written at wire and produces the value as seen at
// target. Fields added after target are read and discarded; fields not on
// the wire are defaulted. Data that dropped a field target still has fails
// with schema.ErrVersionTooNew.
func (e *Engine) DecodeFrom(r encoding.Reader, ptr any, wire, target version.Version) error {
	return e.DecodeSelected(r, ptr, version.Fixed(wire), version.Fixed(target))
}

// DecodeSelected is DecodeFrom with per-type version selectors.
func (e *Engine) DecodeSelected(r encoding.Reader, ptr any, wire, target version.Selector) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return schema.NewError(schema.ErrInvalidValue, "", "decode target must be a non-nil pointer")
	}
	p := &decoder{engine: e, r: r, wire: wire, target: target}
	err := p.value(rv.Elem())
	if err != nil {
		err = schema.AtPath(err, e.typeName(rv.Elem().Type()), "")
		e.logger.Debug("Decode failed",
			log.String("type", e.typeName(rv.Elem().Type())),
			log.Error(err),
		)
	}
	return err
}

// EncodeAs encodes value with its static type T, so interface enums can be
// passed directly.
func EncodeAs[T any](e *Engine, w encoding.Writer, value T, v version.Version) error {
	return e.Encode(w, &value, v)
}

// DecodeAs decodes a T written at v.
func DecodeAs[T any](e *Engine, r encoding.Reader, v version.Version) (T, error) {
	var out T
	err := e.Decode(r, &out, v)
	return out, err
}

// descriptor returns the registered descriptor of t, if any.
func (e *Engine) descriptor(t reflect.Type) (*schema.TypeDescriptor, bool) {
	return e.reg.LookupType(t)
}

func (e *Engine) typeName(t reflect.Type) string {
	if desc, ok := e.descriptor(t); ok {
		return desc.Name()
	}
	return t.String()
}

// root resolves the value Encode walks. Variant payloads of interface enums
// are boxed into their enum so the discriminant is written.
func (e *Engine) root(value any) (reflect.Value, error) {
	rv, err := root(value)
	if err != nil || rv.Kind() == reflect.Interface {
		return rv, err
	}
	if _, ok := e.descriptor(rv.Type()); ok {
		return rv, nil
	}
	outer := reflect.ValueOf(value)
	for _, v := range []reflect.Value{outer, rv} {
		enums := e.reg.EnumsOf(v.Type())
		switch {
		case len(enums) == 1:
			boxed := reflect.New(enums[0].GoType()).Elem()
			boxed.Set(v)
			return boxed, nil
		case len(enums) > 1:
			return rv, schema.NewError(schema.ErrInvalidValue, v.Type().String(),
				"payload of several enums; pass a pointer to the enum variable")
		}
		if v.Kind() != reflect.Pointer {
			break
		}
	}
	return rv, nil
}

// root turns the value handed to Encode into an addressable value,
// dereferencing one level of pointer.
func root(value any) (reflect.Value, error) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return rv, schema.NewError(schema.ErrInvalidValue, "", "cannot encode nil")
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return rv, schema.NewError(schema.ErrInvalidValue, rv.Type().String(), "cannot encode nil pointer")
		}
		return rv.Elem(), nil
	}
	return addressable(rv), nil
}

func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}
