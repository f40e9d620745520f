package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/zeusync/versionize/pkg/version"
)

// TagName is the struct tag read by Struct.
const TagName = "versionize"

// FieldOption adjusts a field declaration.
type FieldOption func(*FieldSpec)

// WithDefault sets the producer used when the field is absent.
func WithDefault(fn DefaultFunc) FieldOption {
	return func(f *FieldSpec) { f.Default = fn }
}

// WithDefaultValue is WithDefault with a compile-time checked result type.
func WithDefaultValue[T any](fn func(version.Version) T) FieldOption {
	return func(f *FieldSpec) {
		f.Default = func(v version.Version) any { return fn(v) }
		f.defaultType = reflect.TypeFor[T]()
	}
}

// WithConstDefault uses the same value at every version.
func WithConstDefault(value any) FieldOption {
	return func(f *FieldSpec) {
		f.Default = func(version.Version) any { return value }
		if value != nil {
			f.defaultType = reflect.TypeOf(value)
		}
	}
}

// AsOptional lets the field decode to its zero value when absent.
func AsOptional() FieldOption {
	return func(f *FieldSpec) { f.Optional = true }
}

// StructBuilder assembles the descriptor of a struct type. Every exported
// field of the Go struct is part of the descriptor, in declaration order,
// and is always present unless its tag or a Field call says otherwise.
//
//	type Device struct {
//		Name     string
//		Firmware string `versionize:"since=2,default=unknownFirmware"`
//		Legacy   int    `versionize:"until=3,optional"`
//	}
type StructBuilder struct {
	name     string
	goType   reflect.Type
	rng      version.Range
	fields   []FieldSpec
	byName   map[string]int
	defaults map[string]DefaultFunc
	errs     []error
}

// Struct starts a descriptor for T, which must be a struct type.
func Struct[T any](name string) *StructBuilder {
	return NewStructBuilder(name, reflect.TypeFor[T]())
}

// NewStructBuilder is Struct for a reflect.Type.
func NewStructBuilder(name string, t reflect.Type) *StructBuilder {
	b := &StructBuilder{name: name, goType: t, byName: make(map[string]int)}
	if t.Kind() != reflect.Struct {
		b.errs = append(b.errs, fmt.Errorf("%s is not a struct", t))
		return b
	}
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, hasTag := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		f := FieldSpec{Name: sf.Name, Index: i, Type: sf.Type}
		if hasTag {
			if err := parseFieldTag(&f, tag); err != nil {
				b.errs = append(b.errs, fmt.Errorf("field %s: %w", sf.Name, err))
			}
		}
		b.byName[sf.Name] = len(b.fields)
		b.fields = append(b.fields, f)
	}
	return b
}

// Supports sets the overall version range of the type. Decoding data whose
// version lies past a bounded end fails with ErrVersionTooNew.
func (b *StructBuilder) Supports(r version.Range) *StructBuilder {
	b.rng = r
	return b
}

// Field sets the range and options of a field, replacing what its tag said.
func (b *StructBuilder) Field(name string, r version.Range, opts ...FieldOption) *StructBuilder {
	i, ok := b.byName[name]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("no exported field %s in %s", name, b.goType))
		return b
	}
	f := &b.fields[i]
	f.Range = r
	f.defaultName = ""
	for _, opt := range opts {
		opt(f)
	}
	return b
}

// Skip removes a field from the descriptor; it is never written or read.
func (b *StructBuilder) Skip(name string) *StructBuilder {
	i, ok := b.byName[name]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("no exported field %s in %s", name, b.goType))
		return b
	}
	b.fields = append(b.fields[:i], b.fields[i+1:]...)
	delete(b.byName, name)
	for n, j := range b.byName {
		if j > i {
			b.byName[n] = j - 1
		}
	}
	return b
}

// Defaults registers producers referenced by name from struct tags.
func (b *StructBuilder) Defaults(fns map[string]DefaultFunc) *StructBuilder {
	if b.defaults == nil {
		b.defaults = make(map[string]DefaultFunc, len(fns))
	}
	for k, fn := range fns {
		b.defaults[k] = fn
	}
	return b
}

// Build validates the declaration and returns the descriptor.
func (b *StructBuilder) Build() (*TypeDescriptor, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, NewError(ErrInvalidDescriptor, b.name, "").WithCause(err)
	}
	if b.name == "" {
		return nil, NewError(ErrInvalidDescriptor, b.goType.String(), "empty type name")
	}
	if err := b.rng.Validate(); err != nil {
		return nil, NewError(ErrInvalidDescriptor, b.name, "type range").WithCause(err)
	}

	fields := make([]FieldSpec, len(b.fields))
	copy(fields, b.fields)
	for i := range fields {
		f := &fields[i]
		if err := f.Range.Validate(); err != nil {
			return nil, NewError(ErrInvalidDescriptor, b.name, "").WithPath(f.Name).WithCause(err)
		}
		if f.defaultName != "" {
			fn, found := b.defaults[f.defaultName]
			if !found {
				return nil, errorf(ErrInvalidDescriptor, b.name, "unknown default function %q", f.defaultName).WithPath(f.Name)
			}
			f.Default = fn
		}
		if f.defaultType != nil && !defaultFits(f.defaultType, f.Type) {
			return nil, errorf(ErrDefaultType, b.name, "default produces %s, field is %s", f.defaultType, f.Type).WithPath(f.Name)
		}
	}

	d := &TypeDescriptor{
		name:   b.name,
		kind:   KindStruct,
		goType: b.goType,
		rng:    b.rng,
		fields: fields,
	}
	d.latest = d.computeLatest()
	d.fingerprint = fingerprint(d)
	return d, nil
}

// MustBuild is Build that panics on error. Meant for package-level
// descriptor variables.
func (b *StructBuilder) MustBuild() *TypeDescriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func defaultFits(produced, field reflect.Type) bool {
	return produced.AssignableTo(field) ||
		(produced.ConvertibleTo(field) && produced.Kind() == field.Kind())
}

// parseFieldTag understands since=N, until=N, range=a..b, default=name
// and optional.
func parseFieldTag(f *FieldSpec, tag string) error {
	var (
		start, end version.Version
		bounded    bool
	)
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, _ := strings.Cut(part, "=")
		var err error
		switch key {
		case "since", "start":
			start, err = version.Parse(val)
		case "until", "end":
			end, err = version.Parse(val)
			bounded = true
		case "range":
			f.Range, err = version.ParseRange(val)
			start, end, bounded = f.Range.Start, f.Range.End, f.Range.Bounded()
		case "default":
			if val == "" {
				return fmt.Errorf("empty default function name")
			}
			f.defaultName = val
		case "optional":
			f.Optional = true
		default:
			return fmt.Errorf("unknown %s tag option %q", TagName, key)
		}
		if err != nil {
			return err
		}
	}
	if bounded {
		f.Range = version.Between(start, end)
	} else {
		f.Range = version.Since(start)
	}
	return f.Range.Validate()
}
