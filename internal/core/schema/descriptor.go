package schema

import (
	"fmt"
	"reflect"

	"github.com/zeusync/versionize/pkg/version"
)

type Kind uint8

const (
	KindStruct Kind = iota + 1
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DefaultFunc produces the value of a field that is absent at target. It
// must be a pure function of target.
type DefaultFunc func(target version.Version) any

// DowngradeFunc turns the payload of a variant into the payload of its
// fallback variant.
type DowngradeFunc func(payload any, target version.Version) (any, error)

// FieldSpec describes one struct field.
type FieldSpec struct {
	Name  string
	Index int
	Type  reflect.Type
	Range version.Range
	// Default is used on decode when the field is not read from the wire.
	Default DefaultFunc
	// Optional fields fall back to their zero value when absent and no
	// Default is set. Pointer fields are always optional.
	Optional bool

	defaultType reflect.Type
	defaultName string
}

// ActiveAt reports whether the field takes part in (de)serialization at v.
func (f FieldSpec) ActiveAt(v version.Version) bool {
	return f.Range.Contains(v)
}

// CanBeAbsent reports whether decode may leave the field unread.
func (f FieldSpec) CanBeAbsent() bool {
	return f.Default != nil || f.Optional || f.Type.Kind() == reflect.Pointer
}

// Absent computes the value of the field when it is not read at target.
func (f FieldSpec) Absent(typeName string, target version.Version) (reflect.Value, error) {
	if f.Default == nil {
		if f.Optional || f.Type.Kind() == reflect.Pointer {
			return reflect.Zero(f.Type), nil
		}
		return reflect.Value{}, errorf(ErrMissingDefault, typeName,
			"field %s is absent at version %d and has no default", f.Name, target).
			WithPath(f.Name)
	}

	raw := f.Default(target)
	if raw == nil {
		switch f.Type.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(f.Type), nil
		}
		return reflect.Value{}, errorf(ErrDefaultType, typeName,
			"default for field %s returned nil for non-nilable %s", f.Name, f.Type).WithPath(f.Name)
	}

	v := reflect.ValueOf(raw)
	switch {
	case v.Type().AssignableTo(f.Type):
		return v, nil
	case v.Type().ConvertibleTo(f.Type) && v.Kind() == f.Type.Kind():
		return v.Convert(f.Type), nil
	}
	return reflect.Value{}, errorf(ErrDefaultType, typeName,
		"default for field %s returned %s, want %s", f.Name, v.Type(), f.Type).WithPath(f.Name)
}

// VariantSpec describes one enum variant.
type VariantSpec struct {
	Name         string
	Discriminant uint32
	Range        version.Range
	// Payload is the concrete Go type carried by the variant. It is nil for
	// variants of integer enums.
	Payload     reflect.Type
	Fallback    uint32
	HasFallback bool
	// EncodeFallback also applies the fallback on encode. Without it,
	// writing the variant at a version outside its range fails.
	EncodeFallback bool
	// Downgrade converts the payload when the fallback carries data.
	Downgrade DowngradeFunc
}

// ActiveAt reports whether the variant may be written or constructed at v.
func (s VariantSpec) ActiveAt(v version.Version) bool {
	return s.Range.Contains(v)
}

// IsUnit reports whether the variant carries no data.
func (s VariantSpec) IsUnit() bool {
	if s.Payload == nil {
		return true
	}
	t := s.Payload
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t.NumField() == 0
}

// TypeDescriptor is the immutable schema of one versioned struct or enum.
// Descriptors are built once, registered, and then shared read-only.
type TypeDescriptor struct {
	name     string
	kind     Kind
	goType   reflect.Type
	rng      version.Range
	fields   []FieldSpec
	variants []VariantSpec

	latest      version.Version
	byDisc      map[uint32]int
	byType      map[reflect.Type]int
	fingerprint uint64
}

func (d *TypeDescriptor) Name() string            { return d.name }
func (d *TypeDescriptor) Kind() Kind              { return d.kind }
func (d *TypeDescriptor) GoType() reflect.Type    { return d.goType }
func (d *TypeDescriptor) Range() version.Range    { return d.rng }
func (d *TypeDescriptor) Fingerprint() uint64     { return d.fingerprint }
func (d *TypeDescriptor) Latest() version.Version { return d.latest }

// Fields returns the struct fields in declaration order. The slice is
// shared and must not be modified.
func (d *TypeDescriptor) Fields() []FieldSpec { return d.fields }

// Variants returns the enum variants in declaration order. The slice is
// shared and must not be modified.
func (d *TypeDescriptor) Variants() []VariantSpec { return d.variants }

// Variant looks up a variant by discriminant.
func (d *TypeDescriptor) Variant(disc uint32) (VariantSpec, bool) {
	i, ok := d.byDisc[disc]
	if !ok {
		return VariantSpec{}, false
	}
	return d.variants[i], true
}

// IsIntegerEnum reports whether the enum is backed by an integer type.
func (d *TypeDescriptor) IsIntegerEnum() bool {
	return d.kind == KindEnum && d.goType.Kind() != reflect.Interface
}

// Discriminant returns the variant of an enum value. For interface enums it
// also returns the payload.
func (d *TypeDescriptor) Discriminant(v reflect.Value) (uint32, reflect.Value, error) {
	if d.kind != KindEnum {
		return 0, reflect.Value{}, errorf(ErrInvalidDescriptor, d.name, "not an enum")
	}
	if d.IsIntegerEnum() {
		var disc uint64
		if v.CanInt() {
			n := v.Int()
			if n < 0 {
				return 0, reflect.Value{}, errorf(ErrUnsupportedVariant, d.name, "negative discriminant %d", n)
			}
			disc = uint64(n)
		} else {
			disc = v.Uint()
		}
		if _, ok := d.byDisc[uint32(disc)]; !ok || disc > uint64(^uint32(0)) {
			return 0, reflect.Value{}, errorf(ErrUnsupportedVariant, d.name, "unknown discriminant %d", disc)
		}
		return uint32(disc), reflect.Value{}, nil
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, reflect.Value{}, errorf(ErrInvalidValue, d.name, "nil enum value")
		}
		v = v.Elem()
	}
	i, ok := d.byType[v.Type()]
	if !ok {
		return 0, reflect.Value{}, errorf(ErrUnsupportedVariant, d.name, "%s is not a variant", v.Type())
	}
	return d.variants[i].Discriminant, v, nil
}

// computeLatest returns the largest version mentioned by any range, i.e.
// the version at which the layout last changed.
func (d *TypeDescriptor) computeLatest() version.Version {
	latest := d.rng.Max()
	for _, f := range d.fields {
		latest = max(latest, f.Range.Max())
	}
	for _, v := range d.variants {
		latest = max(latest, v.Range.Max())
	}
	return latest
}

func (d *TypeDescriptor) String() string {
	return fmt.Sprintf("%s %s %s", d.kind, d.name, d.rng)
}
