package schema

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zeusync/versionize/pkg/version"
)

// VariantOption adjusts a variant declaration.
type VariantOption func(*VariantSpec)

// FallbackTo names the variant substituted when this one is not valid at
// the target version.
func FallbackTo(disc uint32) VariantOption {
	return func(s *VariantSpec) {
		s.Fallback = disc
		s.HasFallback = true
	}
}

// SubstituteOnEncode makes encode write the fallback variant instead of
// failing when the variant is not valid at the target version.
func SubstituteOnEncode() VariantOption {
	return func(s *VariantSpec) { s.EncodeFallback = true }
}

// WithDowngrade converts the payload when falling back to a variant that
// carries data.
func WithDowngrade(fn DowngradeFunc) VariantOption {
	return func(s *VariantSpec) { s.Downgrade = fn }
}

// EnumBuilder assembles the descriptor of an enum. Two Go shapes are
// supported: an integer type whose values are the discriminants, and an
// interface type whose variants are distinct concrete payload types.
type EnumBuilder struct {
	name     string
	goType   reflect.Type
	rng      version.Range
	variants []VariantSpec
	errs     []error
}

// Enum starts a descriptor for T, an integer or interface type.
func Enum[T any](name string) *EnumBuilder {
	return NewEnumBuilder(name, reflect.TypeFor[T]())
}

// NewEnumBuilder is Enum for a reflect.Type.
func NewEnumBuilder(name string, t reflect.Type) *EnumBuilder {
	b := &EnumBuilder{name: name, goType: t}
	if !isIntegerKind(t.Kind()) && t.Kind() != reflect.Interface {
		b.errs = append(b.errs, fmt.Errorf("%s is neither an integer nor an interface type", t))
	}
	return b
}

// Supports sets the overall version range of the enum. Fallbacks are
// validated against it.
func (b *EnumBuilder) Supports(r version.Range) *EnumBuilder {
	b.rng = r
	return b
}

// Unit declares a variant of an integer enum.
func (b *EnumBuilder) Unit(name string, disc uint32, r version.Range, opts ...VariantOption) *EnumBuilder {
	if b.goType.Kind() == reflect.Interface {
		b.errs = append(b.errs, fmt.Errorf("variant %s: interface enums need a payload type", name))
		return b
	}
	return b.add(VariantSpec{Name: name, Discriminant: disc, Range: r}, opts)
}

// Variant declares a variant of an interface enum carried by the concrete
// type of prototype.
func (b *EnumBuilder) Variant(name string, disc uint32, r version.Range, prototype any, opts ...VariantOption) *EnumBuilder {
	if b.goType.Kind() != reflect.Interface {
		b.errs = append(b.errs, fmt.Errorf("variant %s: integer enums cannot carry payloads", name))
		return b
	}
	if prototype == nil {
		b.errs = append(b.errs, fmt.Errorf("variant %s: nil prototype", name))
		return b
	}
	pt := reflect.TypeOf(prototype)
	if !pt.Implements(b.goType) {
		b.errs = append(b.errs, fmt.Errorf("variant %s: %s does not implement %s", name, pt, b.goType))
		return b
	}
	return b.add(VariantSpec{Name: name, Discriminant: disc, Range: r, Payload: pt}, opts)
}

func (b *EnumBuilder) add(s VariantSpec, opts []VariantOption) *EnumBuilder {
	for _, opt := range opts {
		opt(&s)
	}
	b.variants = append(b.variants, s)
	return b
}

// Build validates the declaration, including every fallback edge, and
// returns the descriptor.
func (b *EnumBuilder) Build() (*TypeDescriptor, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, NewError(ErrInvalidDescriptor, b.name, "").WithCause(err)
	}
	if b.name == "" {
		return nil, NewError(ErrInvalidDescriptor, b.goType.String(), "empty type name")
	}
	if len(b.variants) == 0 {
		return nil, NewError(ErrInvalidDescriptor, b.name, "enum without variants")
	}
	if err := b.rng.Validate(); err != nil {
		return nil, NewError(ErrInvalidDescriptor, b.name, "type range").WithCause(err)
	}

	d := &TypeDescriptor{
		name:     b.name,
		kind:     KindEnum,
		goType:   b.goType,
		rng:      b.rng,
		variants: make([]VariantSpec, len(b.variants)),
		byDisc:   make(map[uint32]int, len(b.variants)),
		byType:   make(map[reflect.Type]int, len(b.variants)),
	}
	copy(d.variants, b.variants)

	names := make(map[string]struct{}, len(b.variants))
	for i, s := range d.variants {
		if err := s.Range.Validate(); err != nil {
			return nil, NewError(ErrInvalidDescriptor, b.name, "").WithPath(s.Name).WithCause(err)
		}
		if _, dup := d.byDisc[s.Discriminant]; dup {
			return nil, errorf(ErrInvalidDescriptor, b.name, "duplicate discriminant %d", s.Discriminant).WithPath(s.Name)
		}
		if _, dup := names[s.Name]; dup {
			return nil, errorf(ErrInvalidDescriptor, b.name, "duplicate variant name").WithPath(s.Name)
		}
		if s.Payload != nil {
			if _, dup := d.byType[s.Payload]; dup {
				return nil, errorf(ErrInvalidDescriptor, b.name, "payload type %s used twice", s.Payload).WithPath(s.Name)
			}
			d.byType[s.Payload] = i
		}
		if b.goType.Kind() != reflect.Interface && uint64(s.Discriminant) > maxDiscriminant(b.goType) {
			return nil, errorf(ErrInvalidDescriptor, b.name, "discriminant %d overflows %s", s.Discriminant, b.goType).WithPath(s.Name)
		}
		d.byDisc[s.Discriminant] = i
		names[s.Name] = struct{}{}
	}

	for _, s := range d.variants {
		if err := validateFallback(d, s); err != nil {
			return nil, err
		}
	}

	d.latest = d.computeLatest()
	d.fingerprint = fingerprint(d)
	return d, nil
}

// MustBuild is Build that panics on error.
func (b *EnumBuilder) MustBuild() *TypeDescriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// validateFallback checks that wherever s is not valid within the enum's
// overall range, its fallback is. A single hop therefore always resolves.
func validateFallback(d *TypeDescriptor, s VariantSpec) error {
	if !s.HasFallback {
		if s.EncodeFallback || s.Downgrade != nil {
			return errorf(ErrInvalidFallback, d.name, "downgrade options without a fallback").WithPath(s.Name)
		}
		return nil
	}
	target, ok := d.Variant(s.Fallback)
	if !ok {
		return errorf(ErrInvalidFallback, d.name, "fallback %d does not exist", s.Fallback).WithPath(s.Name)
	}
	if target.Discriminant == s.Discriminant {
		return errorf(ErrInvalidFallback, d.name, "variant falls back to itself").WithPath(s.Name)
	}
	for _, gap := range outside(d.rng, s.Range) {
		if !target.Range.Covers(gap) {
			return errorf(ErrInvalidFallback, d.name,
				"fallback %s %s does not cover %s", target.Name, target.Range, gap).WithPath(s.Name)
		}
	}
	if !target.IsUnit() && s.Downgrade == nil {
		return errorf(ErrInvalidFallback, d.name,
			"fallback %s carries data; a downgrade function is required", target.Name).WithPath(s.Name)
	}
	return nil
}

// outside returns the parts of overall not covered by r.
func outside(overall, r version.Range) []version.Range {
	var gaps []version.Range
	if r.Start > overall.Start {
		lo, hi := overall.Start, r.Start-1
		if overall.Bounded() {
			hi = min(hi, overall.End)
		}
		if lo <= hi {
			gaps = append(gaps, version.Between(lo, hi))
		}
	}
	if r.Bounded() && r.End < version.Max {
		lo := max(r.End+1, overall.Start)
		switch {
		case !overall.Bounded():
			gaps = append(gaps, version.Since(lo))
		case lo <= overall.End:
			gaps = append(gaps, version.Between(lo, overall.End))
		}
	}
	return gaps
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func maxDiscriminant(t reflect.Type) uint64 {
	bits := t.Bits()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits--
	}
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}
