package codec

import (
	"fmt"
	"reflect"

	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

// maxPrealloc caps the capacity reserved from a length prefix before any
// element has been read.
const maxPrealloc = 1024

type decoder struct {
	engine       *Engine
	r            encoding.Reader
	wire, target version.Selector
}

// value decodes into v, which must be settable.
func (p *decoder) value(v reflect.Value) error {
	t := v.Type()

	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface &&
		reflect.PointerTo(t).Implements(unmarshalerType) {
		return v.Addr().Interface().(Unmarshaler).UnmarshalVersioned(p.r, p.wire, p.target)
	}

	if desc, ok := p.engine.descriptor(t); ok {
		if desc.Kind() == schema.KindEnum {
			return p.enum(desc, v)
		}
		return p.versioned(desc, v)
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := p.r.ReadBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int8:
		n, err := p.r.ReadInt8()
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
	case reflect.Int16:
		n, err := p.r.ReadInt16()
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
	case reflect.Int32:
		n, err := p.r.ReadInt32()
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
	case reflect.Int, reflect.Int64:
		n, err := p.r.ReadInt64()
		if err != nil {
			return err
		}
		if v.OverflowInt(n) {
			return schema.NewError(schema.ErrInvalidValue, t.String(), fmt.Sprintf("%d overflows", n))
		}
		v.SetInt(n)
	case reflect.Uint8:
		n, err := p.r.ReadUint8()
		if err != nil {
			return err
		}
		v.SetUint(uint64(n))
	case reflect.Uint16:
		n, err := p.r.ReadUint16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(n))
	case reflect.Uint32:
		n, err := p.r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(n))
	case reflect.Uint, reflect.Uint64:
		n, err := p.r.ReadUint64()
		if err != nil {
			return err
		}
		if v.OverflowUint(n) {
			return schema.NewError(schema.ErrInvalidValue, t.String(), fmt.Sprintf("%d overflows", n))
		}
		v.SetUint(n)
	case reflect.Float32:
		f, err := p.r.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case reflect.Float64:
		f, err := p.r.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		s, err := p.r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Slice:
		return p.slice(v)
	case reflect.Array:
		return p.elements(v)
	case reflect.Map:
		return p.mapping(v)
	case reflect.Pointer:
		present, err := p.r.ReadBool()
		if err != nil {
			return err
		}
		if !present {
			v.SetZero()
			return nil
		}
		elem := reflect.New(t.Elem())
		if err = p.value(elem.Elem()); err != nil {
			return err
		}
		v.Set(elem)
	case reflect.Struct:
		return p.plain(v)
	default:
		return schema.NewError(schema.ErrUnsupportedType, t.String(), "")
	}
	return nil
}

func (p *decoder) checkRange(desc *schema.TypeDescriptor) (wire, target version.Version, err error) {
	wire = p.wire.VersionOf(desc.Name())
	target = p.target.VersionOf(desc.Name())
	rng := desc.Range()
	switch {
	case rng.Bounded() && wire > rng.End:
		return 0, 0, schema.NewError(schema.ErrVersionTooNew, desc.Name(), "").
			WithContext("wire", wire).
			WithContext("range", rng.String())
	case !rng.Contains(wire) || !rng.Contains(target):
		return 0, 0, schema.NewError(schema.ErrUnsupportedVersion, desc.Name(), "").
			WithContext("wire", wire).
			WithContext("target", target).
			WithContext("range", rng.String())
	}
	return wire, target, nil
}

// versioned reads the fields present at the wire version and fills the
// fields the target version has but the wire does not.
func (p *decoder) versioned(desc *schema.TypeDescriptor, v reflect.Value) error {
	wire, target, err := p.checkRange(desc)
	if err != nil {
		return err
	}

	if wire == target {
		for _, f := range p.engine.res.Fields(desc, target) {
			if err = p.value(v.Field(f.Index)); err != nil {
				return schema.AtPath(err, desc.Name(), f.Name)
			}
		}
		for _, f := range desc.Fields() {
			if f.ActiveAt(target) {
				continue
			}
			if err = fill(desc, f, v.Field(f.Index), target); err != nil {
				return err
			}
		}
		return nil
	}

	for _, f := range desc.Fields() {
		fv := v.Field(f.Index)
		onWire, atTarget := f.ActiveAt(wire), f.ActiveAt(target)
		switch {
		case onWire && atTarget:
			if err = p.value(fv); err != nil {
				return schema.AtPath(err, desc.Name(), f.Name)
			}
		case onWire:
			if err = p.value(reflect.New(f.Type).Elem()); err != nil {
				return schema.AtPath(err, desc.Name(), f.Name)
			}
			if err = fill(desc, f, fv, target); err != nil {
				return err
			}
		case atTarget && wire > target:
			return schema.NewError(schema.ErrVersionTooNew, desc.Name(), "field dropped by newer data").
				WithPath(f.Name).
				WithContext("wire", wire).
				WithContext("target", target)
		default:
			if err = fill(desc, f, fv, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// fill sets a field that was not read. Errors carry the field path.
func fill(desc *schema.TypeDescriptor, f schema.FieldSpec, fv reflect.Value, target version.Version) error {
	val, err := f.Absent(desc.Name(), target)
	if err != nil {
		return err
	}
	fv.Set(val)
	return nil
}

func (p *decoder) enum(desc *schema.TypeDescriptor, v reflect.Value) error {
	_, target, err := p.checkRange(desc)
	if err != nil {
		return err
	}
	disc, err := p.r.ReadUint32()
	if err != nil {
		return err
	}
	out, err := p.engine.res.Variant(desc, target, disc)
	if err != nil {
		return err
	}
	src, _ := desc.Variant(disc)

	if desc.IsIntegerEnum() {
		if v.CanInt() {
			v.SetInt(int64(out))
		} else {
			v.SetUint(uint64(out))
		}
		return nil
	}

	payload := reflect.New(src.Payload).Elem()
	if err = p.value(payload); err != nil {
		return schema.AtPath(err, desc.Name(), src.Name)
	}
	if out != disc {
		fb, _ := desc.Variant(out)
		if payload, err = downgrade(desc, src, fb, payload, target); err != nil {
			return err
		}
	}
	v.Set(payload)
	return nil
}

func (p *decoder) slice(v reflect.Value) error {
	t := v.Type()
	if t.Elem().Kind() == reflect.Uint8 && !p.custom(t.Elem()) {
		b, err := p.r.ReadBytes()
		if err != nil {
			return err
		}
		if b == nil {
			v.SetZero()
			return nil
		}
		v.SetBytes(b)
		return nil
	}
	n, err := p.r.ReadLen()
	if err != nil {
		return err
	}
	if n == 0 {
		v.SetZero()
		return nil
	}
	s := reflect.MakeSlice(t, 0, min(n, maxPrealloc))
	for i := range n {
		s = reflect.Append(s, reflect.Zero(t.Elem()))
		if err = p.value(s.Index(i)); err != nil {
			return schema.AtPath(err, t.String(), fmt.Sprintf("[%d]", i))
		}
	}
	v.Set(s)
	return nil
}

func (p *decoder) custom(t reflect.Type) bool {
	if _, ok := p.engine.descriptor(t); ok {
		return true
	}
	return reflect.PointerTo(t).Implements(unmarshalerType)
}

func (p *decoder) elements(v reflect.Value) error {
	for i := range v.Len() {
		if err := p.value(v.Index(i)); err != nil {
			return schema.AtPath(err, v.Type().String(), fmt.Sprintf("[%d]", i))
		}
	}
	return nil
}

func (p *decoder) mapping(v reflect.Value) error {
	t := v.Type()
	n, err := p.r.ReadLen()
	if err != nil {
		return err
	}
	if n == 0 {
		v.SetZero()
		return nil
	}
	m := reflect.MakeMapWithSize(t, min(n, maxPrealloc))
	for i := range n {
		k := reflect.New(t.Key()).Elem()
		if err = p.value(k); err != nil {
			return schema.AtPath(err, t.String(), fmt.Sprintf("[%d]", i))
		}
		e := reflect.New(t.Elem()).Elem()
		if err = p.value(e); err != nil {
			return schema.AtPath(err, t.String(), fmt.Sprintf("[%v]", k.Interface()))
		}
		m.SetMapIndex(k, e)
	}
	v.Set(m)
	return nil
}

func (p *decoder) plain(v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get(schema.TagName) == "-" {
			continue
		}
		if err := p.value(v.Field(i)); err != nil {
			return schema.AtPath(err, t.String(), sf.Name)
		}
	}
	return nil
}
