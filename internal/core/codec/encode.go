package codec

import (
	"fmt"
	"reflect"

	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

type encoder struct {
	engine *Engine
	w      encoding.Writer
	target version.Selector
}

func (p *encoder) value(v reflect.Value) error {
	t := v.Type()

	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		if v.CanAddr() && v.Addr().Type().Implements(marshalerType) {
			return v.Addr().Interface().(Marshaler).MarshalVersioned(p.w, p.target)
		}
		if t.Implements(marshalerType) {
			return v.Interface().(Marshaler).MarshalVersioned(p.w, p.target)
		}
	}

	if desc, ok := p.engine.descriptor(t); ok {
		if desc.Kind() == schema.KindEnum {
			return p.enum(desc, v)
		}
		return p.versioned(desc, v)
	}

	switch t.Kind() {
	case reflect.Bool:
		return p.w.WriteBool(v.Bool())
	case reflect.Int8:
		return p.w.WriteInt8(int8(v.Int()))
	case reflect.Int16:
		return p.w.WriteInt16(int16(v.Int()))
	case reflect.Int32:
		return p.w.WriteInt32(int32(v.Int()))
	case reflect.Int, reflect.Int64:
		return p.w.WriteInt64(v.Int())
	case reflect.Uint8:
		return p.w.WriteUint8(uint8(v.Uint()))
	case reflect.Uint16:
		return p.w.WriteUint16(uint16(v.Uint()))
	case reflect.Uint32:
		return p.w.WriteUint32(uint32(v.Uint()))
	case reflect.Uint, reflect.Uint64:
		return p.w.WriteUint64(v.Uint())
	case reflect.Float32:
		return p.w.WriteFloat32(float32(v.Float()))
	case reflect.Float64:
		return p.w.WriteFloat64(v.Float())
	case reflect.String:
		return p.w.WriteString(v.String())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && !p.custom(t.Elem()) {
			return p.w.WriteBytes(v.Bytes())
		}
		if err := p.w.WriteLen(v.Len()); err != nil {
			return err
		}
		return p.elements(v)
	case reflect.Array:
		return p.elements(v)
	case reflect.Map:
		return p.mapping(v)
	case reflect.Pointer:
		if err := p.w.WriteBool(!v.IsNil()); err != nil || v.IsNil() {
			return err
		}
		return p.value(v.Elem())
	case reflect.Struct:
		return p.plain(v)
	}
	return schema.NewError(schema.ErrUnsupportedType, t.String(), "")
}

// custom reports whether t has its own encoding and therefore cannot be
// written as raw bytes.
func (p *encoder) custom(t reflect.Type) bool {
	if _, ok := p.engine.descriptor(t); ok {
		return true
	}
	return t.Implements(marshalerType) || reflect.PointerTo(t).Implements(marshalerType)
}

func (p *encoder) versioned(desc *schema.TypeDescriptor, v reflect.Value) error {
	target := p.target.VersionOf(desc.Name())
	if !desc.Range().Contains(target) {
		return schema.NewError(schema.ErrUnsupportedVersion, desc.Name(), "").
			WithContext("target", target).
			WithContext("range", desc.Range().String())
	}
	for _, f := range p.engine.res.Fields(desc, target) {
		if err := p.value(v.Field(f.Index)); err != nil {
			return schema.AtPath(err, desc.Name(), f.Name)
		}
	}
	return nil
}

func (p *encoder) enum(desc *schema.TypeDescriptor, v reflect.Value) error {
	target := p.target.VersionOf(desc.Name())
	if !desc.Range().Contains(target) {
		return schema.NewError(schema.ErrUnsupportedVersion, desc.Name(), "").
			WithContext("target", target).
			WithContext("range", desc.Range().String())
	}
	disc, payload, err := desc.Discriminant(v)
	if err != nil {
		return err
	}
	out, err := p.engine.res.VariantForEncode(desc, target, disc)
	if err != nil {
		return err
	}
	src, _ := desc.Variant(disc)
	if err = p.w.WriteUint32(out); err != nil {
		return schema.AtPath(err, desc.Name(), src.Name)
	}
	if desc.IsIntegerEnum() {
		return nil
	}

	written, _ := desc.Variant(out)
	if out != disc {
		payload, err = downgrade(desc, src, written, payload, target)
		if err != nil {
			return err
		}
	}
	if err = p.value(addressable(payload)); err != nil {
		return schema.AtPath(err, desc.Name(), written.Name)
	}
	return nil
}

// downgrade converts the payload of src into the payload of its fallback.
func downgrade(desc *schema.TypeDescriptor, src, fb schema.VariantSpec, payload reflect.Value, target version.Version) (reflect.Value, error) {
	if src.Downgrade == nil {
		return unitPayload(fb), nil
	}
	converted, err := src.Downgrade(payload.Interface(), target)
	if err != nil {
		return reflect.Value{}, schema.NewError(schema.ErrInvalidValue, desc.Name(), "downgrade").
			WithPath(src.Name).
			WithCause(err)
	}
	cv := reflect.ValueOf(converted)
	if !cv.IsValid() || cv.Type() != fb.Payload {
		return reflect.Value{}, schema.NewError(schema.ErrInvalidValue, desc.Name(),
			fmt.Sprintf("downgrade returned %T, want %s", converted, fb.Payload)).WithPath(src.Name)
	}
	return cv, nil
}

func unitPayload(s schema.VariantSpec) reflect.Value {
	if s.Payload.Kind() == reflect.Pointer {
		return reflect.New(s.Payload.Elem())
	}
	return reflect.New(s.Payload).Elem()
}

func (p *encoder) elements(v reflect.Value) error {
	for i := range v.Len() {
		if err := p.value(v.Index(i)); err != nil {
			return schema.AtPath(err, v.Type().String(), fmt.Sprintf("[%d]", i))
		}
	}
	return nil
}

func (p *encoder) mapping(v reflect.Value) error {
	keys, err := sortedKeys(v)
	if err != nil {
		return err
	}
	if err = p.w.WriteLen(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		seg := fmt.Sprintf("[%v]", k.Interface())
		if err = p.value(addressable(k)); err != nil {
			return schema.AtPath(err, v.Type().String(), seg)
		}
		if err = p.value(addressable(v.MapIndex(k))); err != nil {
			return schema.AtPath(err, v.Type().String(), seg)
		}
	}
	return nil
}

// plain writes an unregistered struct: every exported field, in order.
func (p *encoder) plain(v reflect.Value) error {
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
