package lcmtype

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode encodes msg against a resolved schema, prefixing the packed
// fingerprint. Values must use the decoder's representation: typed scalars,
// typed slices for the innermost primitive dimension, []any and
// map[string]any for the rest. Variable dimensions are read from msg and
// must agree with the lengths of the values they describe.
func Encode(s *Schema, msg map[string]any) ([]byte, error) {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.u64(s.Fingerprint())
	if err := e.encodeStruct(s, msg); err != nil {
		return nil, fmt.Errorf("lcmtype: encode %s: %w", s.QualifiedName(), err)
	}
	return e.buf, nil
}

type encoder struct{ buf []byte }

func (e *encoder) u8(v byte)    { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.u8(0)
}

func (e *encoder) encodeStruct(s *Schema, msg map[string]any) error {
	for _, f := range s.Fields {
		v, ok := msg[f.Name]
		if !ok {
			return fmt.Errorf("missing member %s", f.Name)
		}
		if err := e.encodeField(f, msg, 0, v); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func (e *encoder) encodeField(f *Field, msg map[string]any, dim int, v any) error {
	if dim == len(f.Dims) {
		if f.Kind == KindStruct {
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("expected map[string]any, got %T", v)
			}
			return e.encodeStruct(f.Struct, m)
		}
		return e.encodeScalar(f.Kind, v)
	}

	n, err := encodeDimCount(f.Dims[dim], msg)
	if err != nil {
		return err
	}
	if dim == len(f.Dims)-1 && f.Kind != KindStruct {
		return e.encodePrimitiveSlice(f.Kind, n, v)
	}

	elems, ok := v.([]any)
	if !ok {
		return fmt.Errorf("expected []any, got %T", v)
	}
	if len(elems) != n {
		return fmt.Errorf("dimension %s is %d, value has %d elements", f.Dims[dim], n, len(elems))
	}
	for _, el := range elems {
		if err := e.encodeField(f, msg, dim+1, el); err != nil {
			return err
		}
	}
	return nil
}

func encodeDimCount(dim Dim, msg map[string]any) (int, error) {
	if !dim.IsVar() {
		return dim.Size, nil
	}
	var n int64
	switch v := msg[dim.Var].(type) {
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, fmt.Errorf("array dimension %s is not an integer", dim.Var)
	}
	if n < 0 {
		return 0, fmt.Errorf("array dimension %s is negative (%d)", dim.Var, n)
	}
	return int(n), nil
}

func (e *encoder) encodeScalar(k Kind, v any) error {
	switch k {
	case KindInt8:
		x, ok := v.(int8)
		if !ok {
			return typeErr(k, v)
		}
		e.u8(byte(x))
	case KindInt16:
		x, ok := v.(int16)
		if !ok {
			return typeErr(k, v)
		}
		e.u16(uint16(x))
	case KindInt32:
		x, ok := v.(int32)
		if !ok {
			return typeErr(k, v)
		}
		e.u32(uint32(x))
	case KindInt64:
		x, ok := v.(int64)
		if !ok {
			return typeErr(k, v)
		}
		e.u64(uint64(x))
	case KindByte:
		x, ok := v.(byte)
		if !ok {
			return typeErr(k, v)
		}
		e.u8(x)
	case KindFloat:
		x, ok := v.(float32)
		if !ok {
			return typeErr(k, v)
		}
		e.u32(math.Float32bits(x))
	case KindDouble:
		x, ok := v.(float64)
		if !ok {
			return typeErr(k, v)
		}
		e.u64(math.Float64bits(x))
	case KindBoolean:
		x, ok := v.(bool)
		if !ok {
			return typeErr(k, v)
		}
		if x {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case KindString:
		x, ok := v.(string)
		if !ok {
			return typeErr(k, v)
		}
		e.str(x)
	default:
		return fmt.Errorf("lcmtype: cannot encode %v", k)
	}
	return nil
}

func (e *encoder) encodePrimitiveSlice(k Kind, n int, v any) error {
	switch k {
	case KindInt8:
		s, ok := v.([]int8)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u8(byte(x))
		}
	case KindInt16:
		s, ok := v.([]int16)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u16(uint16(x))
		}
	case KindInt32:
		s, ok := v.([]int32)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u32(uint32(x))
		}
	case KindInt64:
		s, ok := v.([]int64)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u64(uint64(x))
		}
	case KindByte:
		s, ok := v.([]byte)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		e.buf = append(e.buf, s...)
	case KindFloat:
		s, ok := v.([]float32)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u32(math.Float32bits(x))
		}
	case KindDouble:
		s, ok := v.([]float64)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.u64(math.Float64bits(x))
		}
	case KindBoolean:
		s, ok := v.([]bool)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			if x {
				e.u8(1)
			} else {
				e.u8(0)
			}
		}
	case KindString:
		s, ok := v.([]string)
		if !ok || len(s) != n {
			return sliceErr(k, n, v)
		}
		for _, x := range s {
			e.str(x)
		}
	default:
		return fmt.Errorf("lcmtype: cannot encode %v array", k)
	}
	return nil
}

func typeErr(k Kind, v any) error {
	return fmt.Errorf("expected %s value, got %T", k, v)
}

func sliceErr(k Kind, n int, v any) error {
	return fmt.Errorf("expected %s slice of %d, got %T", k, n, v)
}
