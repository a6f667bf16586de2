package lcmtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrFingerprint reports a message whose leading fingerprint does not
	// match the schema it was decoded against.
	ErrFingerprint = errors.New("lcmtype: fingerprint mismatch")
	// ErrShortData reports a message that ended before its schema did.
	ErrShortData = errors.New("lcmtype: short message data")
	// ErrTrailingData reports bytes left over after the schema was consumed.
	ErrTrailingData = errors.New("lcmtype: trailing bytes after message")
)

// Decode decodes an encoded message against a resolved schema. Scalars map
// to int8/int16/int32/int64, byte, float32/float64, bool and string; nested
// structs to map[string]any; arrays to typed slices for their innermost
// primitive dimension and []any otherwise. The first eight bytes of data
// must hold the schema's packed fingerprint.
func Decode(s *Schema, data []byte) (map[string]any, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d byte header", ErrShortData, len(data))
	}
	fp := binary.BigEndian.Uint64(data)
	if fp != s.Fingerprint() {
		return nil, fmt.Errorf("%w: message 0x%016x, %s is 0x%016x",
			ErrFingerprint, fp, s.QualifiedName(), s.Fingerprint())
	}

	d := &decoder{buf: data[8:]}
	msg, err := d.decodeStruct(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.QualifiedName(), err)
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("%w: %s left %d of %d bytes",
			ErrTrailingData, s.QualifiedName(), len(d.buf)-d.pos, len(d.buf))
	}
	return msg, nil
}

// DecodeInto decodes an encoded message and fills out, a pointer to a struct
// whose fields carry `lcm` tags naming the schema members.
func DecodeInto(s *Schema, data []byte, out any) error {
	msg, err := Decode(s, data)
	if err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "lcm",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("lcmtype: %w", err)
	}
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("lcmtype: %s: %w", s.QualifiedName(), err)
	}
	return nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortData, n, d.pos, d.remaining())
	}
	return nil
}

// needMul is need(n*size) with the multiplication kept out of int overflow.
func (d *decoder) needMul(n, size int) error {
	if int64(n)*int64(size) > int64(d.remaining()) {
		return fmt.Errorf("%w: need %d x %d bytes at offset %d, have %d",
			ErrShortData, n, size, d.pos, d.remaining())
	}
	return nil
}

func (d *decoder) u16() uint16 {
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) u32() uint32 {
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) u64() uint64 {
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) decodeStruct(s *Schema) (map[string]any, error) {
	msg := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v, err := d.decodeField(f, msg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		msg[f.Name] = v
	}
	return msg, nil
}

func (d *decoder) decodeField(f *Field, msg map[string]any) (any, error) {
	if !f.IsArray() {
		return d.decodeScalar(f)
	}
	return d.decodeArray(f, msg, 0)
}

func (d *decoder) decodeScalar(f *Field) (any, error) {
	switch f.Kind {
	case KindInt8:
		if err := d.need(1); err != nil {
			return nil, err
		}
		v := int8(d.buf[d.pos])
		d.pos++
		return v, nil
	case KindInt16:
		if err := d.need(2); err != nil {
			return nil, err
		}
		return int16(d.u16()), nil
	case KindInt32:
		if err := d.need(4); err != nil {
			return nil, err
		}
		return int32(d.u32()), nil
	case KindInt64:
		if err := d.need(8); err != nil {
			return nil, err
		}
		return int64(d.u64()), nil
	case KindByte:
		if err := d.need(1); err != nil {
			return nil, err
		}
		v := d.buf[d.pos]
		d.pos++
		return v, nil
	case KindFloat:
		if err := d.need(4); err != nil {
			return nil, err
		}
		return math.Float32frombits(d.u32()), nil
	case KindDouble:
		if err := d.need(8); err != nil {
			return nil, err
		}
		return math.Float64frombits(d.u64()), nil
	case KindBoolean:
		if err := d.need(1); err != nil {
			return nil, err
		}
		v := d.buf[d.pos] != 0
		d.pos++
		return v, nil
	case KindString:
		return d.str()
	case KindStruct:
		return d.decodeStruct(f.Struct)
	default:
		return nil, fmt.Errorf("lcmtype: cannot decode %v", f.Kind)
	}
}

// decodeArray decodes the dimensions of f from dim onward. The innermost
// dimension of a primitive field becomes a typed slice; every other level is
// a []any.
func (d *decoder) decodeArray(f *Field, msg map[string]any, dim int) (any, error) {
	n, err := d.dimCount(f.Dims[dim], msg)
	if err != nil {
		return nil, err
	}
	if dim == len(f.Dims)-1 && f.Kind != KindStruct {
		return d.decodePrimitiveSlice(f.Kind, n)
	}

	out := make([]any, n)
	for i := range out {
		var v any
		if dim == len(f.Dims)-1 {
			v, err = d.decodeStruct(f.Struct)
		} else {
			v, err = d.decodeArray(f, msg, dim+1)
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// dimCount resolves one array dimension. Variable dimensions read the named
// member, which the encoding rules place before the array; their value is
// additionally bounded by the remaining payload so a corrupt count cannot
// drive allocation. That bound also rejects degenerate arrays whose elements
// encode to zero bytes and outnumber the payload.
func (d *decoder) dimCount(dim Dim, msg map[string]any) (int, error) {
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
		return 0, fmt.Errorf("lcmtype: array dimension %s is not an integer", dim.Var)
	}
	if n < 0 {
		return 0, fmt.Errorf("lcmtype: array dimension %s is negative (%d)", dim.Var, n)
	}
	if n > int64(d.remaining()) {
		return 0, fmt.Errorf("%w: array dimension %s is %d with %d bytes left",
			ErrShortData, dim.Var, n, d.remaining())
	}
	return int(n), nil
}

func (d *decoder) decodePrimitiveSlice(k Kind, n int) (any, error) {
	switch k {
	case KindInt8:
		if err := d.need(n); err != nil {
			return nil, err
		}
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(d.buf[d.pos+i])
		}
		d.pos += n
		return out, nil
	case KindInt16:
		if err := d.needMul(n, 2); err != nil {
			return nil, err
		}
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(d.u16())
		}
		return out, nil
	case KindInt32:
		if err := d.needMul(n, 4); err != nil {
			return nil, err
		}
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(d.u32())
		}
		return out, nil
	case KindInt64:
		if err := d.needMul(n, 8); err != nil {
			return nil, err
		}
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(d.u64())
		}
		return out, nil
	case KindByte:
		if err := d.need(n); err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, d.buf[d.pos:])
		d.pos += n
		return out, nil
	case KindFloat:
		if err := d.needMul(n, 4); err != nil {
			return nil, err
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(d.u32())
		}
		return out, nil
	case KindDouble:
		if err := d.needMul(n, 8); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(d.u64())
		}
		return out, nil
	case KindBoolean:
		if err := d.need(n); err != nil {
			return nil, err
		}
		out := make([]bool, n)
		for i := range out {
			out[i] = d.buf[d.pos+i] != 0
		}
		d.pos += n
		return out, nil
	case KindString:
		out := make([]string, n)
		for i := range out {
			s, err := d.str()
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("lcmtype: cannot decode %v array", k)
	}
}

// str reads one encoded string: an int32 length that counts the trailing
// NUL, the bytes, then the NUL itself.
func (d *decoder) str() (string, error) {
	if err := d.need(4); err != nil {
		return "", err
	}
	n := int(int32(d.u32()))
	if n < 1 {
		return "", fmt.Errorf("lcmtype: bad string length %d", n)
	}
	if err := d.need(n); err != nil {
		return "", err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	if b[n-1] != 0 {
		return "", errors.New("lcmtype: string missing NUL terminator")
	}
	return string(b[:n-1]), nil
}
