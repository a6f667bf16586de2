package lcmtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
)

func addData(b []byte, v any) []byte {
	switch v := v.(type) {
	case bool:
		if v {
			return append(b, 1)
		}
		return append(b, 0)
	case int8:
		return append(b, byte(v))
	case byte:
		return append(b, v)
	case int16:
		return binary.BigEndian.AppendUint16(b, uint16(v))
	case int32:
		return binary.BigEndian.AppendUint32(b, uint32(v))
	case int64:
		return binary.BigEndian.AppendUint64(b, uint64(v))
	case uint64:
		return binary.BigEndian.AppendUint64(b, v)
	case float32:
		return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
	case float64:
		return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
	case string:
		b = binary.BigEndian.AppendUint32(b, uint32(len(v)+1))
		b = append(b, v...)
		return append(b, 0)
	default:
		panic(fmt.Sprintf("addData: unsupported %T", v))
	}
}

func TestDecode(t *testing.T) {
	r := resolve(t, `
package nav;

struct pose_t {
    int64_t utime;
    double  position[3];
    float   speed;
    int8_t  temp;
    int16_t heading;
    int32_t seq;
    byte    status;
    boolean healthy;
    string  frame;
    attitude_t att;
    int32_t num_ranges;
    int16_t ranges[num_ranges];
    double  cov[2][2];
    string  labels[2];
    attitude_t history[2];
}

struct attitude_t {
    float roll;
    float pitch;
    float yaw;
}
`)
	s, ok := r.LookupName("nav.pose_t")
	if !ok {
		t.Fatal("missing nav.pose_t")
	}

	// The raw message is built by hand so the decoder is pinned to the wire
	// layout itself, not to whatever the encoder happens to produce.
	var raw []byte
	raw = addData(raw, s.Fingerprint())
	raw = addData(raw, int64(1234567890))
	for _, p := range []float64{1.5, -2.5, 3.25} {
		raw = addData(raw, p)
	}
	raw = addData(raw, float32(0.5))
	raw = addData(raw, int8(-7))
	raw = addData(raw, int16(-300))
	raw = addData(raw, int32(42))
	raw = addData(raw, byte(0xFF))
	raw = addData(raw, true)
	raw = addData(raw, "base_link")
	raw = addData(raw, float32(0.25)) // att
	raw = addData(raw, float32(-0.125))
	raw = addData(raw, float32(1.75))
	raw = addData(raw, int32(3)) // num_ranges
	for _, v := range []int16{10, -20, 30} {
		raw = addData(raw, v)
	}
	for _, v := range []float64{1, 0, 0, 1} { // cov, row by row
		raw = addData(raw, v)
	}
	raw = addData(raw, "a")
	raw = addData(raw, "bc")
	for _, yaw := range []float32{2.5, -2.5} { // history
		raw = addData(raw, float32(0))
		raw = addData(raw, float32(0))
		raw = addData(raw, yaw)
	}

	want := map[string]any{
		"utime":    int64(1234567890),
		"position": []float64{1.5, -2.5, 3.25},
		"speed":    float32(0.5),
		"temp":     int8(-7),
		"heading":  int16(-300),
		"seq":      int32(42),
		"status":   byte(0xFF),
		"healthy":  true,
		"frame":    "base_link",
		"att": map[string]any{
			"roll":  float32(0.25),
			"pitch": float32(-0.125),
			"yaw":   float32(1.75),
		},
		"num_ranges": int32(3),
		"ranges":     []int16{10, -20, 30},
		"cov": []any{
			[]float64{1, 0},
			[]float64{0, 1},
		},
		"labels": []string{"a", "bc"},
		"history": []any{
			map[string]any{"roll": float32(0), "pitch": float32(0), "yaw": float32(2.5)},
			map[string]any{"roll": float32(0), "pitch": float32(0), "yaw": float32(-2.5)},
		},
	}

	got, err := Decode(s, raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	r := resolve(t, "struct v_t { int32_t n; int16_t vals[n]; string s; }")
	s, _ := r.LookupName("v_t")

	valid := func() []byte {
		var raw []byte
		raw = addData(raw, s.Fingerprint())
		raw = addData(raw, int32(2))
		raw = addData(raw, int16(7))
		raw = addData(raw, int16(-7))
		raw = addData(raw, "ok")
		return raw
	}

	if _, err := Decode(s, valid()); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		Name string
		Raw  []byte
		Err  error
	}{
		{
			Name: "ShortHeader",
			Raw:  valid()[:4],
			Err:  ErrShortData,
		},
		{
			Name: "WrongFingerprint",
			Raw: func() []byte {
				raw := valid()
				raw[0] ^= 0x80
				return raw
			}(),
			Err: ErrFingerprint,
		},
		{
			Name: "ShortBody",
			Raw:  valid()[:len(valid())-2],
			Err:  ErrShortData,
		},
		{
			Name: "TrailingBytes",
			Raw:  append(valid(), 0xAA),
			Err:  ErrTrailingData,
		},
		{
			Name: "NegativeCount",
			Raw: func() []byte {
				var raw []byte
				raw = addData(raw, s.Fingerprint())
				raw = addData(raw, int32(-1))
				raw = addData(raw, "ok")
				return raw
			}(),
		},
		{
			Name: "AbsurdCount",
			Raw: func() []byte {
				var raw []byte
				raw = addData(raw, s.Fingerprint())
				raw = addData(raw, int32(1<<30))
				raw = addData(raw, "ok")
				return raw
			}(),
			Err: ErrShortData,
		},
		{
			Name: "ZeroStringLength",
			Raw: func() []byte {
				var raw []byte
				raw = addData(raw, s.Fingerprint())
				raw = addData(raw, int32(0))
				raw = addData(raw, int32(0)) // string length, must be >= 1
				return raw
			}(),
		},
		{
			Name: "MissingNUL",
			Raw: func() []byte {
				var raw []byte
				raw = addData(raw, s.Fingerprint())
				raw = addData(raw, int32(0))
				raw = addData(raw, int32(2))
				return append(raw, 'h', 'i')
			}(),
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			_, err := Decode(s, testCase.Raw)
			if err == nil {
				t.Fatal("expected to fail")
			}
			if testCase.Err != nil && !errors.Is(err, testCase.Err) {
				t.Fatalf("got %v, want %v", err, testCase.Err)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := resolve(t, `
struct fuzz_t {
    int8_t  i8;
    int16_t i16;
    int32_t i32;
    int64_t i64;
    byte    raw;
    float   f32;
    double  f64;
    boolean ok;
    string  s;
    double  fixed[4];
    int32_t n;
    float   vals[n];
    int32_t k;
    string  names[k];
}
`)
	s, _ := r.LookupName("fuzz_t")

	type fuzzMsg struct {
		I8    int8
		I16   int16
		I32   int32
		I64   int64
		Raw   byte
		F32   float32
		F64   float64
		OK    bool
		S     string
		Fixed [4]float64
		Vals  []float32
		Names []string
	}

	f := fuzz.New().NilChance(0).NumElements(0, 17)
	for i := 0; i < 100; i++ {
		var m fuzzMsg
		f.Fuzz(&m)

		want := map[string]any{
			"i8":    m.I8,
			"i16":   m.I16,
			"i32":   m.I32,
			"i64":   m.I64,
			"raw":   m.Raw,
			"f32":   m.F32,
			"f64":   m.F64,
			"ok":    m.OK,
			"s":     m.S,
			"fixed": m.Fixed[:],
			"n":     int32(len(m.Vals)),
			"vals":  m.Vals,
			"k":     int32(len(m.Names)),
			"names": m.Names,
		}

		raw, err := Encode(s, want)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Decode(s, raw)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	}
}

func TestDecodeInto(t *testing.T) {
	r := resolve(t, `
package nav;
struct fix_t { int64_t utime; double lat; double lon; gps_meta_t meta; }
struct gps_meta_t { int32_t sats; string mode; }
`)
	s, _ := r.LookupName("nav.fix_t")

	raw, err := Encode(s, map[string]any{
		"utime": int64(99),
		"lat":   47.6,
		"lon":   -122.3,
		"meta":  map[string]any{"sats": int32(11), "mode": "rtk"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		Utime int64   `lcm:"utime"`
		Lat   float64 `lcm:"lat"`
		Lon   float64 `lcm:"lon"`
		Meta  struct {
			Sats int32  `lcm:"sats"`
			Mode string `lcm:"mode"`
		} `lcm:"meta"`
	}
	if err := DecodeInto(s, raw, &out); err != nil {
		t.Fatal(err)
	}

	if out.Utime != 99 || out.Lat != 47.6 || out.Lon != -122.3 {
		t.Fatalf("bad scalars: %+v", out)
	}
	if out.Meta.Sats != 11 || out.Meta.Mode != "rtk" {
		t.Fatalf("bad nested struct: %+v", out)
	}
}

func BenchmarkDecodeMessageData(b *testing.B) {
	b.StopTimer()
	r := resolve(b, "struct image_t { int32_t size; byte pixels[size]; }")
	s, _ := r.LookupName("image_t")

	res := 1920 * 1080
	pixels := make([]byte, res)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	raw, err := Encode(s, map[string]any{"size": int32(res), "pixels": pixels})
	if err != nil {
		b.Fatal(err)
	}

	b.StartTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(s, raw); err != nil {
			b.Fatal(err)
		}
	}
}
