package lcmtype

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	src := []byte(`
// Line comments can appear anywhere.
/* Block comments
   too, spanning lines. */
package auv;

struct status_t {
    const int16_t WIDTH = 16;   // constants may size arrays declared later
    const int32_t MODE_IDLE = 0, MODE_RUN = 1;
    const int32_t MASK = 0x1f;  // hex literals fold to their value
    const int8_t  SMALL = -12;
    const double  GAIN = 0.75;
    const float   EPS = 1e-3;

    int64_t utime;              // comment next to a member
    double  battery_voltage;
    boolean armed;
    string  name;
    byte    flags;
    float   temp[4];
    int32_t num_ranges;
    int16_t ranges[num_ranges];
    double  cov[3][3];
    byte    grid[num_ranges][WIDTH];
    auv.gps_t gps;
}

struct gps_t {
    double lat;
    double lon;
}
`)

	want := []*Schema{
		{
			Package: "auv",
			Name:    "status_t",
			Consts: []*Const{
				{Name: "WIDTH", Kind: KindInt16, Int: 16},
				{Name: "MODE_IDLE", Kind: KindInt32, Int: 0},
				{Name: "MODE_RUN", Kind: KindInt32, Int: 1},
				{Name: "MASK", Kind: KindInt32, Int: 31},
				{Name: "SMALL", Kind: KindInt8, Int: -12},
				{Name: "GAIN", Kind: KindDouble, Float: 0.75},
				{Name: "EPS", Kind: KindFloat, Float: 1e-3},
			},
			Fields: []*Field{
				{Name: "utime", Kind: KindInt64},
				{Name: "battery_voltage", Kind: KindDouble},
				{Name: "armed", Kind: KindBoolean},
				{Name: "name", Kind: KindString},
				{Name: "flags", Kind: KindByte},
				{Name: "temp", Kind: KindFloat, Dims: []Dim{{Size: 4}}},
				{Name: "num_ranges", Kind: KindInt32},
				{Name: "ranges", Kind: KindInt16, Dims: []Dim{{Var: "num_ranges"}}},
				{Name: "cov", Kind: KindDouble, Dims: []Dim{{Size: 3}, {Size: 3}}},
				{Name: "grid", Kind: KindByte, Dims: []Dim{{Var: "num_ranges"}, {Size: 16}}},
				{Name: "gps", Kind: KindStruct, TypeName: "auv.gps_t"},
			},
		},
		{
			Package: "auv",
			Name:    "gps_t",
			Fields: []*Field{
				{Name: "lat", Kind: KindDouble},
				{Name: "lon", Kind: KindDouble},
			},
		},
	}

	got, err := Parse("status_t.lcm", src)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Schema{})); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseCases(t *testing.T) {
	testCases := []struct {
		Name string
		Src  string
		Fail bool
	}{
		{
			Name: "PackagelessStruct",
			Src:  "struct plain_t { int8_t x; }",
		},
		{
			Name: "CommaConstants",
			Src:  "struct a { const int32_t A = 1, B = 2, C = 3; int8_t x; }",
		},
		{
			Name: "NegativeConstant",
			Src:  "struct a { const int64_t MIN = -1234567890123456789; int8_t x; }",
		},
		{
			Name: "Enum",
			Src:  "package p; enum mode_t { A, B }",
			Fail: true,
		},
		{
			Name: "EmptyStruct",
			Src:  "struct a { }",
			Fail: true,
		},
		{
			Name: "ConstOnlyStruct",
			Src:  "struct a { const int8_t X = 1; }",
			Fail: true,
		},
		{
			Name: "DuplicateMember",
			Src:  "struct a { int8_t x; int8_t x; }",
			Fail: true,
		},
		{
			Name: "DuplicateConstMember",
			Src:  "struct a { const int8_t x = 1; int8_t x; }",
			Fail: true,
		},
		{
			Name: "ZeroDimension",
			Src:  "struct a { int8_t x[0]; }",
			Fail: true,
		},
		{
			Name: "UnknownDimension",
			Src:  "struct a { int8_t x[n]; }",
			Fail: true,
		},
		{
			Name: "FloatDimension",
			Src:  "struct a { double n; int8_t x[n]; }",
			Fail: true,
		},
		{
			Name: "ArrayValuedDimension",
			Src:  "struct a { int8_t n[2]; int8_t x[n]; }",
			Fail: true,
		},
		{
			Name: "ConstBeforeDeclaration",
			Src:  "struct a { int8_t x[W]; const int8_t W = 4; }",
			Fail: true,
		},
		{
			Name: "StringConstant",
			Src:  "struct a { const string S = 1; int8_t x; }",
			Fail: true,
		},
		{
			Name: "ConstantOverflow",
			Src:  "struct a { const int8_t X = 200; int8_t x; }",
			Fail: true,
		},
		{
			Name: "UnterminatedComment",
			Src:  "/* struct a { int8_t x; }",
			Fail: true,
		},
		{
			Name: "MissingSemicolon",
			Src:  "struct a { int8_t x }",
			Fail: true,
		},
		{
			Name: "UnterminatedStruct",
			Src:  "struct a { int8_t x;",
			Fail: true,
		},
		{
			Name: "StrayToken",
			Src:  "struct a { int8_t x; } @",
			Fail: true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			_, err := Parse(testCase.Name+".lcm", []byte(testCase.Src))
			if testCase.Fail && err == nil {
				t.Fatal("expected to fail")
			} else if !testCase.Fail && err != nil {
				t.Fatalf("expected to succeed, got %v", err)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	src := []byte("package p;\n\nstruct a {\n    int8_t x[bad];\n}\n")
	_, err := Parse("a.lcm", src)
	if err == nil {
		t.Fatal("expected to fail")
	}
	want := "a.lcm:4"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Fatalf("error %q does not mention %q", got, want)
	}
}
