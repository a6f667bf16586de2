package lcmtype

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, src string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "robot.lcm"), `
package robot;
struct cmd_t { int32_t id; double effort; }
struct ack_t { int32_t id; boolean ok; }
`)
	writeFile(t, filepath.Join(dir, "nested", "gps.lcm"), `
package sensors;
struct gps_t { double lat; double lon; }
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a type definition")

	r := NewRegistry()
	n, err := r.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("loaded %d schemas, want 3", n)
	}
	if err := r.Resolve(); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range r.Schemas() {
		names = append(names, s.QualifiedName())
	}
	want := []string{"robot.ack_t", "robot.cmd_t", "sensors.gps_t"}
	if strings.Join(names, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v, want %v", names, want)
	}

	cmd, ok := r.LookupName("robot.cmd_t")
	if !ok {
		t.Fatal("missing robot.cmd_t")
	}
	back, ok := r.LookupFingerprint(cmd.Fingerprint())
	if !ok || back != cmd {
		t.Fatal("fingerprint lookup did not round-trip")
	}
}

func TestRegistryLoadPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.lcm"), "struct a_t { int8_t x; }")
	file := filepath.Join(t.TempDir(), "b.lcm")
	writeFile(t, file, "struct b_t { int8_t x; }")

	entries := []string{dir, filepath.Join(dir, "does-not-exist"), file, ""}
	path := strings.Join(entries, string(os.PathListSeparator))

	r := NewRegistry()
	n, err := r.LoadPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("loaded %d schemas, want 2", n)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	schemas, err := Parse("dup.lcm", []byte("package p; struct a { int8_t x; }"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(schemas[0]); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(schemas[0]); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("got %v, want %v", err, ErrDuplicateType)
	}
}

func TestRegistryUnknownReference(t *testing.T) {
	r := NewRegistry()
	schemas, err := Parse("ref.lcm", []byte("struct a { missing_t m; }"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(schemas[0]); err != nil {
		t.Fatal(err)
	}
	if err := r.Resolve(); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("got %v, want %v", err, ErrUnknownType)
	}
}

func TestRegistryCrossPackage(t *testing.T) {
	r := NewRegistry()
	for _, src := range []string{
		"package geom; struct point_t { double x; double y; }",
		// Same-package references may use the short name; foreign ones must
		// qualify.
		"package geom; struct line_t { point_t a; point_t b; }",
		"package nav; struct track_t { int32_t n; geom.point_t pts[n]; }",
	} {
		schemas, err := Parse("x.lcm", []byte(src))
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range schemas {
			if err := r.Add(s); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := r.Resolve(); err != nil {
		t.Fatal(err)
	}

	point, _ := r.LookupName("geom.point_t")
	line, _ := r.LookupName("geom.line_t")
	track, _ := r.LookupName("nav.track_t")
	if line.Fields[0].Struct != point {
		t.Fatal("short-name reference did not resolve")
	}
	if track.Fields[1].Struct != point {
		t.Fatal("qualified reference did not resolve")
	}
}

func TestRegistryFrozen(t *testing.T) {
	r := resolve(t, "struct a { int8_t x; }")
	schemas, err := Parse("late.lcm", []byte("struct b { int8_t x; }"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(schemas[0]); err == nil {
		t.Fatal("expected to fail")
	}
}
