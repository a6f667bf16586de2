package smat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/auvlog/lcm2smat/matfile"
)

// Format selects the output container.
type Format uint8

const (
	FormatMat Format = iota
	FormatPickle
)

func (f Format) String() string {
	switch f {
	case FormatMat:
		return "mat"
	case FormatPickle:
		return "pickle"
	default:
		return "unknown"
	}
}

// Ext returns the conventional file extension for the format.
func (f Format) Ext() string {
	if f == FormatPickle {
		return ".pkl"
	}
	return ".mat"
}

// NameCollisionError reports two distinct names that sanitize to the same
// MATLAB identifier, which would silently overwrite data.
type NameCollisionError struct {
	Channel   string // empty for a collision between channel names
	A, B      string
	Sanitized string
}

func (e *NameCollisionError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("smat: channels %q and %q both sanitize to %q", e.A, e.B, e.Sanitized)
	}
	return fmt.Sprintf("smat: channel %q: fields %q and %q both sanitize to %q",
		e.Channel, e.A, e.B, e.Sanitized)
}

// WriteError wraps a failure while producing the output file. The
// destination is never left half-written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("smat: write %s: %v", e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// SanitizeName maps an arbitrary channel or field-path name onto a MATLAB
// identifier: every byte outside [A-Za-z0-9_] becomes '_', a name not
// starting with a letter gets an 'x' prefix, and the result is truncated to
// matfile.MaxNameLen bytes. The mapping is deterministic; distinct inputs
// may collide, which Write reports as NameCollisionError.
func SanitizeName(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isWordByte(c) {
			b[i] = c
		} else {
			b[i] = '_'
		}
	}
	s := string(b)
	if s == "" || !isAlpha(s[0]) {
		s = "x" + s
	}
	if len(s) > matfile.MaxNameLen {
		s = s[:matfile.MaxNameLen]
	}
	return s
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordByte(c byte) bool {
	return isAlpha(c) || c >= '0' && c <= '9' || c == '_'
}

// Write serializes doc to path. The output appears atomically: data goes to
// a temporary file next to the destination and is renamed into place only
// after a successful write. For FormatMat a companion <base>.m loader script
// is written beside the archive afterwards.
func Write(doc *Document, path string, format Format) error {
	switch format {
	case FormatMat, FormatPickle:
	default:
		return fmt.Errorf("smat: unknown format %d", format)
	}

	// Collisions are caught before anything touches the filesystem.
	if format == FormatMat {
		if err := checkNames(doc); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := writeTo(tmp, doc, format); err != nil {
		return &WriteError{Path: path, Err: multierr.Combine(err, tmp.Close(), os.Remove(tmp.Name()))}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Path: path, Err: multierr.Append(err, os.Remove(tmp.Name()))}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &WriteError{Path: path, Err: multierr.Append(err, os.Remove(tmp.Name()))}
	}

	if format == FormatMat {
		if err := writeCompanion(path); err != nil {
			return err
		}
	}
	return nil
}

func writeTo(w io.Writer, doc *Document, format Format) error {
	if format == FormatPickle {
		return writePickle(w, doc)
	}
	return writeMat(w, doc)
}

func checkNames(doc *Document) error {
	channels := make(map[string]string)
	for _, ch := range doc.Channels {
		s := SanitizeName(ch.Name)
		if prev, ok := channels[s]; ok {
			return &NameCollisionError{A: prev, B: ch.Name, Sanitized: s}
		}
		channels[s] = ch.Name

		// timestamps is reserved for the per-channel time column.
		fields := map[string]string{"timestamps": "timestamps"}
		for _, col := range ch.Columns {
			fs := SanitizeName(col.Path)
			if prev, ok := fields[fs]; ok {
				return &NameCollisionError{Channel: ch.Name, A: prev, B: col.Path, Sanitized: fs}
			}
			fields[fs] = col.Path
		}
	}
	return nil
}

func writeMat(w io.Writer, doc *Document) error {
	mw, err := matfile.NewWriter(w)
	if err != nil {
		return err
	}
	for _, ch := range doc.Channels {
		var st matfile.Struct
		ts := &matfile.Int64Matrix{Rows: ch.Rows, Cols: 1, Data: ch.Timestamps}
		if err := st.Add("timestamps", ts); err != nil {
			return err
		}
		for _, col := range ch.Columns {
			v, err := matValue(col)
			if err != nil {
				return err
			}
			if err := st.Add(SanitizeName(col.Path), v); err != nil {
				return err
			}
		}
		if err := mw.WriteVariable(SanitizeName(ch.Name), &st); err != nil {
			return err
		}
	}
	return nil
}

func matValue(col *Column) (matfile.Value, error) {
	switch col.Kind {
	case ColInt64:
		return &matfile.Int64Matrix{Rows: col.Rows, Cols: col.Cols, Data: col.Ints}, nil
	case ColFloat64:
		return &matfile.DoubleMatrix{Rows: col.Rows, Cols: col.Cols, Data: col.Floats}, nil
	case ColString:
		elems := make([]matfile.Value, len(col.Strings))
		for i, s := range col.Strings {
			elems[i] = &matfile.CharVector{S: s}
		}
		return &matfile.Cell{Rows: col.Rows, Cols: 1, Elems: elems}, nil
	default:
		return nil, fmt.Errorf("smat: unknown column kind %v", col.Kind)
	}
}

// writeCompanion drops a small <base>.m function next to the archive that
// loads it into a struct, preferring the full path and falling back to the
// bare file name.
func writeCompanion(matPath string) error {
	base := strings.TrimSuffix(filepath.Base(matPath), filepath.Ext(matPath))
	fn := SanitizeName(base)
	script := fmt.Sprintf(`function [d] = %s()
full_fname = '%s';
fname = '%s';
if (exist(full_fname, 'file'))
    filename = full_fname;
else
    filename = fname;
end
d = load(filename);
`, fn, mQuote(matPath), mQuote(filepath.Base(matPath)))

	path := filepath.Join(filepath.Dir(matPath), base+".m")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// mQuote escapes a string for a single-quoted MATLAB literal.
func mQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
