// Package smat accumulates decoded LCM messages into rectangular per-channel
// arrays and writes them out as MATLAB MAT-files or Python pickles.
package smat

import (
	"fmt"
	"math"
	"sort"
)

// SchemaMismatchError reports a field whose values cannot share one column:
// some messages carry numbers where others carry strings.
type SchemaMismatchError struct {
	Channel string
	Path    string
	Want    ColumnKind
	Got     ColumnKind
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("smat: channel %q field %s: %s value in %s column",
		e.Channel, e.Path, e.Got, e.Want)
}

// Accumulator collects decoded messages channel by channel and reshapes them
// into one rectangular column per field-path. Field sets may vary between
// messages on a channel: columns are unioned, and rows with no value for a
// column are backfilled with NaN (numeric) or "" (string). Integer columns
// stay int64 unless padding or a float value forces promotion to float64.
//
// Struct-array and string-array fields are not accumulated; they are recorded
// per channel and reported by Finalize.
type Accumulator struct {
	channels map[string]*channelAccum
}

func NewAccumulator() *Accumulator {
	return &Accumulator{channels: make(map[string]*channelAccum)}
}

type channelAccum struct {
	name    string
	rows    int
	times   []int64
	cols    map[string]*column
	skipped map[string]bool
}

// Observe appends one decoded message. After every call each column of the
// channel has exactly one row per observed message.
func (a *Accumulator) Observe(channel string, utime int64, msg map[string]any) error {
	ch := a.channels[channel]
	if ch == nil {
		ch = &channelAccum{
			name:    channel,
			cols:    make(map[string]*column),
			skipped: make(map[string]bool),
		}
		a.channels[channel] = ch
	}

	vals := make(map[string]value)
	ch.flatten("", msg, vals)

	for path, v := range vals {
		col := ch.cols[path]
		if col == nil {
			col = newColumn(v.kind, ch.rows)
			ch.cols[path] = col
		}
		if (col.kind == ColString) != (v.kind == ColString) {
			return &SchemaMismatchError{Channel: channel, Path: path, Want: col.kind, Got: v.kind}
		}
		col.add(v)
	}
	for _, col := range ch.cols {
		if col.rows() <= ch.rows {
			col.pad()
		}
	}

	ch.times = append(ch.times, utime)
	ch.rows++
	return nil
}

// flatten walks a decoded message depth first, building dotted field-paths.
// Nested maps recurse; numeric scalars and arrays (any depth) become one row
// of numbers; strings stay scalar. Arrays of structs and arrays of strings
// mark their path as skipped, which also retires any column the path
// accumulated before the shape changed.
func (ch *channelAccum) flatten(prefix string, msg map[string]any, vals map[string]value) {
	for key, raw := range msg {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if ch.skipped[path] {
			continue
		}
		switch t := raw.(type) {
		case map[string]any:
			ch.flatten(path, t, vals)
		case string:
			vals[path] = value{kind: ColString, str: t}
		case []string:
			ch.skip(path)
		default:
			v := value{kind: ColInt64}
			if appendNumeric(&v, raw) {
				vals[path] = v
			} else {
				ch.skip(path)
			}
		}
	}
}

func (ch *channelAccum) skip(path string) {
	ch.skipped[path] = true
	delete(ch.cols, path)
}

// value is one message's contribution to a column: a row of numbers or a
// single string.
type value struct {
	kind   ColumnKind
	ints   []int64
	floats []float64
	str    string
}

func (v value) width() int {
	if v.kind == ColFloat64 {
		return len(v.floats)
	}
	return len(v.ints)
}

func (v *value) pushInt(x int64) {
	if v.kind == ColFloat64 {
		v.floats = append(v.floats, float64(x))
		return
	}
	v.ints = append(v.ints, x)
}

func (v *value) pushFloat(x float64) {
	if v.kind == ColInt64 {
		v.kind = ColFloat64
		v.floats = make([]float64, 0, len(v.ints)+1)
		for _, i := range v.ints {
			v.floats = append(v.floats, float64(i))
		}
		v.ints = nil
	}
	v.floats = append(v.floats, x)
}

// appendNumeric flattens x into v row-major. It reports false for any shape
// that cannot become a row of numbers.
func appendNumeric(v *value, x any) bool {
	switch t := x.(type) {
	case int8:
		v.pushInt(int64(t))
	case int16:
		v.pushInt(int64(t))
	case int32:
		v.pushInt(int64(t))
	case int64:
		v.pushInt(t)
	case byte:
		v.pushInt(int64(t))
	case bool:
		if t {
			v.pushInt(1)
		} else {
			v.pushInt(0)
		}
	case float32:
		v.pushFloat(float64(t))
	case float64:
		v.pushFloat(t)
	case []int8:
		for _, x := range t {
			v.pushInt(int64(x))
		}
	case []int16:
		for _, x := range t {
			v.pushInt(int64(x))
		}
	case []int32:
		for _, x := range t {
			v.pushInt(int64(x))
		}
	case []int64:
		for _, x := range t {
			v.pushInt(x)
		}
	case []byte:
		for _, x := range t {
			v.pushInt(int64(x))
		}
	case []bool:
		for _, x := range t {
			if x {
				v.pushInt(1)
			} else {
				v.pushInt(0)
			}
		}
	case []float32:
		for _, x := range t {
			v.pushFloat(float64(x))
		}
	case []float64:
		for _, x := range t {
			v.pushFloat(x)
		}
	case []any:
		for _, el := range t {
			if !appendNumeric(v, el) {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// column stores one field-path's rows. Numeric rows are kept flat with
// per-row widths so ragged input costs nothing until Finalize.
type column struct {
	kind   ColumnKind
	ints   []int64
	floats []float64
	strs   []string
	lens   []int
	maxW   int
}

func newColumn(kind ColumnKind, backfill int) *column {
	c := &column{kind: kind}
	for i := 0; i < backfill; i++ {
		c.pad()
	}
	return c
}

func (c *column) rows() int {
	if c.kind == ColString {
		return len(c.strs)
	}
	return len(c.lens)
}

// pad appends the sentinel row for a message that carried no value: "" for
// strings, a zero-width row for numerics (NaN-filled at Finalize).
func (c *column) pad() {
	if c.kind == ColString {
		c.strs = append(c.strs, "")
		return
	}
	c.lens = append(c.lens, 0)
}

func (c *column) add(v value) {
	if c.kind == ColString {
		c.strs = append(c.strs, v.str)
		return
	}
	if v.kind == ColFloat64 && c.kind == ColInt64 {
		c.promote()
	}
	switch {
	case c.kind == ColInt64:
		c.ints = append(c.ints, v.ints...)
	case v.kind == ColInt64:
		for _, x := range v.ints {
			c.floats = append(c.floats, float64(x))
		}
	default:
		c.floats = append(c.floats, v.floats...)
	}
	w := v.width()
	c.lens = append(c.lens, w)
	if w > c.maxW {
		c.maxW = w
	}
}

func (c *column) promote() {
	c.kind = ColFloat64
	c.floats = make([]float64, len(c.ints))
	for i, x := range c.ints {
		c.floats[i] = float64(x)
	}
	c.ints = nil
}

func (c *column) finalize(path string, rows int) *Column {
	out := &Column{Path: path, Kind: c.kind, Rows: rows, Cols: c.maxW}
	if c.kind == ColString {
		out.Cols = 1
		out.Strings = c.strs
		return out
	}

	ragged := false
	for _, l := range c.lens {
		if l != c.maxW {
			ragged = true
			break
		}
	}
	if !ragged {
		if c.kind == ColInt64 {
			out.Ints = c.ints
		} else {
			out.Floats = c.floats
		}
		return out
	}

	// Ragged rows force float64 so NaN can mark the padding.
	out.Kind = ColFloat64
	flat := make([]float64, rows*c.maxW)
	for i := range flat {
		flat[i] = math.NaN()
	}
	off := 0
	for r, l := range c.lens {
		dst := flat[r*c.maxW : r*c.maxW+l]
		if c.kind == ColInt64 {
			for j := 0; j < l; j++ {
				dst[j] = float64(c.ints[off+j])
			}
		} else {
			copy(dst, c.floats[off:off+l])
		}
		off += l
	}
	out.Floats = flat
	return out
}

// Finalize freezes the accumulated state into a Document. Channels and
// columns come out sorted by name so output is reproducible. The accumulator
// must not be observed again afterwards.
func (a *Accumulator) Finalize() *Document {
	doc := &Document{}
	names := make([]string, 0, len(a.channels))
	for name := range a.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch := a.channels[name]
		out := &Channel{
			Name:       name,
			Rows:       ch.rows,
			Timestamps: ch.times,
		}
		for path := range ch.skipped {
			out.Skipped = append(out.Skipped, path)
		}
		sort.Strings(out.Skipped)

		paths := make([]string, 0, len(ch.cols))
		for path := range ch.cols {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			out.Columns = append(out.Columns, ch.cols[path].finalize(path, ch.rows))
		}
		doc.Channels = append(doc.Channels, out)
	}
	return doc
}
