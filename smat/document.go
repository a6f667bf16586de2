package smat

// ColumnKind is the storage type of a finalized column.
type ColumnKind uint8

const (
	ColInt64 ColumnKind = iota
	ColFloat64
	ColString
)

func (k ColumnKind) String() string {
	switch k {
	case ColInt64:
		return "int64"
	case ColFloat64:
		return "float64"
	case ColString:
		return "string"
	default:
		return "unknown"
	}
}

// Document is the finalized output: one entry per channel, sorted by name.
type Document struct {
	Channels []*Channel
}

// Channel holds one channel's rectangular columns. Every column has Rows
// rows, and len(Timestamps) == Rows.
type Channel struct {
	Name       string
	Rows       int
	Timestamps []int64
	Columns    []*Column
	// Skipped lists field-paths that were dropped because their shape
	// (struct arrays, string arrays) does not accumulate.
	Skipped []string
}

// Column is one field-path's data, row-major. Int64 and Float64 columns hold
// Rows x Cols values in Ints or Floats; String columns hold one string per
// row in Strings with Cols == 1.
type Column struct {
	Path string
	Kind ColumnKind
	Rows int
	Cols int

	Ints    []int64
	Floats  []float64
	Strings []string
}
