package smat

import (
	"fmt"
	"io"
	"strings"

	pickle "github.com/kisielk/og-rek"
)

// writePickle serializes doc as a Python pickle (protocol 2): a dict of
// channel name to channel dict. Dotted field-paths are re-nested into native
// dicts, names are not sanitized, and every channel dict carries a
// "timestamps" list. Scalar columns become flat lists, array columns a list
// of per-message rows.
func writePickle(w io.Writer, doc *Document) error {
	root := make(map[string]any, len(doc.Channels))
	for _, ch := range doc.Channels {
		root[ch.Name] = channelDict(ch)
	}
	enc := pickle.NewEncoderWithConfig(w, &pickle.EncoderConfig{
		Protocol:      2,
		StrictUnicode: true,
	})
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("pickle: %w", err)
	}
	return nil
}

func channelDict(ch *Channel) map[string]any {
	root := map[string]any{"timestamps": ch.Timestamps}
	for _, col := range ch.Columns {
		insertPath(root, col.Path, pickleValue(col))
	}
	return root
}

// insertPath places v under the dotted path, creating intermediate dicts.
// Columns arrive sorted, so a plain leaf always precedes paths nested below
// the same name; when that happens the nested path keeps its dotted key
// instead of clobbering the leaf.
func insertPath(root map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	m := root
	for i, p := range parts[:len(parts)-1] {
		switch next := m[p].(type) {
		case map[string]any:
			m = next
		case nil:
			nm := make(map[string]any)
			m[p] = nm
			m = nm
		default:
			m[strings.Join(parts[i:], ".")] = v
			return
		}
	}
	m[parts[len(parts)-1]] = v
}

func pickleValue(col *Column) any {
	switch col.Kind {
	case ColString:
		return col.Strings
	case ColInt64:
		if col.Cols == 1 {
			return col.Ints
		}
		rows := make([]any, col.Rows)
		for r := range rows {
			rows[r] = col.Ints[r*col.Cols : (r+1)*col.Cols]
		}
		return rows
	default:
		if col.Cols == 1 {
			return col.Floats
		}
		rows := make([]any, col.Rows)
		for r := range rows {
			rows[r] = col.Floats[r*col.Cols : (r+1)*col.Cols]
		}
		return rows
	}
}
