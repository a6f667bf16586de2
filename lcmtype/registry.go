package lcmtype

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrDuplicateType reports two definitions with the same qualified name.
	ErrDuplicateType = errors.New("lcmtype: duplicate type definition")
	// ErrUnknownType reports a reference to a type that was never loaded.
	ErrUnknownType = errors.New("lcmtype: unknown type")
)

// Registry indexes message schemas by qualified name and, once resolved, by
// packed fingerprint. Load definitions first, then call Resolve to link
// nested type references and compute fingerprints. Lookups are only
// meaningful after Resolve, and the registry is frozen from then on.
type Registry struct {
	byName   map[string]*Schema
	byFP     map[uint64]*Schema
	resolved bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Schema),
		byFP:   make(map[uint64]*Schema),
	}
}

// Add registers a parsed schema.
func (r *Registry) Add(s *Schema) error {
	if r.resolved {
		return errors.New("lcmtype: registry is frozen")
	}
	name := s.QualifiedName()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.byName[name] = s
	return nil
}

// LoadFile parses path and adds every schema it declares. It returns the
// number of schemas added.
func (r *Registry) LoadFile(path string) (int, error) {
	schemas, err := ParseFile(path)
	if err != nil {
		return 0, err
	}
	for i, s := range schemas {
		if err := r.Add(s); err != nil {
			return i, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(schemas), nil
}

// LoadDir walks dir and loads every .lcm file found.
func (r *Registry) LoadDir(dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".lcm" {
			return nil
		}
		n, err := r.LoadFile(path)
		total += n
		return err
	})
	return total, err
}

// LoadPath loads every entry of a PATH-style list of files and directories.
// Entries that do not exist are skipped, the usual treatment for search-path
// variables.
func (r *Registry) LoadPath(path string) (int, error) {
	total := 0
	for _, entry := range filepath.SplitList(path) {
		if entry == "" {
			continue
		}
		info, err := os.Stat(entry)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("lcmtype: %w", err)
		}
		var n int
		if info.IsDir() {
			n, err = r.LoadDir(entry)
		} else {
			n, err = r.LoadFile(entry)
		}
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Resolve links nested type references, computes packed fingerprints and
// freezes the registry.
func (r *Registry) Resolve() error {
	if r.resolved {
		return nil
	}
	for _, s := range r.byName {
		for _, f := range s.Fields {
			if f.Kind != KindStruct {
				continue
			}
			nested, err := r.lookupRef(s, f.TypeName)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", s.QualifiedName(), f.Name, err)
			}
			f.Struct = nested
		}
	}
	for _, s := range r.byName {
		s.fingerprint = computeFingerprint(s)
		s.resolved = true
		if prev, ok := r.byFP[s.fingerprint]; ok && prev != s {
			return fmt.Errorf("lcmtype: fingerprint collision 0x%016x between %s and %s",
				s.fingerprint, prev.QualifiedName(), s.QualifiedName())
		}
		r.byFP[s.fingerprint] = s
	}
	r.resolved = true
	return nil
}

// lookupRef resolves a type reference appearing inside from: first as
// written, then qualified with from's package.
func (r *Registry) lookupRef(from *Schema, name string) (*Schema, error) {
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	if from.Package != "" {
		if s, ok := r.byName[from.Package+"."+name]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// LookupFingerprint returns the schema whose packed fingerprint is fp.
func (r *Registry) LookupFingerprint(fp uint64) (*Schema, bool) {
	s, ok := r.byFP[fp]
	return s, ok
}

// LookupName returns the schema with the given qualified name.
func (r *Registry) LookupName(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Schemas returns every registered schema sorted by qualified name.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// Len reports the number of registered schemas.
func (r *Registry) Len() int { return len(r.byName) }
