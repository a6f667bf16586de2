package lcmtype

import "strconv"

// The fingerprint scheme matches lcm-gen generated bindings: a seeded
// byte-rolling hash over member names, primitive type names and dimension
// descriptors, summed recursively over nested struct types with a one-bit
// rotation at each level. Signed 64-bit arithmetic is part of the scheme;
// the right shift in hashUpdate must sign-extend.

const hashSeed int64 = 0x12345678

func hashUpdate(v int64, c byte) int64 {
	return ((v << 8) ^ (v >> 55)) + int64(int8(c))
}

func hashString(v int64, s string) int64 {
	v = hashUpdate(v, byte(len(s)))
	for i := 0; i < len(s); i++ {
		v = hashUpdate(v, s[i])
	}
	return v
}

// baseHash covers the schema's own member layout. Nested struct members
// contribute their name and dimensions only; their contents enter through
// recursiveHash.
func (s *Schema) baseHash() int64 {
	v := hashSeed
	for _, f := range s.Fields {
		v = hashString(v, f.Name)
		if f.Kind != KindStruct {
			v = hashString(v, f.Kind.String())
		}
		v = hashUpdate(v, byte(len(f.Dims)))
		for _, d := range f.Dims {
			if d.IsVar() {
				v = hashUpdate(v, 1)
				v = hashString(v, d.Var)
			} else {
				v = hashUpdate(v, 0)
				v = hashString(v, strconv.Itoa(d.Size))
			}
		}
	}
	return v
}

// recursiveHash sums the base hashes of s and every reachable nested type.
// A type already on the parents chain contributes zero, which terminates on
// recursive definitions.
func recursiveHash(s *Schema, parents []*Schema) int64 {
	for _, p := range parents {
		if p == s {
			return 0
		}
	}
	parents = append(parents, s)

	h := s.baseHash()
	for _, f := range s.Fields {
		if f.Kind == KindStruct {
			h += recursiveHash(f.Struct, parents)
		}
	}
	return (h << 1) + ((h >> 63) & 1)
}

// computeFingerprint returns the packed fingerprint that prefixes every
// encoded message of this type on the wire.
func computeFingerprint(s *Schema) uint64 {
	return uint64(recursiveHash(s, nil))
}
