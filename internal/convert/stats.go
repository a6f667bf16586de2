package convert

// Stats is the outcome of one conversion run. Fatal errors abort Run; every
// non-fatal skip lands in a counter here so the exit policy stays visible and
// testable.
type Stats struct {
	// TypesLoaded is the number of schemas loaded from the type search path.
	TypesLoaded int

	// Events counts every record read from the log, whatever became of it.
	Events int64
	// Decoded counts records that were decoded and accumulated.
	Decoded int64
	// Filtered counts records dropped by the channel include/ignore filters.
	Filtered int64

	// Messages holds the accumulated record count per channel.
	Messages map[string]int64
	// UnknownType holds, per channel with no loaded schema for its
	// fingerprint, the number of records skipped on it.
	UnknownType map[string]int64
	// DecodeErrors holds the number of undecodable records per channel.
	DecodeErrors map[string]int64
	// SkippedFields lists field-paths per channel the accumulator could not
	// represent as columns (struct arrays, string arrays).
	SkippedFields map[string][]string

	// ResyncBytes is the number of corrupt bytes skipped between records.
	ResyncBytes int64
}

func newStats() *Stats {
	return &Stats{
		Messages:      make(map[string]int64),
		UnknownType:   make(map[string]int64),
		DecodeErrors:  make(map[string]int64),
		SkippedFields: make(map[string][]string),
	}
}

// Skipped reports the total number of records that were read but not
// accumulated.
func (s *Stats) Skipped() int64 {
	n := s.Filtered
	for _, c := range s.UnknownType {
		n += c
	}
	for _, c := range s.DecodeErrors {
		n += c
	}
	return n
}
