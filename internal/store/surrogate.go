package store

import "time"

// Surrogate ids are the physical ordering key of the resource table: a
// millisecond timestamp in the high bits and a per-millisecond sequence in
// the low bits, so range scans over time stay contiguous. The timestamp
// component round-trips exactly at millisecond precision.
const surrogateSequenceBits = 20

const surrogateSequenceMask = (1 << surrogateSequenceBits) - 1

// SurrogateID is a sortable storage key derived from a last-modified time.
type SurrogateID int64

// NewSurrogateID packs a timestamp and a same-millisecond sequence number.
// The sequence disambiguates writes landing in the same millisecond.
func NewSurrogateID(t time.Time, sequence uint32) SurrogateID {
	ms := t.UnixMilli()
	return SurrogateID(ms<<surrogateSequenceBits | int64(sequence&surrogateSequenceMask))
}

// Time recovers the timestamp component, truncated to the millisecond.
func (s SurrogateID) Time() time.Time {
	return time.UnixMilli(int64(s) >> surrogateSequenceBits).UTC()
}

// Sequence recovers the same-millisecond disambiguator.
func (s SurrogateID) Sequence() uint32 {
	return uint32(int64(s) & surrogateSequenceMask)
}
