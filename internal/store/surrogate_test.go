package store

import (
	"testing"
	"time"
)

func TestSurrogateIDRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 15, 13, 37, 42, 123_000_000, time.UTC),
		time.UnixMilli(1).UTC(),
	}
	for _, tc := range times {
		id := NewSurrogateID(tc, 7)
		if got := id.Time(); !got.Equal(tc.Truncate(time.Millisecond)) {
			t.Errorf("Time() = %v; want %v", got, tc.Truncate(time.Millisecond))
		}
		if got := id.Sequence(); got != 7 {
			t.Errorf("Sequence() = %d; want 7", got)
		}
	}
}

func TestSurrogateIDOrdering(t *testing.T) {
	earlier := NewSurrogateID(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 999)
	later := NewSurrogateID(time.Date(2024, 1, 1, 0, 0, 0, 1_000_000, time.UTC), 0)
	if earlier >= later {
		t.Errorf("surrogate ids do not order by time: %d >= %d", earlier, later)
	}
}

func TestSurrogateIDSameMillisecond(t *testing.T) {
	at := time.Date(2024, 3, 3, 3, 3, 3, 0, time.UTC)
	a := NewSurrogateID(at, 1)
	b := NewSurrogateID(at, 2)
	if a >= b {
		t.Errorf("sequence does not break ties: %d >= %d", a, b)
	}
	if !a.Time().Equal(b.Time()) {
		t.Errorf("tie-broken ids disagree on time: %v vs %v", a.Time(), b.Time())
	}
}

func TestSurrogateIDSequenceMasked(t *testing.T) {
	at := time.Date(2024, 3, 3, 3, 3, 3, 0, time.UTC)
	id := NewSurrogateID(at, 1<<surrogateSequenceBits|5)
	if got := id.Sequence(); got != 5 {
		t.Errorf("Sequence() = %d; want 5", got)
	}
	if !id.Time().Equal(at) {
		t.Errorf("overflowing sequence corrupted timestamp: %v", id.Time())
	}
}
