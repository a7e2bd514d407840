package clock

import (
	"testing"
	"time"
)

func TestReplay_SetAndNow(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewReplay(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now = %v, want %v", got, start)
	}

	next := start.Add(15 * time.Minute)
	c.Set(next)
	if got := c.Now(); !got.Equal(next) {
		t.Errorf("after Set, Now = %v, want %v", got, next)
	}
}

func TestReplay_Advance(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewReplay(start)

	got := c.Advance(4 * time.Hour)
	want := start.Add(4 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("Advance returned %v, want %v", got, want)
	}
	if !c.Now().Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", c.Now(), want)
	}
}

func TestReplay_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("TEST", 3600)
	c := NewReplay(time.Date(2024, 3, 1, 1, 0, 0, 0, loc))

	if c.Now().Location() != time.UTC {
		t.Errorf("replay clock should report UTC, got %v", c.Now().Location())
	}
}
