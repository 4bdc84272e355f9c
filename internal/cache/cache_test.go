package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/atcwatch/skyguard/internal/model"
)

func TestTrackCache_GetMissing(t *testing.T) {
	c := NewTrackCache()
	if _, ok := c.Get("abc123"); ok {
		t.Error("expected miss for unknown aircraft")
	}
}

func TestTrackCache_SetGet(t *testing.T) {
	c := NewTrackCache()
	c.Set(&model.AircraftState{ID: "abc123", Callsign: "UAL123"})

	a, ok := c.Get("abc123")
	if !ok {
		t.Fatal("expected hit")
	}
	if a.Callsign != "UAL123" {
		t.Errorf("unexpected callsign %q", a.Callsign)
	}
}

func TestTrackCache_MergeKeepsHistory(t *testing.T) {
	c := NewTrackCache()

	first := []model.AircraftState{{
		ID:        "abc123",
		Latitude:  40.0,
		Longitude: -74.0,
		Altitude:  35000,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}
	cached := c.Merge(first)
	if len(cached) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(cached))
	}
	cached[0].RecordPosition(10)

	second := []model.AircraftState{{
		ID:        "abc123",
		Latitude:  40.1,
		Longitude: -74.0,
		Altitude:  35000,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
	}}
	cached = c.Merge(second)

	if cached[0].Latitude != 40.1 {
		t.Errorf("expected refreshed kinematics, got latitude %f", cached[0].Latitude)
	}
	if len(cached[0].TrackHistory) != 1 {
		t.Errorf("expected history preserved across merge, got %d points", len(cached[0].TrackHistory))
	}
	if c.Len() != 1 {
		t.Errorf("expected single cached aircraft, got %d", c.Len())
	}
}

func TestTrackCache_Reset(t *testing.T) {
	c := NewTrackCache()
	c.Set(&model.AircraftState{ID: "abc123"})
	c.Reset()
	if c.Len() != 0 {
		t.Error("expected empty cache after reset")
	}
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if c.Value() != 1000 {
		t.Errorf("expected 1000, got %d", c.Value())
	}

	c.Set(5)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}
}
