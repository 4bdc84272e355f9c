// Package cache holds the in-memory track cache. Lookups happen on every
// detection cycle, so everything stays in process memory behind one mutex.
package cache

import (
	"sync"

	"github.com/atcwatch/skyguard/internal/model"
)

// TrackCache keeps the latest known state for every aircraft in the sector,
// keyed by ICAO address. States persist across detection cycles so that track
// history can accumulate.
type TrackCache struct {
	m        sync.Mutex
	Aircraft map[string]*model.AircraftState
}

func NewTrackCache() *TrackCache {
	return &TrackCache{
		Aircraft: make(map[string]*model.AircraftState),
	}
}

func (c *TrackCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Aircraft = make(map[string]*model.AircraftState)
}

func (c *TrackCache) Get(id string) (*model.AircraftState, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	a, ok := c.Aircraft[id]
	return a, ok
}

func (c *TrackCache) Set(a *model.AircraftState) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Aircraft[a.ID] = a
}

// Merge folds a fresh snapshot into the cache: known aircraft keep their
// accumulated track history with kinematics refreshed, unknown aircraft are
// inserted. Returns the cached entries for the snapshot, in snapshot order.
func (c *TrackCache) Merge(snapshot []model.AircraftState) []*model.AircraftState {
	c.m.Lock()
	defer c.m.Unlock()

	out := make([]*model.AircraftState, 0, len(snapshot))
	for i := range snapshot {
		s := snapshot[i]
		cached, ok := c.Aircraft[s.ID]
		if !ok {
			cached = &s
			c.Aircraft[s.ID] = cached
		} else {
			history := cached.TrackHistory
			trajectory := cached.PredictedTrajectory
			*cached = s
			cached.TrackHistory = history
			cached.PredictedTrajectory = trajectory
		}
		out = append(out, cached)
	}
	return out
}

func (c *TrackCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.Aircraft)
}

// SafeCounter is a mutex-guarded int, shared between the detection cycle
// goroutine and status readers. The zero value is ready to use.
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
