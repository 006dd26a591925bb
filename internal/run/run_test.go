package run

import (
	"math"
	"sync"
	"time"
)

var epoch = time.Date(2026, 5, 21, 7, 0, 0, 0, time.UTC)

// metersNorth is the latitude delta for walking d meters along a meridian.
func metersNorth(d float64) float64 {
	return d / (6371000.0 * math.Pi / 180)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

type recordingSource struct {
	enabled  bool
	enables  int
	disables int
}

func (s *recordingSource) Enable() {
	s.enabled = true
	s.enables++
}

func (s *recordingSource) Disable() {
	s.enabled = false
	s.disables++
}

type memHistory struct {
	sessions []Session
}

func (h *memHistory) Append(s Session) {
	h.sessions = append(h.sessions, s)
}

func (h *memHistory) Remove(id string) bool {
	for i, s := range h.sessions {
		if s.ID == id {
			h.sessions = append(h.sessions[:i], h.sessions[i+1:]...)
			return true
		}
	}
	return false
}

type fixture struct {
	clock   *fakeClock
	source  *recordingSource
	history *memHistory
	tracker *Tracker
}

func newFixture(perm Permission) *fixture {
	f := &fixture{
		clock:   newFakeClock(),
		source:  &recordingSource{},
		history: &memHistory{},
	}
	f.tracker = NewTracker(Options{
		Clock:      f.clock.Now,
		Source:     f.source,
		History:    f.history,
		Permission: perm,
		StallAfter: 30 * time.Second,
	})
	return f
}

func sampleAt(lat, lon float64, at time.Time) PositionSample {
	return PositionSample{Latitude: lat, Longitude: lon, Timestamp: at}
}
