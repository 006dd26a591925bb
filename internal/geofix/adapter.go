package geofix

import (
	"sync"

	"backend-stride/internal/run"
	"backend-stride/internal/shared/geo"
)

// Sink receives samples that passed the adapter's filters.
type Sink interface {
	Ingest(sample run.PositionSample) bool
}

// Adapter is the position feed for one tracker. It forwards samples only while
// enabled and only once the runner moved at least MinSeparation meters from the
// last forwarded position.
type Adapter struct {
	mu            sync.Mutex
	sink          Sink
	minSeparation float64
	enabled       bool
	last          *run.Coordinate
	dropped       int
}

func New(minSeparationM float64) *Adapter {
	return &Adapter{minSeparation: minSeparationM}
}

// Attach sets the receiver of accepted samples.
func (a *Adapter) Attach(sink Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// Enable starts forwarding. The separation filter restarts from the next sample.
func (a *Adapter) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	a.last = nil
}

func (a *Adapter) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
}

func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Dropped is the number of samples filtered out so far.
func (a *Adapter) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// OnSample filters one delivered sample and hands it to the sink. It reports
// whether the sink applied it.
func (a *Adapter) OnSample(sample run.PositionSample) bool {
	a.mu.Lock()
	if !a.enabled || a.sink == nil || a.tooClose(sample) {
		a.dropped++
		a.mu.Unlock()
		return false
	}
	sink := a.sink
	c := sample.Coordinate()
	a.last = &c
	a.mu.Unlock()

	// The sink may call Enable/Disable, so it runs unlocked.
	return sink.Ingest(sample)
}

func (a *Adapter) tooClose(sample run.PositionSample) bool {
	if a.last == nil || a.minSeparation <= 0 {
		return false
	}
	return geo.HaversineMeters(a.last.Lat, a.last.Lon, sample.Latitude, sample.Longitude) < a.minSeparation
}

var _ run.LocationSource = (*Adapter)(nil)
