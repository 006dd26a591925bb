package run

import "time"

// Mode is the tracker state. Stopped is terminal for a session: it is reported in
// the stop event, after which the tracker is back in Idle.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeActive  Mode = "active"
	ModePaused  Mode = "paused"
	ModeStopped Mode = "stopped"
)

// PositionSample is one timestamped position fix delivered by the location adapter.
type PositionSample struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Timestamp          time.Time `json:"timestamp"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
}

func (p PositionSample) Coordinate() Coordinate {
	return Coordinate{Lat: p.Latitude, Lon: p.Longitude, RecordedAt: p.Timestamp}
}

type Coordinate struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recorded_at,omitempty"`
}

// Session is one run from start to stop. Only the Tracker mutates it; everything
// outside this package works on copies.
type Session struct {
	ID                  string        `json:"id"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             *time.Time    `json:"end_time,omitempty"`
	Path                []Coordinate  `json:"locations"`
	DistanceMeters      float64       `json:"distance_m"`
	TotalPausedDuration time.Duration `json:"-"`
}

func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// Duration is the moving time: elapsed time minus paused time, never negative.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return nonNegative(end.Sub(s.StartTime) - s.TotalPausedDuration)
}

// AveragePace returns minutes per kilometer, or 0 when no distance was covered.
func (s *Session) AveragePace(now time.Time) float64 {
	return Pace(s.Duration(now), s.DistanceMeters)
}

// SpeedKmh returns the average speed in km/h, or 0 when the pace is 0.
func (s *Session) SpeedKmh(now time.Time) float64 {
	return SpeedFromPace(s.AveragePace(now))
}

// Pace converts a moving duration and distance into minutes per kilometer.
func Pace(d time.Duration, distanceMeters float64) float64 {
	if distanceMeters <= 0 {
		return 0
	}
	return d.Minutes() / (distanceMeters / 1000)
}

func SpeedFromPace(pace float64) float64 {
	if pace <= 0 {
		return 0
	}
	return 60 / pace
}

func (s *Session) clone() Session {
	out := *s
	out.Path = append([]Coordinate(nil), s.Path...)
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return out
}

func (s *Session) append(c Coordinate) float64 {
	var prev *Coordinate
	if n := len(s.Path); n > 0 {
		prev = &s.Path[n-1]
	}
	delta := StepDistance(prev, c)
	s.Path = append(s.Path, c)
	s.DistanceMeters += delta
	return delta
}

func (s *Session) addPause(d time.Duration) {
	if d > 0 {
		s.TotalPausedDuration += d
	}
}

func (s *Session) finish(at time.Time) {
	s.EndTime = &at
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
