package run

import "time"

type EventKind string

const (
	EventStarted    EventKind = "started"
	EventSample     EventKind = "sample"
	EventPaused     EventKind = "paused"
	EventResumed    EventKind = "resumed"
	EventStopped    EventKind = "stopped"
	EventConfirmed  EventKind = "confirmed"
	EventDiscarded  EventKind = "discarded"
	EventPermission EventKind = "permission"
	EventAdvisory   EventKind = "advisory"
	EventClosed     EventKind = "closed"
)

// Event is published to subscribers after every state change. The snapshot in an
// event never carries the path; only its length.
type Event struct {
	Kind      EventKind `json:"kind"`
	Condition string    `json:"condition,omitempty"`
	Message   string    `json:"message,omitempty"`
	Snapshot  Snapshot  `json:"snapshot"`
	At        time.Time `json:"at"`
}

// Snapshot is a read-only view of the tracker for the presentation layer.
type Snapshot struct {
	Mode              Mode          `json:"mode"`
	Session           *Session      `json:"session,omitempty"`
	Points            int           `json:"points"`
	DisplayedDuration time.Duration `json:"-"`
	DisplayedSeconds  float64       `json:"displayed_seconds"`
	PausedSeconds     float64       `json:"paused_seconds"`
	AveragePace       float64       `json:"average_pace_min_per_km"`
	SpeedKmh          float64       `json:"speed_kmh"`
	Pending           *Summary      `json:"pending,omitempty"`
	Permission        Permission    `json:"permission"`
	Advisory          string        `json:"advisory,omitempty"`
}

// Summary is a completed (or in-flight) run with its derived metrics resolved.
type Summary struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Points          int        `json:"points"`
	DistanceMeters  float64    `json:"distance_m"`
	DurationSeconds float64    `json:"duration_seconds"`
	PausedSeconds   float64    `json:"paused_seconds"`
	AveragePace     float64    `json:"average_pace_min_per_km"`
	SpeedKmh        float64    `json:"speed_kmh"`
}

func (s *Session) Summarize(now time.Time) Summary {
	out := Summary{
		ID:              s.ID,
		StartTime:       s.StartTime,
		Points:          len(s.Path),
		DistanceMeters:  s.DistanceMeters,
		DurationSeconds: s.Duration(now).Seconds(),
		PausedSeconds:   s.TotalPausedDuration.Seconds(),
		AveragePace:     s.AveragePace(now),
		SpeedKmh:        s.SpeedKmh(now),
	}
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return out
}
