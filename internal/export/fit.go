package export

import (
	"encoding/binary"
	"io"
	"math"

	"backend-stride/internal/run"

	"github.com/pkg/errors"
	"github.com/tormoder/fit"
)

var ErrRunNotFinished = errors.New("run has not been stopped")

// EncodeFIT writes a completed run as a FIT activity file: timer start/stop
// events, one record per path point with cumulative distance, and one session.
func EncodeFIT(w io.Writer, s run.Session) error {
	if s.EndTime == nil {
		return ErrRunNotFinished
	}

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		return errors.Wrap(err, "new fit file")
	}
	activity, err := file.Activity()
	if err != nil {
		return errors.Wrap(err, "fit activity")
	}

	start := fit.NewEventMsg()
	start.Timestamp = s.StartTime
	start.Event = fit.EventTimer
	start.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, start)

	cumulative := 0.0
	for i, c := range s.Path {
		if i > 0 {
			cumulative += run.StepDistance(&s.Path[i-1], c)
		}
		rec := fit.NewRecordMsg()
		rec.Timestamp = c.RecordedAt
		if rec.Timestamp.IsZero() {
			rec.Timestamp = s.StartTime
		}
		rec.PositionLat = fit.NewLatitudeDegrees(c.Lat)
		rec.PositionLong = fit.NewLongitudeDegrees(c.Lon)
		rec.Distance = scaled(cumulative, 100)
		activity.Records = append(activity.Records, rec)
	}

	stop := fit.NewEventMsg()
	stop.Timestamp = *s.EndTime
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStopAll
	activity.Events = append(activity.Events, stop)

	moving := s.Duration(*s.EndTime)
	session := fit.NewSessionMsg()
	session.Timestamp = *s.EndTime
	session.StartTime = s.StartTime
	session.Sport = fit.SportRunning
	session.TotalElapsedTime = scaled(s.EndTime.Sub(s.StartTime).Seconds(), 1000)
	session.TotalTimerTime = scaled(moving.Seconds(), 1000)
	session.TotalDistance = scaled(s.DistanceMeters, 100)
	activity.Sessions = append(activity.Sessions, session)

	if err := fit.Encode(w, file, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "encode fit")
	}
	return nil
}

// scaled converts a value to the FIT fixed-point representation.
func scaled(v, scale float64) uint32 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	out := math.Round(v * scale)
	if out >= math.MaxUint32 {
		return math.MaxUint32 - 1
	}
	return uint32(out)
}
