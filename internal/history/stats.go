package history

import (
	"time"

	"backend-stride/internal/run"

	"github.com/montanaflynn/stats"
)

type Stats struct {
	Runs                 int     `json:"runs"`
	TotalDistanceMeters  float64 `json:"total_distance_m"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	LongestRunMeters     float64 `json:"longest_run_m"`
	MeanPace             float64 `json:"mean_pace_min_per_km"`
	MedianPace           float64 `json:"median_pace_min_per_km"`
	BestPace             float64 `json:"best_pace_min_per_km"`
}

// Summarize aggregates completed runs. Pace figures only consider runs that
// covered some distance; they are 0 when there are none.
func Summarize(sessions []run.Session, now time.Time) Stats {
	out := Stats{Runs: len(sessions)}
	if len(sessions) == 0 {
		return out
	}

	distances := make(stats.Float64Data, 0, len(sessions))
	durations := make(stats.Float64Data, 0, len(sessions))
	paces := make(stats.Float64Data, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		distances = append(distances, s.DistanceMeters)
		durations = append(durations, s.Duration(now).Seconds())
		if pace := s.AveragePace(now); pace > 0 {
			paces = append(paces, pace)
		}
	}

	out.TotalDistanceMeters, _ = stats.Sum(distances)
	out.TotalDurationSeconds, _ = stats.Sum(durations)
	out.LongestRunMeters, _ = stats.Max(distances)
	if len(paces) > 0 {
		out.MeanPace, _ = stats.Mean(paces)
		out.MedianPace, _ = stats.Median(paces)
		out.BestPace, _ = stats.Min(paces)
	}
	return out
}
