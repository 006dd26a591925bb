package history

import (
	"context"
	"encoding/json"
	"time"

	"backend-stride/internal/db"
	"backend-stride/internal/run"

	"github.com/pkg/errors"
)

// Location is the persisted form of a path point.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is a completed run as stored in the runs table.
type Record struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Locations      []Location `json:"locations"`
	DistanceMeters float64    `json:"distance_m"`
	PausedSeconds  float64    `json:"paused_seconds"`
}

func RecordFromSession(userID string, s run.Session) Record {
	rec := Record{
		ID:             s.ID,
		UserID:         userID,
		StartTime:      s.StartTime,
		Locations:      make([]Location, 0, len(s.Path)),
		DistanceMeters: s.DistanceMeters,
		PausedSeconds:  s.TotalPausedDuration.Seconds(),
	}
	if s.EndTime != nil {
		rec.EndTime = *s.EndTime
	}
	for _, c := range s.Path {
		rec.Locations = append(rec.Locations, Location{Lat: c.Lat, Lon: c.Lon})
	}
	return rec
}

// Session rebuilds the in-memory run. Point timestamps are not archived.
func (r Record) Session() run.Session {
	end := r.EndTime
	s := run.Session{
		ID:                  r.ID,
		StartTime:           r.StartTime,
		EndTime:             &end,
		Path:                make([]run.Coordinate, 0, len(r.Locations)),
		DistanceMeters:      r.DistanceMeters,
		TotalPausedDuration: time.Duration(r.PausedSeconds * float64(time.Second)),
	}
	for _, l := range r.Locations {
		s.Path = append(s.Path, run.Coordinate{Lat: l.Lat, Lon: l.Lon})
	}
	return s
}

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  start_time TIMESTAMPTZ NOT NULL,
  end_time TIMESTAMPTZ NOT NULL,
  locations JSONB NOT NULL DEFAULT '[]',
  distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
  paused_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_user_start ON runs(user_id, start_time);
`

type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "create runs schema")
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, rec Record) error {
	locations, err := json.Marshal(rec.Locations)
	if err != nil {
		return errors.Wrap(err, "marshal locations")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO runs (id, user_id, start_time, end_time, locations, distance_m, paused_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.UserID, rec.StartTime, rec.EndTime, locations, rec.DistanceMeters, rec.PausedSeconds)
	if err != nil {
		return errors.Wrapf(err, "save run %s", rec.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM runs WHERE id=$1 AND user_id=$2`, id, userID); err != nil {
		return errors.Wrapf(err, "delete run %s", id)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, userID string) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, start_time, end_time, locations, distance_m, paused_seconds
		FROM runs WHERE user_id=$1
		ORDER BY start_time, id
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			locations []byte
		)
		if err := rows.Scan(&rec.ID, &rec.StartTime, &rec.EndTime, &locations, &rec.DistanceMeters, &rec.PausedSeconds); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if len(locations) > 0 {
			if err := json.Unmarshal(locations, &rec.Locations); err != nil {
				return nil, errors.Wrapf(err, "decode locations of run %s", rec.ID)
			}
		}
		rec.UserID = userID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return records, nil
}
