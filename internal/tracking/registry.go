package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"backend-stride/internal/geofix"
	"backend-stride/internal/history"
	"backend-stride/internal/run"
	"backend-stride/internal/stream"
)

// Loader reads a user's archived runs.
type Loader interface {
	List(ctx context.Context, userID string) ([]history.Record, error)
}

type Options struct {
	MinSeparationM float64
	StallAfter     time.Duration
	EventBuffer    int
	Clock          run.Clock

	Archiver *history.Archiver
	Loader   Loader
	Hub      *stream.Hub
}

// Entry is everything owned on behalf of one signed-in user.
type Entry struct {
	Tracker *run.Tracker
	Feed    *geofix.Adapter
	History *history.Store
}

// Registry creates one tracker per user on first use and tears it down when the
// user's session ends.
type Registry struct {
	opts    Options
	mu      sync.Mutex
	entries map[string]*Entry
	// released holds the history of a released entry until the user comes back,
	// so runs still queued for the archive are not lost on the reload.
	released map[string][]run.Session
}

func NewRegistry(opts Options) *Registry {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}
	return &Registry{
		opts:     opts,
		entries:  map[string]*Entry{},
		released: map[string][]run.Session{},
	}
}

func (r *Registry) Get(ctx context.Context, userID string) *Entry {
	r.mu.Lock()
	if entry, ok := r.lookupLocked(userID); ok {
		r.mu.Unlock()
		return entry
	}
	r.mu.Unlock()

	archived := r.loadArchive(ctx, userID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.lookupLocked(userID); ok {
		return entry
	}
	entry := r.newEntry(userID, archived)
	r.entries[userID] = entry
	return entry
}

// lookupLocked returns the live entry, or rebuilds one from a released history.
func (r *Registry) lookupLocked(userID string) (*Entry, bool) {
	if entry, ok := r.entries[userID]; ok {
		return entry, true
	}
	sessions, ok := r.released[userID]
	if !ok {
		return nil, false
	}
	delete(r.released, userID)
	entry := r.newEntry(userID, sessions)
	r.entries[userID] = entry
	return entry, true
}

func (r *Registry) loadArchive(ctx context.Context, userID string) []run.Session {
	if r.opts.Loader == nil {
		return nil
	}
	records, err := r.opts.Loader.List(ctx, userID)
	if err != nil {
		log.Printf("load run history for %s: %v", userID, err)
		return nil
	}
	sessions := make([]run.Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, rec.Session())
	}
	return sessions
}

func (r *Registry) newEntry(userID string, archived []run.Session) *Entry {
	var sink history.Sink
	if r.opts.Archiver != nil {
		sink = r.opts.Archiver.For(userID)
	}
	store := history.NewStore(sink)
	store.Load(archived)

	feed := geofix.New(r.opts.MinSeparationM)
	tracker := run.NewTracker(run.Options{
		Clock:      r.opts.Clock,
		Source:     feed,
		History:    store,
		StallAfter: r.opts.StallAfter,
	})
	feed.Attach(tracker)

	if r.opts.Hub != nil {
		events, _ := tracker.Subscribe(r.opts.EventBuffer)
		go r.opts.Hub.Forward(userID, events)
	}

	return &Entry{Tracker: tracker, Feed: feed, History: store}
}

// Release closes the user's tracker. A run still in progress is stopped and kept
// in history.
func (r *Registry) Release(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return false
	}
	delete(r.entries, userID)
	entry.Tracker.Close()
	r.released[userID] = entry.History.All()
	return true
}

func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*Entry{}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.Tracker.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CheckSignals runs the stall check on every tracker and returns how many
// active runs currently have a degraded signal.
func (r *Registry) CheckSignals() int {
	r.mu.Lock()
	trackers := make([]*run.Tracker, 0, len(r.entries))
	for _, entry := range r.entries {
		trackers = append(trackers, entry.Tracker)
	}
	r.mu.Unlock()

	degraded := 0
	for _, t := range trackers {
		if t.CheckSignal() != nil {
			degraded++
		}
	}
	return degraded
}

func (r *Registry) RunWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckSignals()
		}
	}
}

func (r *Registry) now() time.Time {
	if r.opts.Clock != nil {
		return r.opts.Clock()
	}
	return time.Now()
}
