package run

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocationSource is the position feed the tracker switches on and off. Enable and
// Disable are called with the tracker locked, so they must not block and must not
// call back into the tracker.
type LocationSource interface {
	Enable()
	Disable()
}

// History receives finalized sessions. Implementations must not block.
type History interface {
	Append(s Session)
	Remove(id string) bool
}

type Clock func() time.Time

type Options struct {
	Clock      Clock
	Source     LocationSource
	History    History
	Permission Permission
	// StallAfter is how long an active run may go without an applied sample
	// before CheckSignal reports ErrSignalDegraded. Zero disables the check.
	StallAfter time.Duration
}

// Tracker is the run-tracking state machine. It owns the in-progress session and
// serializes every transition and ingested sample behind one lock.
type Tracker struct {
	mu sync.Mutex

	now        Clock
	source     LocationSource
	history    History
	stallAfter time.Duration

	mode             Mode
	active           *Session
	pauseStartedAt   time.Time
	accumulatedPause time.Duration
	pending          *Session
	permission       Permission
	lastProgress     time.Time
	advisory         error
	closed           bool

	subs    map[int]chan Event
	nextSub int
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		now:        opts.Clock,
		source:     opts.Source,
		history:    opts.History,
		stallAfter: opts.StallAfter,
		mode:       ModeIdle,
		permission: opts.Permission,
		subs:       map[int]chan Event{},
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.source == nil {
		t.source = nopSource{}
	}
	if t.history == nil {
		t.history = nopHistory{}
	}
	if t.permission == "" {
		t.permission = PermissionNotDetermined
	}
	return t
}

// RequestStart begins a new session. The previous pending session, if any, stays
// pending until it is confirmed, discarded, or replaced by the next stop.
func (t *Tracker) RequestStart() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.snapshotLocked(false), ErrTrackerClosed
	}
	if !t.permission.Granted() {
		return t.snapshotLocked(false), ErrPermissionDenied
	}
	if t.mode == ModeActive || t.mode == ModePaused {
		return t.snapshotLocked(false), ErrAlreadyTracking
	}

	now := t.now()
	t.active = &Session{
		ID:        uuid.NewString(),
		StartTime: now,
		Path:      []Coordinate{},
	}
	t.mode = ModeActive
	t.pauseStartedAt = time.Time{}
	t.accumulatedPause = 0
	t.lastProgress = now
	t.advisory = nil
	t.source.Enable()

	t.publishLocked(EventStarted, nil)
	return t.snapshotLocked(false), nil
}

// Ingest applies a sample to the active session. Samples delivered while idle or
// paused are dropped. Samples are applied in delivery order; timestamps are not
// used for reordering.
func (t *Tracker) Ingest(sample PositionSample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.mode != ModeActive || t.active == nil {
		return false
	}

	t.active.append(sample.Coordinate())
	t.lastProgress = t.now()
	if IsAdvisory(t.advisory) {
		t.advisory = nil
	}

	t.publishLocked(EventSample, nil)
	return true
}

func (t *Tracker) RequestPause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}
	if t.mode != ModeActive {
		return ErrNotTracking
	}

	t.mode = ModePaused
	t.pauseStartedAt = t.now()
	t.source.Disable()

	t.publishLocked(EventPaused, nil)
	return nil
}

func (t *Tracker) RequestResume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}
	if t.mode != ModePaused {
		return ErrNotPaused
	}

	now := t.now()
	t.foldPauseLocked(now)
	t.mode = ModeActive
	t.lastProgress = now
	t.source.Enable()

	t.publishLocked(EventResumed, nil)
	return nil
}

// RequestStop finalizes the session, moves it into history and keeps it in the
// pending slot until ConfirmCompletedRun or DiscardCompletedRun.
func (t *Tracker) RequestStop() (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Session{}, ErrTrackerClosed
	}
	if t.mode != ModeActive && t.mode != ModePaused {
		return Session{}, ErrNotTracking
	}
	return t.stopLocked(), nil
}

func (t *Tracker) stopLocked() Session {
	now := t.now()
	if t.mode == ModePaused {
		t.foldPauseLocked(now)
	}
	t.source.Disable()

	finished := t.active
	finished.finish(now)
	t.history.Append(finished.clone())

	t.pending = finished
	t.active = nil
	t.accumulatedPause = 0
	t.advisory = nil

	// Stopped is only observable in the stop event; the machine rests in Idle.
	t.mode = ModeStopped
	t.publishLocked(EventStopped, nil)
	t.mode = ModeIdle
	return finished.clone()
}

func (t *Tracker) foldPauseLocked(now time.Time) {
	if t.pauseStartedAt.IsZero() {
		return
	}
	elapsed := nonNegative(now.Sub(t.pauseStartedAt))
	t.accumulatedPause += elapsed
	t.active.addPause(elapsed)
	t.pauseStartedAt = time.Time{}
}

// ConfirmCompletedRun keeps the pending run in history and clears the slot.
func (t *Tracker) ConfirmCompletedRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.pending == nil {
		return false
	}
	t.pending = nil
	t.publishLocked(EventConfirmed, nil)
	return true
}

// DiscardCompletedRun removes the pending run from history and clears the slot.
func (t *Tracker) DiscardCompletedRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.pending == nil {
		return false
	}
	t.history.Remove(t.pending.ID)
	t.pending = nil
	t.publishLocked(EventDiscarded, nil)
	return true
}

// UpdatePermission records the latest authorization status. Losing permission
// mid-run is reported but does not stop the run; ingestion simply stalls.
func (t *Tracker) UpdatePermission(p Permission) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}
	t.permission = p
	if p.Granted() {
		if errors.Is(t.advisory, ErrPermissionDenied) {
			t.advisory = nil
		}
		t.publishLocked(EventPermission, nil)
		return nil
	}

	if t.mode == ModeActive || t.mode == ModePaused {
		t.advisory = fmt.Errorf("%w: authorization changed to %s", ErrPermissionDenied, p)
		t.publishLocked(EventAdvisory, t.advisory)
		return t.advisory
	}
	t.publishLocked(EventPermission, nil)
	return nil
}

// ReportLocationError records a failure reported by the location adapter as a
// degraded-signal advisory.
func (t *Tracker) ReportLocationError(cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}
	t.advisory = fmt.Errorf("%w: %v", ErrSignalDegraded, cause)
	t.publishLocked(EventAdvisory, t.advisory)
	return t.advisory
}

// CheckSignal reports ErrSignalDegraded when an active run has not received a
// sample within the stall window. The advisory is published once per stall.
func (t *Tracker) CheckSignal() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.mode != ModeActive || t.stallAfter <= 0 {
		return nil
	}
	quiet := t.now().Sub(t.lastProgress)
	if quiet <= t.stallAfter {
		return nil
	}

	alreadyReported := IsAdvisory(t.advisory)
	t.advisory = fmt.Errorf("%w: no position for %s", ErrSignalDegraded, quiet.Round(time.Second))
	if !alreadyReported {
		t.publishLocked(EventAdvisory, t.advisory)
	}
	return t.advisory
}

// DisplayedDuration is the timer shown to the runner. While paused it is frozen
// at the pause instant.
func (t *Tracker) DisplayedDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayedLocked()
}

func (t *Tracker) displayedLocked() time.Duration {
	if t.active == nil {
		return 0
	}
	if t.mode == ModePaused && !t.pauseStartedAt.IsZero() {
		return nonNegative(t.pauseStartedAt.Sub(t.active.StartTime) - t.accumulatedPause)
	}
	return t.active.Duration(t.now())
}

func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Snapshot returns the current state including a copy of the active path.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(true)
}

func (t *Tracker) snapshotLocked(withPath bool) Snapshot {
	snap := Snapshot{
		Mode:       t.mode,
		Permission: t.permission,
	}
	if t.advisory != nil {
		snap.Advisory = t.advisory.Error()
	}
	if t.pending != nil {
		pending := t.pending.Summarize(t.now())
		snap.Pending = &pending
	}
	if t.active == nil {
		return snap
	}

	session := t.active.clone()
	if !withPath {
		session.Path = nil
	}
	snap.Session = &session
	snap.Points = len(t.active.Path)
	snap.DisplayedDuration = t.displayedLocked()
	snap.DisplayedSeconds = snap.DisplayedDuration.Seconds()
	snap.PausedSeconds = t.accumulatedPause.Seconds()
	snap.AveragePace = Pace(snap.DisplayedDuration, t.active.DistanceMeters)
	snap.SpeedKmh = SpeedFromPace(snap.AveragePace)
	return snap
}

// Subscribe registers an observer. Events are delivered without blocking: a full
// channel misses the event. The returned func unsubscribes and closes the channel.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(ch)
			}
		})
	}
}

func (t *Tracker) publishLocked(kind EventKind, cond error) {
	if len(t.subs) == 0 {
		return
	}
	ev := Event{
		Kind:     kind,
		Snapshot: t.snapshotLocked(false),
		At:       t.now(),
	}
	if cond != nil {
		ev.Condition = ConditionName(cond)
		ev.Message = cond.Error()
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close tears the tracker down. A run still in progress is stopped first so its
// data reaches history. Subscribers are closed and every later operation reports
// ErrTrackerClosed or does nothing.
func (t *Tracker) Close() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Session{}, false
	}

	var (
		finished Session
		stopped  bool
	)
	if t.mode == ModeActive || t.mode == ModePaused {
		finished = t.stopLocked()
		stopped = true
	}

	t.publishLocked(EventClosed, nil)
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.closed = true
	return finished, stopped
}

type nopSource struct{}

func (nopSource) Enable()  {}
func (nopSource) Disable() {}

type nopHistory struct{}

func (nopHistory) Append(Session)     {}
func (nopHistory) Remove(string) bool { return false }
