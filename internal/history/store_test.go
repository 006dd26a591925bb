package history

import (
	"testing"
	"time"

	"backend-stride/internal/run"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 21, 7, 0, 0, 0, time.UTC)

type recordingSink struct {
	saved   []string
	removed []string
}

func (s *recordingSink) Saved(session run.Session) { s.saved = append(s.saved, session.ID) }
func (s *recordingSink) Removed(id string)         { s.removed = append(s.removed, id) }

func completed(id string, start time.Time, distance float64, d time.Duration) run.Session {
	end := start.Add(d)
	return run.Session{ID: id, StartTime: start, EndTime: &end, DistanceMeters: distance}
}

func TestStoreAppendPreservesOrder(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)

	// same start time, distinct runs
	store.Append(completed("b", epoch, 10, time.Minute))
	store.Append(completed("a", epoch, 20, time.Minute))
	store.Append(completed("c", epoch.Add(-time.Hour), 30, time.Minute))

	var ids []string
	for _, s := range store.All() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
	assert.Equal(t, []string{"b", "a", "c"}, sink.saved)
	assert.Equal(t, 3, store.Len())
}

func TestStoreAllReturnsCopy(t *testing.T) {
	store := NewStore(nil)
	store.Append(completed("a", epoch, 10, time.Minute))

	all := store.All()
	all[0].ID = "mutated"

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestStoreRemoveAtMostOne(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Append(completed("a", epoch, 10, time.Minute))
	store.Append(completed("a", epoch, 20, time.Minute))
	store.Append(completed("b", epoch, 30, time.Minute))

	assert.True(t, store.Remove("a"))
	require.Equal(t, 2, store.Len())
	assert.Equal(t, 20.0, store.All()[0].DistanceMeters)

	assert.False(t, store.Remove("missing"))
	assert.Equal(t, []string{"a"}, sink.removed)
}

func TestStoreLoadDoesNotNotifySink(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Load([]run.Session{completed("old", epoch, 10, time.Minute)})

	assert.Equal(t, 1, store.Len())
	assert.Empty(t, sink.saved)

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestStoreBacksTracker(t *testing.T) {
	store := NewStore(nil)
	tr := run.NewTracker(run.Options{History: store, Permission: run.PermissionWhenInUse})

	_, err := tr.RequestStart()
	require.NoError(t, err)
	done, err := tr.RequestStop()
	require.NoError(t, err)

	got, ok := store.Get(done.ID)
	require.True(t, ok)
	assert.True(t, got.Ended())

	require.True(t, tr.DiscardCompletedRun())
	assert.Zero(t, store.Len())
}
