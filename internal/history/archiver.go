package history

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"backend-stride/internal/run"
)

type Writer interface {
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, userID, id string) error
}

type archiveOp struct {
	record Record
	delete bool
}

// Archiver persists history changes in the background so the tracker never waits
// on the database.
type Archiver struct {
	writer  Writer
	queue   chan archiveOp
	timeout time.Duration
	dropped atomic.Int64
}

func NewArchiver(w Writer, queueSize int) *Archiver {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Archiver{
		writer:  w,
		queue:   make(chan archiveOp, queueSize),
		timeout: 5 * time.Second,
	}
}

// For returns a Sink that archives the given user's history.
func (a *Archiver) For(userID string) Sink {
	return userSink{archiver: a, userID: userID}
}

func (a *Archiver) enqueue(op archiveOp) {
	select {
	case a.queue <- op:
	default:
		n := a.dropped.Add(1)
		log.Printf("archive queue full, dropping run %s (%d dropped so far)", op.record.ID, n)
	}
}

// Dropped is the number of history changes that never reached the writer
// because the queue was full.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case op := <-a.queue:
			a.apply(op)
		case <-ctx.Done():
			a.flush()
			return
		}
	}
}

func (a *Archiver) flush() {
	for {
		select {
		case op := <-a.queue:
			a.apply(op)
		default:
			return
		}
	}
}

// apply runs detached from Run's context so that shutdown still flushes.
func (a *Archiver) apply(op archiveOp) {
	opCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	var err error
	if op.delete {
		err = a.writer.Delete(opCtx, op.record.UserID, op.record.ID)
	} else {
		err = a.writer.Save(opCtx, op.record)
	}
	if err != nil {
		log.Printf("archive error: %v", err)
	}
}

type userSink struct {
	archiver *Archiver
	userID   string
}

func (s userSink) Saved(session run.Session) {
	s.archiver.enqueue(archiveOp{record: RecordFromSession(s.userID, session)})
}

func (s userSink) Removed(id string) {
	s.archiver.enqueue(archiveOp{record: Record{ID: id, UserID: s.userID}, delete: true})
}
