package store

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dayline/storage"
)

const persistTimeout = 30 * time.Second

type snapshot struct {
	tasks    string
	progress string
}

// persistWriter serializes persistence writes: one write in flight at a
// time, and a single pending slot where a newer snapshot supersedes a
// queued one that has not started yet. The KV therefore converges to the
// last enqueued snapshot regardless of mutation timing.
type persistWriter struct {
	kv     storage.KV
	logger *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *snapshot
	writing bool
	closed  bool
	done    chan struct{}
}

func newPersistWriter(kv storage.KV, logger *log.Logger) *persistWriter {
	w := &persistWriter{kv: kv, logger: logger, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// enqueue replaces any not-yet-started snapshot with snap.
func (w *persistWriter) enqueue(snap snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("persist writer closed, dropping snapshot")
		return
	}
	w.pending = &snap
	w.cond.Broadcast()
}

func (w *persistWriter) run() {
	defer close(w.done)
	w.mu.Lock()
	for {
		for w.pending == nil && !w.closed {
			w.cond.Wait()
		}
		if w.pending == nil {
			w.mu.Unlock()
			return
		}
		snap := *w.pending
		w.pending = nil
		w.writing = true
		w.mu.Unlock()

		w.write(snap)

		w.mu.Lock()
		w.writing = false
		w.cond.Broadcast()
	}
}

// write is best effort: failures are logged, never surfaced to mutators.
func (w *persistWriter) write(snap snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := w.kv.Set(ctx, storage.KeyTasks, snap.tasks); err != nil {
		w.logger.WithError(err).Error("persist tasks failed")
	}
	if err := w.kv.Set(ctx, storage.KeyProgress, snap.progress); err != nil {
		w.logger.WithError(err).Error("persist progress failed")
	}
}

// flush blocks until the queue is drained and no write is in flight, or
// ctx expires. Expiry broadcasts on the condition variable so the wait
// always wakes; nothing is left parked behind a stuck write.
func (w *persistWriter) flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pending != nil || w.writing {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	return nil
}

// close drains the pending snapshot and stops the worker.
func (w *persistWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
