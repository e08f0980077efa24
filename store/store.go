// Package store owns the in-memory task and progress collections for one
// running session. It is the single mutable source of truth: every mutation
// applies to memory synchronously and schedules a best-effort persistence
// write of the full collection snapshot.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dayline/domain"
	"dayline/storage"
)

// Store holds the task and daily progress collections. Construct one per
// session with New and inject it wherever needed; it has no package-level
// state.
type Store struct {
	kv     storage.KV
	logger *log.Logger
	writer *persistWriter

	mu       sync.Mutex
	loaded   bool
	tasks    []domain.Task
	progress []domain.DailyProgress
}

// New creates a Store persisting into kv. Call LoadFromStorage before any
// mutation and Close when the session ends.
func New(kv storage.KV, logger *log.Logger) *Store {
	if kv == nil {
		panic("store.New: kv is nil")
	}
	if logger == nil {
		panic("store.New: logger is nil")
	}
	return &Store{
		kv:       kv,
		logger:   logger,
		writer:   newPersistWriter(kv, logger),
		tasks:    []domain.Task{},
		progress: []domain.DailyProgress{},
	}
}

// LoadFromStorage replaces the in-memory collections wholesale with the
// persisted state. Read failures degrade to empty collections so a corrupt
// or missing local store never blocks startup.
func (s *Store) LoadFromStorage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tasks := []domain.Task{}
	if payload, found, err := s.kv.Get(ctx, storage.KeyTasks); err != nil {
		s.logger.WithError(err).Error("load tasks failed, starting empty")
	} else if found {
		decoded, err := storage.DecodeTasks(payload)
		if err != nil {
			s.logger.WithError(err).Error("decode tasks failed, starting empty")
		} else {
			tasks = decoded
		}
	}

	progress := []domain.DailyProgress{}
	if payload, found, err := s.kv.Get(ctx, storage.KeyProgress); err != nil {
		s.logger.WithError(err).Error("load progress failed, starting empty")
	} else if found {
		decoded, err := storage.DecodeProgress(payload)
		if err != nil {
			s.logger.WithError(err).Error("decode progress failed, starting empty")
		} else {
			progress = decoded
		}
	}

	s.mu.Lock()
	s.tasks = tasks
	s.progress = progress
	s.loaded = true
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"tasks": len(tasks), "progress_rows": len(progress)}).Debug("loaded local state")
	return nil
}

// AddTask creates a task with a fresh id. The add is rejected, logged and
// state left untouched when the collection is at capacity or the input is
// invalid; callers re-check the task count to detect rejection. A nil order
// appends to the end.
func (s *Store) AddTask(ctx context.Context, name, color string, order *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardLocked("add task") {
		return
	}
	if len(s.tasks) >= domain.MaxTasks {
		s.logger.WithField("max", domain.MaxTasks).Warn("task limit reached, add rejected")
		return
	}
	if name == "" {
		s.logger.Warn("empty task name, add rejected")
		return
	}
	if !domain.ValidColor(color) {
		s.logger.WithField("color", color).Warn("color not in palette, add rejected")
		return
	}

	ord := len(s.tasks)
	if order != nil {
		ord = *order
	}
	task := domain.Task{ID: uuid.NewString(), Name: name, Color: color, Order: ord}
	s.tasks = append(s.tasks, task)
	s.persistLocked()
	s.logger.WithFields(log.Fields{"task": task.ID, "order": ord}).Debug("task added")
}

// UpdateTask merges non-nil fields of upd into the task with the given id.
// Unknown ids are a no-op.
func (s *Store) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardLocked("update task") {
		return
	}
	if upd.Color != nil && !domain.ValidColor(*upd.Color) {
		s.logger.WithField("color", *upd.Color).Warn("color not in palette, update rejected")
		return
	}
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		if upd.Name != nil {
			s.tasks[i].Name = *upd.Name
		}
		if upd.Color != nil {
			s.tasks[i].Color = *upd.Color
		}
		if upd.Order != nil {
			s.tasks[i].Order = *upd.Order
		}
		s.persistLocked()
		return
	}
}

// DeleteTask removes the task with the given id. Progress rows referencing
// the id keep their entries; history is not rewritten. Unknown ids are a
// no-op.
func (s *Store) DeleteTask(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardLocked("delete task") {
		return
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.persistLocked()
			return
		}
	}
}

// ReorderTasks rebuilds the collection in the order of ids, assigning Order
// from position. Ids not present in the current collection are skipped and
// a repeated id is placed only at its first position; any current task
// missing from ids is dropped, so callers must pass a complete list.
func (s *Store) ReorderTasks(ctx context.Context, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardLocked("reorder tasks") {
		return
	}
	byID := make(map[string]domain.Task, len(s.tasks))
	for _, t := range s.tasks {
		byID[t.ID] = t
	}
	reordered := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		delete(byID, id)
		t.Order = len(reordered)
		reordered = append(reordered, t)
	}
	s.tasks = reordered
	s.persistLocked()
}

// RecordProgress upserts the level for taskID on the given day, creating
// the day's row lazily. An empty day means today.
func (s *Store) RecordProgress(ctx context.Context, taskID string, level domain.ProgressLevel, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardLocked("record progress") {
		return
	}
	if !level.Valid() {
		s.logger.WithField("level", int(level)).Warn("invalid progress level, record rejected")
		return
	}
	if day == "" {
		day = domain.Today()
	}
	if !domain.ValidDay(day) {
		s.logger.WithField("date", day).Warn("malformed date, record rejected")
		return
	}
	for i := range s.progress {
		if s.progress[i].Date == day {
			s.progress[i].TaskProgress[taskID] = level
			s.persistLocked()
			return
		}
	}
	s.progress = append(s.progress, domain.DailyProgress{
		Date:         day,
		TaskProgress: map[string]domain.ProgressLevel{taskID: level},
	})
	s.persistLocked()
}

// Tasks returns a copy of the task collection in insertion order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// TaskCount returns the current number of tasks.
func (s *Store) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Progress returns a deep copy of the daily progress collection.
func (s *Store) Progress() []domain.DailyProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DailyProgress, 0, len(s.progress))
	for _, row := range s.progress {
		out = append(out, row.Clone())
	}
	return out
}

// GetDailyProgress returns a copy of the row for day, or found=false when
// no progress was recorded that day.
func (s *Store) GetDailyProgress(day string) (domain.DailyProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.progress {
		if row.Date == day {
			return row.Clone(), true
		}
	}
	return domain.DailyProgress{}, false
}

// Replace swaps in reconciled collections and persists them. The sync
// controller calls it with the merge result.
func (s *Store) Replace(ctx context.Context, tasks []domain.Task, progress []domain.DailyProgress) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	if progress == nil {
		progress = []domain.DailyProgress{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]domain.Task(nil), tasks...)
	s.progress = make([]domain.DailyProgress, 0, len(progress))
	for _, row := range progress {
		s.progress = append(s.progress, row.Clone())
	}
	s.loaded = true
	s.persistLocked()
}

// SaveToStorage schedules a persistence write of the current snapshot. It
// is invoked internally after every mutation; exposed for callers that need
// an explicit save.
func (s *Store) SaveToStorage(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
}

// Flush blocks until every scheduled persistence write has committed. Use
// it when a completion guarantee is needed, e.g. before process exit.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close drains pending writes and stops the persistence worker.
func (s *Store) Close() {
	s.writer.close()
}

// guardLocked rejects mutations that arrive before the initial load, which
// would otherwise clobber persisted data with empty defaults.
func (s *Store) guardLocked(op string) bool {
	if !s.loaded {
		s.logger.WithField("op", op).Error("mutation before initial load rejected")
		return false
	}
	return true
}

// persistLocked snapshots both collections at call time and hands them to
// the write queue. Encoding failures are logged and swallowed; the
// in-memory mutation stands regardless of persistence outcome.
func (s *Store) persistLocked() {
	tasksPayload, err := storage.EncodeTasks(s.tasks)
	if err != nil {
		s.logger.WithError(err).Error("encode tasks failed, skipping persist")
		return
	}
	progressPayload, err := storage.EncodeProgress(s.progress)
	if err != nil {
		s.logger.WithError(err).Error("encode progress failed, skipping persist")
		return
	}
	s.writer.enqueue(snapshot{tasks: tasksPayload, progress: progressPayload})
}
