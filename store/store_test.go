package store

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"dayline/domain"
	"dayline/storage"
)

type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	sets   int
	setErr error
	getErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newLoadedStore(t *testing.T, kv storage.KV) *Store {
	t.Helper()
	s := New(kv, quietLogger())
	t.Cleanup(s.Close)
	if err := s.LoadFromStorage(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func TestAddTaskCapacity(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())

	for i := 0; i < 10; i++ {
		s.AddTask(ctx, fmt.Sprintf("task %d", i), domain.TaskColors[i%len(domain.TaskColors)], nil)
	}
	if got := s.TaskCount(); got != domain.MaxTasks {
		t.Fatalf("expected %d tasks, got %d", domain.MaxTasks, got)
	}

	before := s.Tasks()
	s.AddTask(ctx, "one more", domain.TaskColors[0], nil)
	if !reflect.DeepEqual(before, s.Tasks()) {
		t.Fatal("rejected add changed the collection")
	}
}

func TestAddTaskValidation(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())

	s.AddTask(ctx, "", domain.TaskColors[0], nil)
	s.AddTask(ctx, "bad color", "#123456", nil)
	if s.TaskCount() != 0 {
		t.Fatalf("invalid adds accepted: %d tasks", s.TaskCount())
	}

	s.AddTask(ctx, "ok", domain.TaskColors[3], nil)
	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].ID == "" || tasks[0].Order != 0 {
		t.Fatalf("unexpected task: %+v", tasks)
	}
}

func TestUpdateTaskPartialAndUnknownID(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.AddTask(ctx, "read", domain.TaskColors[0], nil)
	id := s.Tasks()[0].ID

	name := "read more"
	s.UpdateTask(ctx, id, domain.TaskUpdate{Name: &name})
	got := s.Tasks()[0]
	if got.Name != "read more" || got.Color != domain.TaskColors[0] {
		t.Fatalf("partial update wrong: %+v", got)
	}
	if got.ID != id {
		t.Fatal("update changed the id")
	}

	before := s.Tasks()
	s.UpdateTask(ctx, "nope", domain.TaskUpdate{Name: &name})
	if !reflect.DeepEqual(before, s.Tasks()) {
		t.Fatal("unknown id update changed state")
	}
}

func TestDeleteTaskKeepsProgressRows(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.AddTask(ctx, "run", domain.TaskColors[0], nil)
	id := s.Tasks()[0].ID
	s.RecordProgress(ctx, id, domain.Target, "2026-08-30")

	s.DeleteTask(ctx, id)
	if s.TaskCount() != 0 {
		t.Fatal("task not deleted")
	}
	row, found := s.GetDailyProgress("2026-08-30")
	if !found || row.TaskProgress[id] != domain.Target {
		t.Fatal("delete cascaded into progress history")
	}

	s.DeleteTask(ctx, "nope") // no-op
}

func TestReorderTasksPermutation(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	for i := 0; i < 4; i++ {
		s.AddTask(ctx, fmt.Sprintf("t%d", i), domain.TaskColors[i], nil)
	}
	ids := make([]string, 0, 4)
	for _, task := range s.Tasks() {
		ids = append(ids, task.ID)
	}
	perm := []string{ids[2], ids[0], ids[3], ids[1]}

	s.ReorderTasks(ctx, perm)
	tasks := s.Tasks()
	domain.SortTasks(tasks)
	got := make([]string, 0, len(tasks))
	for i, task := range tasks {
		if task.Order != i {
			t.Fatalf("order not reassigned: %+v", task)
		}
		got = append(got, task.ID)
	}
	if strings.Join(got, ",") != strings.Join(perm, ",") {
		t.Fatalf("reorder mismatch: got %v want %v", got, perm)
	}
}

func TestReorderDropsUnlistedIDs(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.AddTask(ctx, "a", domain.TaskColors[0], nil)
	s.AddTask(ctx, "b", domain.TaskColors[1], nil)
	keep := s.Tasks()[1].ID

	s.ReorderTasks(ctx, []string{keep, "unknown"})
	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].ID != keep || tasks[0].Order != 0 {
		t.Fatalf("unexpected tasks after reorder: %+v", tasks)
	}
}

func TestReorderIgnoresDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.AddTask(ctx, "a", domain.TaskColors[0], nil)
	s.AddTask(ctx, "b", domain.TaskColors[1], nil)
	first := s.Tasks()[0].ID
	second := s.Tasks()[1].ID

	s.ReorderTasks(ctx, []string{second, second, first})
	tasks := s.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("duplicate id changed the collection size: %+v", tasks)
	}
	if tasks[0].ID != second || tasks[0].Order != 0 || tasks[1].ID != first || tasks[1].Order != 1 {
		t.Fatalf("unexpected order after duplicate id: %+v", tasks)
	}
}

func TestRecordProgressUpsert(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	day := "2026-08-31"

	s.RecordProgress(ctx, "t1", domain.Minimal, day)
	s.RecordProgress(ctx, "t2", domain.Target, day)
	s.RecordProgress(ctx, "t1", domain.BeyondTarget, day)

	if rows := s.Progress(); len(rows) != 1 {
		t.Fatalf("expected one row for the day, got %d", len(rows))
	}
	row, found := s.GetDailyProgress(day)
	if !found {
		t.Fatal("row not found")
	}
	if row.TaskProgress["t1"] != domain.BeyondTarget || row.TaskProgress["t2"] != domain.Target {
		t.Fatalf("unexpected mapping: %+v", row.TaskProgress)
	}
}

func TestRecordProgressLevelCycle(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	day := "2026-08-31"
	for _, lvl := range []domain.ProgressLevel{domain.Nothing, domain.Minimal, domain.Target, domain.BeyondTarget, domain.Nothing} {
		s.RecordProgress(ctx, "t1", lvl, day)
	}
	row, _ := s.GetDailyProgress(day)
	if row.TaskProgress["t1"] != domain.Nothing {
		t.Fatalf("expected final level 0, got %d", row.TaskProgress["t1"])
	}
}

func TestRecordProgressOnRowLoadedWithNullMapping(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	// A foreign-written or hand-edited payload can legitimately carry a
	// null mapping for a day.
	kv.data[storage.KeyProgress] = `{"dailyProgress":[{"date":"2026-08-31","taskProgress":null}]}`
	s := newLoadedStore(t, kv)

	s.RecordProgress(ctx, "t1", domain.Target, "2026-08-31")
	row, found := s.GetDailyProgress("2026-08-31")
	if !found || row.TaskProgress["t1"] != domain.Target {
		t.Fatalf("record on loaded row failed: %+v", row)
	}
}

func TestRecordProgressDefaultsToToday(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.RecordProgress(ctx, "t1", domain.Target, "")
	if _, found := s.GetDailyProgress(domain.Today()); !found {
		t.Fatal("progress not recorded under today's key")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := newLoadedStore(t, kv)
	s.AddTask(ctx, "first", domain.TaskColors[0], nil)
	s.AddTask(ctx, "second", domain.TaskColors[1], nil)
	s.RecordProgress(ctx, s.Tasks()[0].ID, domain.Minimal, "2026-08-30")
	s.RecordProgress(ctx, s.Tasks()[1].ID, domain.BeyondTarget, "2026-08-31")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// Same KV, fresh store: simulates a process restart.
	restarted := newLoadedStore(t, kv)
	if !reflect.DeepEqual(s.Tasks(), restarted.Tasks()) {
		t.Fatalf("tasks not restored: %+v", restarted.Tasks())
	}
	if !reflect.DeepEqual(s.Progress(), restarted.Progress()) {
		t.Fatalf("progress not restored: %+v", restarted.Progress())
	}
}

func TestMutationBeforeLoadRejected(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	kv.data[storage.KeyTasks] = `{"tasks":[{"id":"t1","name":"keep","color":"#FF6B6B","order":0}]}`

	s := New(kv, quietLogger())
	defer s.Close()
	s.AddTask(ctx, "too early", domain.TaskColors[0], nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if kv.data[storage.KeyTasks] != `{"tasks":[{"id":"t1","name":"keep","color":"#FF6B6B","order":0}]}` {
		t.Fatal("pre-load mutation clobbered persisted data")
	}

	if err := s.LoadFromStorage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := s.Tasks(); len(got) != 1 || got[0].Name != "keep" {
		t.Fatalf("persisted task lost: %+v", got)
	}
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	kv := newMemKV()
	kv.getErr = fmt.Errorf("disk on fire")
	s := New(kv, quietLogger())
	defer s.Close()
	if err := s.LoadFromStorage(context.Background()); err != nil {
		t.Fatalf("load should degrade, got %v", err)
	}
	if s.TaskCount() != 0 || len(s.Progress()) != 0 {
		t.Fatal("expected empty collections")
	}
}

func TestPersistFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := newLoadedStore(t, kv)
	kv.mu.Lock()
	kv.setErr = fmt.Errorf("write refused")
	kv.mu.Unlock()

	s.AddTask(ctx, "still here", domain.TaskColors[0], nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if s.TaskCount() != 1 {
		t.Fatal("persistence failure rolled back the mutation")
	}
}

func TestReplacePersists(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := newLoadedStore(t, kv)

	tasks := []domain.Task{{ID: "r1", Name: "remote", Color: domain.TaskColors[2], Order: 0}}
	progress := []domain.DailyProgress{{Date: "2026-08-29", TaskProgress: map[string]domain.ProgressLevel{"r1": domain.Target}}}
	s.Replace(ctx, tasks, progress)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	decoded, err := storage.DecodeTasks(kv.data[storage.KeyTasks])
	if err != nil {
		t.Fatalf("decode persisted tasks: %v", err)
	}
	if !reflect.DeepEqual(decoded, tasks) {
		t.Fatalf("replace not persisted: %+v", decoded)
	}
}

func TestReadAccessorsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := newLoadedStore(t, newMemKV())
	s.AddTask(ctx, "a", domain.TaskColors[0], nil)
	s.RecordProgress(ctx, "t", domain.Target, "2026-08-31")

	tasks := s.Tasks()
	tasks[0].Name = "mutated"
	if s.Tasks()[0].Name != "a" {
		t.Fatal("Tasks returned aliased slice")
	}

	row, _ := s.GetDailyProgress("2026-08-31")
	row.TaskProgress["t"] = domain.Nothing
	again, _ := s.GetDailyProgress("2026-08-31")
	if again.TaskProgress["t"] != domain.Target {
		t.Fatal("GetDailyProgress returned aliased map")
	}
}
