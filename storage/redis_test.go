package storage

import (
	"context"
	"reflect"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dayline/domain"
)

func newTestRedisKV(t *testing.T) *RedisKV {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisKV(client)
}

func TestRedisKVMissThenRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newTestRedisKV(t)

	if _, found, err := kv.Get(ctx, KeyTasks); err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}

	tasks := []domain.Task{
		{ID: "t1", Name: "Read", Color: domain.TaskColors[1], Order: 0},
		{ID: "t2", Name: "Write", Color: domain.TaskColors[2], Order: 1},
	}
	payload, err := EncodeTasks(tasks)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := kv.Set(ctx, KeyTasks, payload); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := kv.Get(ctx, KeyTasks)
	if err != nil || !found {
		t.Fatalf("get, found=%v err=%v", found, err)
	}
	decoded, err := DecodeTasks(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, tasks) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestEncodeDecodeProgress(t *testing.T) {
	rows := []domain.DailyProgress{
		{Date: "2026-08-30", TaskProgress: map[string]domain.ProgressLevel{"t1": domain.Minimal}},
		{Date: "2026-08-31", TaskProgress: map[string]domain.ProgressLevel{"t1": domain.BeyondTarget, "t2": domain.Target}},
	}
	payload, err := EncodeProgress(rows)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeProgress(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, rows) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodeProgressNullMapping(t *testing.T) {
	rows, err := DecodeProgress(`{"dailyProgress":[{"date":"2026-08-31","taskProgress":null},{"date":"2026-08-30"}]}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.TaskProgress == nil {
			t.Fatalf("row %s decoded with nil mapping", row.Date)
		}
		// Must be writable without a panic.
		row.TaskProgress["t1"] = domain.Target
	}
}

func TestDecodeEmptyPayloads(t *testing.T) {
	ts, err := DecodeTasks("")
	if err != nil || len(ts) != 0 {
		t.Fatalf("empty tasks payload: %v %v", ts, err)
	}
	ps, err := DecodeProgress(`{}`)
	if err != nil || len(ps) != 0 {
		t.Fatalf("bare object progress payload: %v %v", ps, err)
	}
	if _, err := DecodeTasks("{"); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
