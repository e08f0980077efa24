package storage

import (
	"context"
	"encoding/json"

	"dayline/domain"
)

// Storage keys, one per persisted collection.
const (
	KeyTasks    = "tasks"
	KeyProgress = "dailyProgress"
)

// KV is the durable local key-value store the engine persists into. Get
// reports a miss with found=false rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

type tasksEnvelope struct {
	Tasks []domain.Task `json:"tasks"`
}

type progressEnvelope struct {
	DailyProgress []domain.DailyProgress `json:"dailyProgress"`
}

// EncodeTasks serializes the task collection into its persisted payload.
func EncodeTasks(ts []domain.Task) (string, error) {
	if ts == nil {
		ts = []domain.Task{}
	}
	data, err := json.Marshal(tasksEnvelope{Tasks: ts})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeTasks parses a persisted task payload. An empty payload decodes to
// an empty collection.
func DecodeTasks(payload string) ([]domain.Task, error) {
	if payload == "" {
		return []domain.Task{}, nil
	}
	var env tasksEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, err
	}
	if env.Tasks == nil {
		env.Tasks = []domain.Task{}
	}
	return env.Tasks, nil
}

// EncodeProgress serializes the daily progress collection into its persisted
// payload.
func EncodeProgress(ps []domain.DailyProgress) (string, error) {
	if ps == nil {
		ps = []domain.DailyProgress{}
	}
	data, err := json.Marshal(progressEnvelope{DailyProgress: ps})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeProgress parses a persisted daily progress payload. Rows with a
// null or absent mapping come back with an empty map so callers can write
// into any decoded row.
func DecodeProgress(payload string) ([]domain.DailyProgress, error) {
	if payload == "" {
		return []domain.DailyProgress{}, nil
	}
	var env progressEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, err
	}
	if env.DailyProgress == nil {
		env.DailyProgress = []domain.DailyProgress{}
	}
	for i := range env.DailyProgress {
		if env.DailyProgress[i].TaskProgress == nil {
			env.DailyProgress[i].TaskProgress = map[string]domain.ProgressLevel{}
		}
	}
	return env.DailyProgress, nil
}
