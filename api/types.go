package api

import (
	"context"

	"dayline/domain"
)

// Store abstracts the session store for handlers.
type Store interface {
	Tasks() []domain.Task
	TaskCount() int
	AddTask(ctx context.Context, name, color string, order *int)
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate)
	DeleteTask(ctx context.Context, id string)
	ReorderTasks(ctx context.Context, ids []string)
	RecordProgress(ctx context.Context, taskID string, level domain.ProgressLevel, day string)
	GetDailyProgress(day string) (domain.DailyProgress, bool)
}

// SyncController is the sync lifecycle surface presentation consumes.
type SyncController interface {
	Status() (loading, synced bool)
	SyncNow(ctx context.Context) error
	SetIdentity(identity string)
}

// Authenticator is implemented by types able to extract identity keys from
// Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(header string) (string, error)
}

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type addTaskRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Order *int   `json:"order,omitempty"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type recordProgressRequest struct {
	TaskID string `json:"taskId"`
	Level  int    `json:"level"`
	Date   string `json:"date,omitempty"`
}

type progressHistoryResponse struct {
	Days []domain.DailyProgress `json:"days"`
}

type syncStatusResponse struct {
	Loading bool `json:"loading"`
	Synced  bool `json:"synced"`
}

type errorResponse struct {
	Error string `json:"error"`
}
