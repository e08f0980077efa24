// Package remote adapts per-identity document backends for whole-collection
// sync. Implementations are passive serialization targets; the store in
// memory stays the source of truth while a session is live.
package remote

import (
	"context"

	"dayline/domain"
)

// Collection row keys under one identity partition.
const (
	CollectionTasks    = "tasks"
	CollectionProgress = "dailyProgress"
)

// Store is the remote capability the reconciliation engine consumes: save
// and load the two collections keyed by an opaque identity.
type Store interface {
	SaveTasks(ctx context.Context, identity string, tasks []domain.Task) error
	SaveProgress(ctx context.Context, identity string, progress []domain.DailyProgress) error
	LoadTasks(ctx context.Context, identity string) ([]domain.Task, error)
	LoadProgress(ctx context.Context, identity string) ([]domain.DailyProgress, error)
}

// Noop is a Store with no backing storage. Deployments without a remote
// backend use it so that sign-in still works; every reconcile trivially
// keeps the local collections.
type Noop struct{}

func (Noop) SaveTasks(context.Context, string, []domain.Task) error { return nil }

func (Noop) SaveProgress(context.Context, string, []domain.DailyProgress) error { return nil }

func (Noop) LoadTasks(context.Context, string) ([]domain.Task, error) {
	return []domain.Task{}, nil
}

func (Noop) LoadProgress(context.Context, string) ([]domain.DailyProgress, error) {
	return []domain.DailyProgress{}, nil
}
