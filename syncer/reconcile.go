// Package syncer merges the local and remote copies of the task and
// progress collections. Sync is an additive overlay: local data stays
// usable whether or not a reconcile ever succeeds.
package syncer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"dayline/domain"
	"dayline/remote"
)

const tracerName = "dayline/syncer"

// Reconciler runs the push-then-pull procedure against a remote store.
type Reconciler struct {
	remote remote.Store
	logger *log.Logger
}

// NewReconciler returns a Reconciler over the given remote store, which is
// expected to already carry its retry policy.
func NewReconciler(rs remote.Store, logger *log.Logger) *Reconciler {
	if rs == nil {
		panic("syncer.NewReconciler: remote store is nil")
	}
	if logger == nil {
		panic("syncer.NewReconciler: logger is nil")
	}
	return &Reconciler{remote: rs, logger: logger}
}

// Reconcile pushes the local collections under identity, pulls the remote
// copies back, and merges per collection: the pulled collection wins when
// non-empty, otherwise the local one is kept. An empty identity skips all
// network activity. On any remote failure the local collections come back
// unchanged along with the error; local state is never corrupted by a
// remote fault.
//
// Pushing before pulling means a fresh device cannot erase server-held
// data: its empty push is overwritten by the non-empty pull result.
func (r *Reconciler) Reconcile(ctx context.Context, identity string, localTasks []domain.Task, localProgress []domain.DailyProgress) ([]domain.Task, []domain.DailyProgress, error) {
	if identity == "" {
		return localTasks, localProgress, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.Int("local.tasks", len(localTasks)),
		attribute.Int("local.progress_rows", len(localProgress)),
	)

	if err := r.remote.SaveTasks(ctx, identity, localTasks); err != nil {
		r.logger.WithError(err).Error("push tasks failed, keeping local state")
		return localTasks, localProgress, fmt.Errorf("push tasks: %w", err)
	}
	if err := r.remote.SaveProgress(ctx, identity, localProgress); err != nil {
		r.logger.WithError(err).Error("push progress failed, keeping local state")
		return localTasks, localProgress, fmt.Errorf("push progress: %w", err)
	}

	remoteTasks, err := r.remote.LoadTasks(ctx, identity)
	if err != nil {
		r.logger.WithError(err).Error("pull tasks failed, keeping local state")
		return localTasks, localProgress, fmt.Errorf("pull tasks: %w", err)
	}
	remoteProgress, err := r.remote.LoadProgress(ctx, identity)
	if err != nil {
		r.logger.WithError(err).Error("pull progress failed, keeping local state")
		return localTasks, localProgress, fmt.Errorf("pull progress: %w", err)
	}

	tasks := localTasks
	if len(remoteTasks) > 0 {
		tasks = remoteTasks
	}
	progress := localProgress
	if len(remoteProgress) > 0 {
		progress = remoteProgress
	}

	r.logger.WithFields(log.Fields{
		"tasks":         len(tasks),
		"progress_rows": len(progress),
	}).Debug("reconcile complete")
	return tasks, progress, nil
}
