package syncer

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"dayline/domain"
	"dayline/store"
)

// reconciler is what the controller needs from the engine.
type reconciler interface {
	Reconcile(ctx context.Context, identity string, tasks []domain.Task, progress []domain.DailyProgress) ([]domain.Task, []domain.DailyProgress, error)
}

// Controller drives reconciliation across identity transitions. It owns the
// sync lifecycle of one session: load local state first, then reconcile
// exactly once per identity change, with a manual SyncNow escape hatch.
type Controller struct {
	store  *store.Store
	rec    reconciler
	logger *log.Logger

	transitions chan string
	loaded      chan struct{}

	// runMu serializes reconcile runs; automatic transitions and manual
	// SyncNow calls never overlap, they queue.
	runMu sync.Mutex

	mu       sync.Mutex
	identity string
	loading  bool
	synced   bool
}

// NewController wires a controller over the session store and engine. Call
// Run to start it.
func NewController(st *store.Store, rec reconciler, logger *log.Logger) *Controller {
	if st == nil {
		panic("syncer.NewController: store is nil")
	}
	if rec == nil {
		panic("syncer.NewController: reconciler is nil")
	}
	if logger == nil {
		panic("syncer.NewController: logger is nil")
	}
	return &Controller{
		store:       st,
		rec:         rec,
		logger:      logger,
		transitions: make(chan string, 16),
		loaded:      make(chan struct{}),
	}
}

// Run loads local state, then consumes identity transitions until ctx is
// cancelled. Transitions delivered before the local load completes are held
// in the channel, so an early sign-in can never reconcile from an empty
// in-memory state.
func (c *Controller) Run(ctx context.Context) {
	c.setLoading(true)
	if err := c.store.LoadFromStorage(ctx); err != nil {
		c.logger.WithError(err).Error("initial local load interrupted")
	}
	c.setLoading(false)
	close(c.loaded)

	for {
		select {
		case identity := <-c.transitions:
			c.handleTransition(ctx, identity)
		case <-ctx.Done():
			return
		}
	}
}

// Loaded unblocks once the initial local load has completed.
func (c *Controller) Loaded() <-chan struct{} {
	return c.loaded
}

// SetIdentity notifies the controller of the identity supplied by the auth
// collaborator. An unchanged value is not a transition; every change,
// including to and from the empty identity, is.
func (c *Controller) SetIdentity(identity string) {
	c.mu.Lock()
	if identity == c.identity {
		c.mu.Unlock()
		return
	}
	c.identity = identity
	c.mu.Unlock()
	c.transitions <- identity
}

// Identity returns the current identity key, empty when signed out.
func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Status reports the observable sync state for presentation.
func (c *Controller) Status() (loading, synced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading, c.synced
}

// SyncNow reconciles with the current identity and store state. Unlike the
// automatic path it propagates the failure so presentation can show it.
func (c *Controller) SyncNow(ctx context.Context) error {
	select {
	case <-c.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.reconcileOnce(ctx, c.Identity())
}

// handleTransition reconciles once for a new non-empty identity. Sign-out
// needs no sync; the local copy simply remains authoritative.
func (c *Controller) handleTransition(ctx context.Context, identity string) {
	if identity == "" {
		c.logger.Debug("identity cleared, staying local-only")
		return
	}
	if err := c.reconcileOnce(ctx, identity); err != nil {
		// Best effort: status keeps its previous synced value, the user
		// can retry manually.
		c.logger.WithError(err).Warn("sync on identity transition failed")
	}
}

func (c *Controller) reconcileOnce(ctx context.Context, identity string) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.setLoading(true)
	defer c.setLoading(false)

	tasks, progress, err := c.rec.Reconcile(ctx, identity, c.store.Tasks(), c.store.Progress())
	if err != nil {
		return err
	}

	c.store.Replace(ctx, tasks, progress)

	// A signed-out reconcile never touched the remote, so it cannot make
	// the session synced.
	if identity != "" {
		c.mu.Lock()
		c.synced = true
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}
