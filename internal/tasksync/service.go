// Package tasksync coordinates task writes across the fragment store, the
// task cache and the issue tracker.
//
// Writes go to the store first, then invalidate the cache and notify
// observers. Status changes on tracker-linked tasks are pushed to the
// tracker in the background; their outcome is only ever logged.
package tasksync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

// DefaultImportTimeout bounds a shared import attempt when none is configured.
const DefaultImportTimeout = 30 * time.Second

// DefaultPropagationTimeout bounds a background propagation when none is configured.
const DefaultPropagationTimeout = 30 * time.Second

// Tracker is the subset of the issue tracker client the service needs.
type Tracker interface {
	FetchIssue(ctx context.Context, key string) (types.TrackerIssue, error)
	ListTransitions(ctx context.Context, key string) ([]types.Transition, error)
	ExecuteTransition(ctx context.Context, key, transitionID string) error
}

// TaskCache is the read-through task cache.
type TaskCache interface {
	Get(ctx context.Context, workspaceID string) ([]types.Task, error)
	Find(ctx context.Context, workspaceID, taskID string) (types.Task, error)
	Invalidate(workspaceIDs ...string)
	NotifyChanged(ctx context.Context, workspaceID string)
}

// TrackerProvider returns a tracker client, or an error wrapping
// types.ErrNotConfigured when no credentials are stored.
type TrackerProvider func() (Tracker, error)

// WorkspaceProvider returns the active workspace.
type WorkspaceProvider func() (types.Workspace, error)

// Options configures a Service.
type Options struct {
	Store     fragment.Store
	Members   fragment.MemberDirectory // optional
	Cache     TaskCache
	Workspace WorkspaceProvider
	Tracker   TrackerProvider

	ImportTimeout      time.Duration
	PropagationTimeout time.Duration
	Logger             *logging.Logger
}

// Service implements task import, local mutations and status propagation.
type Service struct {
	store     fragment.Store
	members   fragment.MemberDirectory
	cache     TaskCache
	workspace WorkspaceProvider
	tracker   TrackerProvider
	timeout   time.Duration
	log       *logging.Logger

	importTimeout time.Duration
	now       func() time.Time

	imports singleflight.Group
	wg      sync.WaitGroup
}

// New creates a Service.
func New(opts Options) *Service {
	timeout := opts.PropagationTimeout
	if timeout <= 0 {
		timeout = DefaultPropagationTimeout
	}
	importTimeout := opts.ImportTimeout
	if importTimeout <= 0 {
		importTimeout = DefaultImportTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Get()
	}
	return &Service{
		store:     opts.Store,
		members:   opts.Members,
		cache:     opts.Cache,
		workspace: opts.Workspace,
		tracker:   opts.Tracker,
		timeout:   timeout,
		log:       log.WithComponent("tasksync"),
		now:       func() time.Time { return time.Now().UTC() },

		importTimeout: importTimeout,
	}
}

// Wait blocks until every background propagation has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// written invalidates and announces a successful write to a workspace.
func (s *Service) written(ctx context.Context, workspaceID string) {
	s.cache.Invalidate(workspaceID)
	s.cache.NotifyChanged(ctx, workspaceID)
}
