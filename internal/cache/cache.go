// Package cache is a read-through, per-workspace cache of task fragments.
//
// A workspace entry is filled by a single full list from the backend and is
// never patched in place: writers invalidate it and the next Get refetches.
// Each invalidation bumps the entry's generation, so a fetch that started
// before an invalidation is neither stored as fresh nor shared with callers
// that arrive after it.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

// DefaultFetchTimeout bounds a shared fetch when Options.FetchTimeout is unset.
const DefaultFetchTimeout = 30 * time.Second

// Lister lists fragments for a workspace. fragment.Store satisfies it.
type Lister interface {
	List(ctx context.Context, workspaceID string, filter *fragment.Filter) ([]fragment.Fragment, error)
}

// Publisher forwards change notifications to other processes.
type Publisher interface {
	Publish(ctx context.Context, change types.Change) error
}

// Options configures a Cache.
type Options struct {
	// TypeID restricts the cache to fragments of the task type.
	TypeID string

	// Publisher, if set, receives every local change notification.
	Publisher Publisher

	// Origin identifies this process in published changes. Defaults to a random UUID.
	Origin string

	// FetchTimeout bounds one backend list. Defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration

	Logger *logging.Logger
}

type entry struct {
	tasks []types.Task
	fresh bool
	gen   uint64
}

// Cache holds decoded task lists keyed by workspace ID.
type Cache struct {
	source    Lister
	filter    *fragment.Filter
	publisher Publisher
	origin    string
	log       *logging.Logger

	fetchTimeout time.Duration

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]chan types.Change
	nextSub int
	closed  bool

	hits    atomic.Int64
	fetches atomic.Int64
}

// New creates a cache reading from source.
func New(source Lister, opts Options) *Cache {
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Get()
	}

	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	var filter *fragment.Filter
	if opts.TypeID != "" {
		filter = &fragment.Filter{TypeID: opts.TypeID}
	}

	return &Cache{
		source:       source,
		filter:       filter,
		publisher:    opts.Publisher,
		origin:       origin,
		log:          log.WithComponent("cache"),
		fetchTimeout: fetchTimeout,
		entries:      make(map[string]*entry),
		subs:         make(map[int]chan types.Change),
	}
}

// Origin returns the identifier this cache stamps on its change notifications.
func (c *Cache) Origin() string {
	return c.origin
}

// Get returns the tasks of a workspace, fetching them if the entry is not
// fresh. At most one fetch per workspace runs at a time; concurrent callers
// join it. A caller that arrives after an invalidation never accepts the
// result of a fetch that started before it, and waits for a new one instead.
func (c *Cache) Get(ctx context.Context, workspaceID string) ([]types.Task, error) {
	for {
		c.mu.Lock()
		e := c.entryLocked(workspaceID)
		if e.fresh {
			tasks := cloneTasks(e.tasks)
			c.mu.Unlock()
			c.hits.Add(1)
			return tasks, nil
		}
		want := e.gen
		c.mu.Unlock()

		res, err := c.join(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		if res.gen >= want {
			return cloneTasks(res.tasks), nil
		}
	}
}

type fetched struct {
	tasks []types.Task
	gen   uint64
}

// join waits for the workspace's in-flight fetch, starting one if none is
// running. The fetch is detached from ctx so that one caller giving up does
// not fail the others; it is bounded by the fetch timeout instead.
func (c *Cache) join(ctx context.Context, workspaceID string) (fetched, error) {
	ch := c.group.DoChan(workspaceID, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fctx, workspaceID)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return fetched{}, r.Err
		}
		return r.Val.(fetched), nil
	case <-ctx.Done():
		return fetched{}, ctx.Err()
	}
}

// fetch lists and decodes a workspace, storing the result as fresh only if
// no invalidation happened meanwhile.
func (c *Cache) fetch(ctx context.Context, workspaceID string) (fetched, error) {
	c.fetches.Add(1)
	log := c.log.WithWorkspace(workspaceID)

	c.mu.Lock()
	gen := c.entryLocked(workspaceID).gen
	c.mu.Unlock()

	frags, err := c.source.List(ctx, workspaceID, c.filter)
	if err != nil {
		log.WithError(err).Warn("fragment fetch failed, keeping stale entry")
		return fetched{}, fmt.Errorf("fetch tasks for workspace %s: %w", workspaceID, err)
	}

	tasks, errs := fragment.DecodeAll(frags)
	for _, derr := range errs {
		log.WithError(derr).Warn("skipping malformed fragment")
	}
	if tasks == nil {
		tasks = []types.Task{}
	}

	c.mu.Lock()
	e := c.entryLocked(workspaceID)
	if e.gen == gen {
		e.tasks = tasks
		e.fresh = true
	}
	c.mu.Unlock()

	log.Debugf("fetched %d tasks (%d skipped)", len(tasks), len(errs))
	return fetched{tasks: tasks, gen: gen}, nil
}

// Peek returns whatever is cached for a workspace without fetching, and
// whether it is fresh.
func (c *Cache) Peek(workspaceID string) ([]types.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[workspaceID]
	if !ok {
		return nil, false
	}
	return cloneTasks(e.tasks), e.fresh
}

// Find returns a single task of a workspace.
func (c *Cache) Find(ctx context.Context, workspaceID, taskID string) (types.Task, error) {
	tasks, err := c.Get(ctx, workspaceID)
	if err != nil {
		return types.Task{}, err
	}
	for _, t := range tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return types.Task{}, fmt.Errorf("%w: %s", types.ErrTaskNotFound, taskID)
}

// Invalidate marks the given workspaces stale, or every workspace when
// called without arguments. It never fetches.
func (c *Cache) Invalidate(workspaceIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(workspaceIDs) == 0 {
		for _, e := range c.entries {
			e.fresh = false
			e.gen++
		}
		return
	}
	for _, id := range workspaceIDs {
		e := c.entryLocked(id)
		e.fresh = false
		e.gen++
	}
}

// NotifyChanged tells every subscriber that a workspace was written and
// forwards the change to the publisher, if any. Publish failures are logged.
func (c *Cache) NotifyChanged(ctx context.Context, workspaceID string) {
	change := types.Change{
		WorkspaceID: workspaceID,
		Origin:      c.origin,
		At:          time.Now().UTC(),
	}
	c.broadcast(change)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, change); err != nil {
			c.log.WithWorkspace(workspaceID).WithError(err).Warn("failed to publish change")
		}
	}
}

// HandleRemoteChange applies a change published by another process:
// the workspace is invalidated and local subscribers are notified.
// Changes carrying this cache's own origin are ignored.
func (c *Cache) HandleRemoteChange(change types.Change) {
	if change.Origin == c.origin {
		return
	}
	c.Invalidate(change.WorkspaceID)
	c.broadcast(change)
}

// Subscribe registers for change notifications. Delivery never blocks the
// writer: while a subscriber has an undelivered notification, further ones
// are coalesced into it. The returned func unsubscribes and closes the channel.
func (c *Cache) Subscribe() (<-chan types.Change, func()) {
	ch := make(chan types.Change, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Cache) broadcast(change types.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// Close closes every subscription. Get keeps working afterwards.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits       int64
	Fetches    int64
	Workspaces int
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{Hits: c.hits.Load(), Fetches: c.fetches.Load(), Workspaces: n}
}

func (c *Cache) entryLocked(workspaceID string) *entry {
	e, ok := c.entries[workspaceID]
	if !ok {
		e = &entry{}
		c.entries[workspaceID] = e
	}
	return e
}

func cloneTasks(tasks []types.Task) []types.Task {
	if tasks == nil {
		return nil
	}
	out := make([]types.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
