package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jayphen/fragsync/internal/cache"
	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/jira"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/redis"
	"github.com/Jayphen/fragsync/internal/tasksync"
	"github.com/Jayphen/fragsync/internal/types"
)

// backend is a workspace store that also exposes its member directory.
type backend interface {
	fragment.Store
	fragment.MemberDirectory
}

// app holds the per-process wiring shared by the commands.
type app struct {
	cfg       *config.Config
	workspace types.Workspace
	store     backend
	cache     *cache.Cache
	svc       *tasksync.Service

	redis *redis.Client
	sub   *redis.Subscription
	owned []*redis.Client
}

type appOptions struct {
	// subscribe applies change notifications from other processes to the cache.
	subscribe bool
}

// newApp builds the store, cache and service described by cfg.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.BackendURL == "" {
		return nil, fmt.Errorf("%w: workspace backend_url must be set", types.ErrNotConfigured)
	}

	a := &app{cfg: cfg, workspace: ws}
	log := logging.Get().WithWorkspace(ws.ID)

	if isRedisURL(cfg.Workspace.BackendURL) {
		client, err := redis.NewClient(cfg.Workspace.BackendURL)
		if err != nil {
			return nil, fmt.Errorf("connect to workspace backend: %w", err)
		}
		a.owned = append(a.owned, client)
		a.store = redis.NewFragmentStore(client)
		a.redis = client
	} else {
		a.store = fragment.NewClient(cfg.Workspace.BackendURL, cfg.Workspace.APIToken, cfg.RequestTimeout)
	}

	// A separate notification Redis overrides the store's connection.
	if cfg.RedisURL != "" && cfg.RedisURL != cfg.Workspace.BackendURL {
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("change notifications disabled: Redis unavailable")
		} else {
			a.owned = append(a.owned, client)
			a.redis = client
		}
	}

	cacheOpts := cache.Options{TypeID: ws.TaskTypeID, FetchTimeout: cfg.RequestTimeout, Logger: logging.Get()}
	if a.redis != nil {
		cacheOpts.Publisher = a.redis
	}
	a.cache = cache.New(a.store, cacheOpts)

	if opts.subscribe && a.redis != nil {
		sub, err := a.redis.SubscribeChanges(ctx, a.cache.HandleRemoteChange)
		if err != nil {
			log.WithError(err).Warn("not receiving changes from other processes")
		} else {
			a.sub = sub
		}
	}

	a.svc = tasksync.New(tasksync.Options{
		Store:              a.store,
		Members:            a.store,
		Cache:              a.cache,
		Workspace:          cfg.ActiveWorkspace,
		Tracker:            trackerProvider(cfg),
		PropagationTimeout: cfg.PropagationTimeout,
		Logger:             logging.Get(),
	})

	return a, nil
}

// Close waits for background propagations, then releases connections.
func (a *app) Close() {
	a.svc.Wait()
	if a.sub != nil {
		_ = a.sub.Close()
	}
	a.cache.Close()
	for _, c := range a.owned {
		_ = c.Close()
	}
}

// requestContext bounds a single command's backend and tracker calls.
func (a *app) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := a.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// trackerProvider loads the credential record on each use, so a login in
// another terminal is picked up without a restart.
func trackerProvider(cfg *config.Config) tasksync.TrackerProvider {
	return func() (tasksync.Tracker, error) {
		client, err := newTrackerClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newTrackerClient(cfg *config.Config) (*jira.Client, error) {
	creds, err := config.LoadTrackerCredentials()
	if err != nil {
		return nil, err
	}
	if !creds.IsComplete() {
		return nil, fmt.Errorf("%w: no tracker credentials", types.ErrNotConfigured)
	}
	return jira.NewClient(jira.Config{
		Site:     creds.Site,
		Email:    creds.Email,
		APIToken: creds.APIToken,
	}, cfg.RequestTimeout), nil
}

func isRedisURL(u string) bool {
	return strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://")
}

// openApp loads the global configuration and wires an app for cmd.
func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(commandContext(cmd), cfg, opts)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
