package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

const ws = "ws-1"

type fakeLister struct {
	mu      sync.Mutex
	calls   int
	frags   []fragment.Fragment
	err     error
	filters []*fragment.Filter

	inflight int
	peak     int

	// hook runs outside the lock after the result is snapshotted.
	hook func(call int)
}

func (f *fakeLister) List(ctx context.Context, workspaceID string, filter *fragment.Filter) ([]fragment.Fragment, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.filters = append(f.filters, filter)
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	snapshot := append([]fragment.Fragment(nil), f.frags...)
	err := f.err
	hook := f.hook
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook(n)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeLister) set(frags []fragment.Fragment, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frags = frags
	f.err = err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLister) peakInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []types.Change
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, change types.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func frag(id, title string) fragment.Fragment {
	return fragment.Fragment{
		ID:      id,
		TypeID:  "task",
		Payload: fragment.Encode(types.Task{Title: title, Status: types.StatusTodo}),
	}
}

func ids(tasks []types.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func newCache(l Lister, opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return New(l, opts)
}

func TestGetCachesUntilInvalidated(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{TypeID: "task"})
	ctx := context.Background()

	first, err := c.Get(ctx, ws)
	require.NoError(t, err)
	second, err := c.Get(ctx, ws)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.callCount())
	assert.Equal(t, Stats{Hits: 1, Fetches: 1, Workspaces: 1}, c.Stats())
	assert.Equal(t, &fragment.Filter{TypeID: "task"}, lister.filters[0])

	c.Invalidate(ws)
	_, err = c.Get(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.callCount())
}

func TestGetReturnsCopies(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{})

	tasks, err := c.Get(context.Background(), ws)
	require.NoError(t, err)
	tasks[0].Title = "mutated"

	again, err := c.Get(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Title)
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	lister.hook = func(int) {
		once.Do(func() { close(started) })
		<-release
	}
	c := newCache(lister, Options{})

	var wg sync.WaitGroup
	results := make([][]types.Task, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tasks, err := c.Get(context.Background(), ws)
			assert.NoError(t, err)
			results[i] = tasks
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, 1, lister.callCount())
	for _, r := range results {
		assert.Equal(t, []string{"a"}, ids(r))
	}
}

func TestInvalidateDuringFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	lister.hook = func(call int) {
		if call == 1 {
			close(started)
			<-release
		}
	}
	c := newCache(lister, Options{})
	ctx := context.Background()

	early := make(chan []types.Task)
	go func() {
		tasks, err := c.Get(ctx, ws)
		assert.NoError(t, err)
		early <- tasks
	}()
	<-started

	// A write lands while the first fetch is still in flight.
	lister.set([]fragment.Fragment{frag("a", "A"), frag("b", "B")}, nil)
	c.Invalidate(ws)

	after := make(chan []types.Task)
	go func() {
		tasks, err := c.Get(ctx, ws)
		assert.NoError(t, err)
		after <- tasks
	}()

	// The later caller queues behind the running fetch instead of starting its own.
	select {
	case tasks := <-after:
		t.Fatalf("Get returned %v before the in-flight fetch finished", ids(tasks))
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, lister.callCount())

	close(release)
	assert.Equal(t, []string{"a"}, ids(<-early))
	assert.Equal(t, []string{"a", "b"}, ids(<-after))

	latest, err := c.Get(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(latest))
	assert.Equal(t, 2, lister.callCount())
	assert.Equal(t, 1, lister.peakInflight())
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	lister.hook = func(call int) {
		if call == 1 {
			close(started)
			<-release
		}
	}
	c := newCache(lister, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error)
	go func() {
		_, err := c.Get(ctx, ws)
		first <- err
	}()
	<-started

	second := make(chan []types.Task)
	go func() {
		tasks, err := c.Get(context.Background(), ws)
		assert.NoError(t, err)
		second <- tasks
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, []string{"a"}, ids(<-second))
	assert.Equal(t, 1, lister.callCount())

	_, fresh := c.Peek(ws)
	assert.True(t, fresh)
}

func TestFailedFetchKeepsStaleValue(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{})
	ctx := context.Background()

	_, err := c.Get(ctx, ws)
	require.NoError(t, err)

	boom := errors.New("backend down")
	lister.set(nil, boom)
	c.Invalidate(ws)

	_, err = c.Get(ctx, ws)
	assert.ErrorIs(t, err, boom)

	stale, fresh := c.Peek(ws)
	assert.False(t, fresh)
	assert.Equal(t, []string{"a"}, ids(stale))

	// The failure is not cached; the next Get tries again.
	lister.set([]fragment.Fragment{frag("b", "B")}, nil)
	tasks, err := c.Get(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(tasks))
}

func TestMalformedFragmentsAreSkipped(t *testing.T) {
	bad := fragment.Fragment{ID: "bad", Payload: fragment.Payload{Title: "no status"}}
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A"), bad, frag("b", "B")}}
	c := newCache(lister, Options{})

	tasks, err := c.Get(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(tasks))
}

func TestEmptyWorkspaceIsCached(t *testing.T) {
	lister := &fakeLister{}
	c := newCache(lister, Options{})

	tasks, err := c.Get(context.Background(), ws)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, _ = c.Get(context.Background(), ws)
	assert.Equal(t, 1, lister.callCount())
}

func TestInvalidateAll(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{})
	ctx := context.Background()

	_, _ = c.Get(ctx, "ws-1")
	_, _ = c.Get(ctx, "ws-2")
	c.Invalidate()

	_, fresh1 := c.Peek("ws-1")
	_, fresh2 := c.Peek("ws-2")
	assert.False(t, fresh1)
	assert.False(t, fresh2)
	assert.Equal(t, 2, lister.callCount(), "invalidate must not fetch")
}

func TestFind(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{})

	task, err := c.Find(context.Background(), ws, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", task.Title)

	_, err = c.Find(context.Background(), ws, "zzz")
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestNotifyChanged(t *testing.T) {
	pub := &fakePublisher{}
	c := newCache(&fakeLister{}, Options{Publisher: pub, Origin: "proc-1"})

	ch, unsubscribe := c.Subscribe()

	c.NotifyChanged(context.Background(), ws)
	c.NotifyChanged(context.Background(), ws) // coalesced, must not block

	select {
	case change := <-ch:
		assert.Equal(t, ws, change.WorkspaceID)
		assert.Equal(t, "proc-1", change.Origin)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	select {
	case <-ch:
		t.Fatal("expected notifications to be coalesced")
	default:
	}

	require.Len(t, pub.changes, 2)
	assert.Equal(t, ws, pub.changes[0].WorkspaceID)

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestNotifyChangedPublishErrorIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	c := newCache(&fakeLister{}, Options{Publisher: pub})

	ch, _ := c.Subscribe()
	c.NotifyChanged(context.Background(), ws)

	select {
	case <-ch:
	default:
		t.Fatal("local subscribers should still be notified")
	}
}

func TestHandleRemoteChange(t *testing.T) {
	lister := &fakeLister{frags: []fragment.Fragment{frag("a", "A")}}
	c := newCache(lister, Options{Origin: "me"})
	ch, _ := c.Subscribe()

	_, err := c.Get(context.Background(), ws)
	require.NoError(t, err)

	c.HandleRemoteChange(types.Change{WorkspaceID: ws, Origin: "me"})
	_, fresh := c.Peek(ws)
	assert.True(t, fresh, "own changes are ignored")
	assert.Len(t, ch, 0)

	c.HandleRemoteChange(types.Change{WorkspaceID: ws, Origin: "other"})
	_, fresh = c.Peek(ws)
	assert.False(t, fresh)
	change := <-ch
	assert.Equal(t, "other", change.Origin)
}

func TestClose(t *testing.T) {
	c := newCache(&fakeLister{}, Options{})
	ch, unsubscribe := c.Subscribe()

	c.Close()
	_, ok := <-ch
	assert.False(t, ok)
	unsubscribe() // must not panic on a closed subscription

	late, _ := c.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	// Notifications after close are dropped quietly.
	c.NotifyChanged(context.Background(), ws)
}

func TestOriginDefaultsToUUID(t *testing.T) {
	a := newCache(&fakeLister{}, Options{})
	b := newCache(&fakeLister{}, Options{})
	assert.Len(t, a.Origin(), 36)
	assert.NotEqual(t, a.Origin(), b.Origin())
}
