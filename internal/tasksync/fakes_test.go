package tasksync

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Jayphen/fragsync/internal/cache"
	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

const testWS = "ws-1"

// memStore is an in-memory fragment.Store and fragment.MemberDirectory.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	order   []string
	frags   map[string]fragment.Fragment
	creates int
	updates int

	members    []types.Member
	membersErr error
	createErr  error
}

func newMemStore() *memStore {
	return &memStore{frags: make(map[string]fragment.Fragment)}
}

func (m *memStore) Create(ctx context.Context, ws, typeID string, p fragment.Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.creates++
	m.nextID++
	id := fmt.Sprintf("frag-%d", m.nextID)
	m.frags[id] = fragment.Fragment{ID: id, TypeID: typeID, Payload: p}
	m.order = append(m.order, id)
	return id, nil
}

func (m *memStore) Update(ctx context.Context, ws, id string, p fragment.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.frags[id]
	if !ok {
		return types.ErrTaskNotFound
	}
	m.updates++
	f.Payload = p
	m.frags[id] = f
	return nil
}

func (m *memStore) Delete(ctx context.Context, ws, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.frags[id]; !ok {
		return types.ErrTaskNotFound
	}
	delete(m.frags, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) List(ctx context.Context, ws string, filter *fragment.Filter) ([]fragment.Fragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fragment.Fragment
	for _, id := range m.order {
		if f := m.frags[id]; filter.Matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, ws string, filter fragment.Filter) (int, error) {
	frags, err := m.List(ctx, ws, &filter)
	return len(frags), err
}

func (m *memStore) ListMembers(ctx context.Context, ws string) ([]types.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members, m.membersErr
}

func (m *memStore) seed(t types.Task) string {
	id, err := m.Create(context.Background(), testWS, "task", fragment.Encode(t))
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.creates = 0
	m.mu.Unlock()
	return id
}

func (m *memStore) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// fakeTracker records every call.
type fakeTracker struct {
	mu          sync.Mutex
	issues      map[string]types.TrackerIssue
	fetchErr    map[string]error
	transitions map[string][]types.Transition
	listErr     error
	execErr     error

	fetched  []string
	executed []string

	// gate, if set, blocks FetchIssue until closed.
	gate chan struct{}
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:      make(map[string]types.TrackerIssue),
		fetchErr:    make(map[string]error),
		transitions: make(map[string][]types.Transition),
	}
}

func (f *fakeTracker) FetchIssue(ctx context.Context, key string) (types.TrackerIssue, error) {
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return types.TrackerIssue{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, key)
	if err := f.fetchErr[key]; err != nil {
		return types.TrackerIssue{}, err
	}
	issue, ok := f.issues[key]
	if !ok {
		return types.TrackerIssue{}, types.ErrTrackerNotFound
	}
	return issue, nil
}

func (f *fakeTracker) ListTransitions(ctx context.Context, key string) ([]types.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.transitions[key], nil
}

func (f *fakeTracker) ExecuteTransition(ctx context.Context, key, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return f.execErr
	}
	f.executed = append(f.executed, key+":"+id)
	return nil
}

func (f *fakeTracker) fetchedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeTracker) executedTransitions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

// syncBuffer is a bytes.Buffer safe for the background propagation goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	svc     *Service
	store   *memStore
	tracker *fakeTracker
	cache   *cache.Cache
	logs    *syncBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		tracker: newFakeTracker(),
		logs:    &syncBuffer{},
	}
	log := logging.New(h.logs, logging.DebugLevel)
	h.cache = cache.New(h.store, cache.Options{TypeID: "task", Logger: log})
	h.svc = New(Options{
		Store:     h.store,
		Members:   h.store,
		Cache:     h.cache,
		Workspace: func() (types.Workspace, error) { return types.Workspace{ID: testWS, TaskTypeID: "task"}, nil },
		Tracker:   func() (Tracker, error) { return h.tracker, nil },
		Logger:    log,
	})
	t.Cleanup(func() {
		h.svc.Wait()
		h.cache.Close()
	})
	return h
}
