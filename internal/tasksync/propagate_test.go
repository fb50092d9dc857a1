package tasksync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayphen/fragsync/internal/types"
)

func linkedTask() types.Task {
	return types.Task{ID: "frag-1", Title: "[PROJ-9] Fix", Status: types.StatusInProgress, TrackerKey: "PROJ-9"}
}

// warnings returns every warn-level log entry.
func warnings(t *testing.T, logs string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["level"] == "warn" {
			out = append(out, entry)
		}
	}
	return out
}

func TestPropagateSelectsTransition(t *testing.T) {
	tests := []struct {
		name        string
		status      types.Status
		transitions []types.Transition
		want        []string
	}{
		{
			name:        "done picks Closed",
			status:      types.StatusDone,
			transitions: []types.Transition{{ID: "1", Name: "In Review"}, {ID: "2", Name: "Closed"}},
			want:        []string{"PROJ-9:2"},
		},
		{
			name:        "archived maps like done",
			status:      types.StatusArchived,
			transitions: []types.Transition{{ID: "7", Name: "Resolve", To: &types.TransitionTarget{Name: "Resolved"}}},
			want:        []string{"PROJ-9:7"},
		},
		{
			name:        "todo picks Backlog",
			status:      types.StatusTodo,
			transitions: []types.Transition{{ID: "1", Name: "Done"}, {ID: "3", Name: "Backlog"}},
			want:        []string{"PROJ-9:3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.tracker.transitions["PROJ-9"] = tt.transitions

			h.svc.PropagateStatus(linkedTask(), tt.status)
			h.svc.Wait()

			assert.Equal(t, tt.want, h.tracker.executedTransitions())
			assert.Empty(t, warnings(t, h.logs.String()))
		})
	}
}

func TestPropagateNoMatchLogsWarning(t *testing.T) {
	h := newHarness(t)
	h.tracker.transitions["PROJ-9"] = []types.Transition{{ID: "1", Name: "Backlog"}}

	h.svc.PropagateStatus(linkedTask(), types.StatusDone)
	h.svc.Wait()

	assert.Empty(t, h.tracker.executedTransitions())

	warns := warnings(t, h.logs.String())
	require.Len(t, warns, 1)
	w := warns[0]
	assert.Equal(t, "frag-1", w["task_id"])
	assert.Equal(t, "PROJ-9", w["tracker_key"])
	assert.Equal(t, "done", w["status"])
	assert.Equal(t, []interface{}{"Backlog"}, w["available_transitions"])
	assert.Contains(t, w["error"], types.ErrNoMatchingTransition.Error())
}

func TestPropagateFailuresAreLoggedOnly(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"list fails", func(h *harness) { h.tracker.listErr = types.ErrTrackerUnreachable }},
		{"execute rejected", func(h *harness) {
			h.tracker.transitions["PROJ-9"] = []types.Transition{{ID: "2", Name: "Done"}}
			h.tracker.execErr = fmt.Errorf("%w: 400", types.ErrTrackerRejected)
		}},
		{"tracker provider fails", func(h *harness) {
			h.svc.tracker = func() (Tracker, error) { return nil, fmt.Errorf("%w: broken", types.ErrTrackerUnreachable) }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			h.svc.PropagateStatus(linkedTask(), types.StatusDone)
			h.svc.Wait()

			assert.Empty(t, h.tracker.executedTransitions())
			warns := warnings(t, h.logs.String())
			require.Len(t, warns, 1)
			assert.Equal(t, "PROJ-9", warns[0]["tracker_key"])
		})
	}
}

func TestPropagateSkips(t *testing.T) {
	t.Run("unlinked task", func(t *testing.T) {
		h := newHarness(t)
		h.tracker.transitions["PROJ-9"] = []types.Transition{{ID: "2", Name: "Done"}}

		task := linkedTask()
		task.TrackerKey = ""
		h.svc.PropagateStatus(task, types.StatusDone)
		h.svc.Wait()
		assert.Empty(t, h.tracker.executedTransitions())
	})

	t.Run("tracker not configured", func(t *testing.T) {
		h := newHarness(t)
		h.svc.tracker = func() (Tracker, error) { return nil, types.ErrNotConfigured }

		h.svc.PropagateStatus(linkedTask(), types.StatusDone)
		h.svc.Wait()
		assert.Empty(t, warnings(t, h.logs.String()))
	})
}

// blockingTracker never answers until released.
type blockingTracker struct {
	*fakeTracker
	release chan struct{}
}

func (b *blockingTracker) ListTransitions(ctx context.Context, key string) ([]types.Transition, error) {
	select {
	case <-b.release:
		return b.fakeTracker.ListTransitions(ctx, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPropagateDoesNotBlockCaller(t *testing.T) {
	h := newHarness(t)
	bt := &blockingTracker{fakeTracker: h.tracker, release: make(chan struct{})}
	h.svc.tracker = func() (Tracker, error) { return bt, nil }
	h.tracker.transitions["PROJ-9"] = []types.Transition{{ID: "2", Name: "Done"}}

	done := make(chan struct{})
	go func() {
		h.svc.PropagateStatus(linkedTask(), types.StatusDone)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PropagateStatus blocked the caller")
	}

	close(bt.release)
	h.svc.Wait()
	assert.Equal(t, []string{"PROJ-9:2"}, h.tracker.executedTransitions())
}

func TestPropagateTimeout(t *testing.T) {
	h := newHarness(t)
	h.svc.timeout = 20 * time.Millisecond
	bt := &blockingTracker{fakeTracker: h.tracker, release: make(chan struct{})}
	h.svc.tracker = func() (Tracker, error) { return bt, nil }

	h.svc.PropagateStatus(linkedTask(), types.StatusDone)
	h.svc.Wait()

	assert.Empty(t, h.tracker.executedTransitions())
	assert.Len(t, warnings(t, h.logs.String()), 1)
}
