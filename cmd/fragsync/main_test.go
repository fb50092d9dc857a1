package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/types"
)

// fakeJira serves one issue and records executed transitions.
type fakeJira struct {
	mu       sync.Mutex
	executed []string
}

func (f *fakeJira) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/rest/api/3/issue/PROJ-9":
			_, _ = w.Write([]byte(`{
				"key": "PROJ-9",
				"fields": {
					"summary": "Fix login redirect",
					"status": {"name": "To Do"},
					"priority": {"name": "High"},
					"project": {"key": "PROJ", "name": "Platform"}
				}
			}`))
		case r.Method == http.MethodGet && r.URL.Path == "/rest/api/3/issue/PROJ-9/transitions":
			_, _ = w.Write([]byte(`{"transitions": [
				{"id": "21", "name": "Start", "to": {"name": "In Progress"}},
				{"id": "31", "name": "Close", "to": {"name": "Closed"}}
			]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue/PROJ-9/transitions":
			var body struct {
				Transition struct {
					ID string `json:"id"`
				} `json:"transition"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.mu.Lock()
			f.executed = append(f.executed, body.Transition.ID)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakeJira) transitions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

type env struct {
	redis *miniredis.Miniredis
	jira  *fakeJira
}

// setupEnv isolates HOME and points the workspace at miniredis and the
// tracker at a fake Jira.
func setupEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	mr := miniredis.RunT(t)
	fj := &fakeJira{}
	srv := httptest.NewServer(fj.handler(t))
	t.Cleanup(srv.Close)

	t.Setenv("FRAGSYNC_BACKEND_URL", "redis://"+mr.Addr())
	t.Setenv("FRAGSYNC_WORKSPACE", "ws-1")
	t.Setenv("FRAGSYNC_TASK_TYPE", "task")
	t.Setenv("FRAGSYNC_REDIS_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("FRAGSYNC_JIRA_SITE", srv.URL)
	t.Setenv("FRAGSYNC_JIRA_EMAIL", "me@co.com")
	t.Setenv("FRAGSYNC_JIRA_API_TOKEN", "tok")

	_, err := config.Reload()
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = config.Reload() })

	return &env{redis: mr, jira: fj}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportMoveAndPropagate(t *testing.T) {
	e := setupEnv(t)

	out, err := run(t, "import", "proj-9", "--json")
	require.NoError(t, err, out)

	var task types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, "[PROJ-9] Fix login redirect", task.Title)
	assert.Equal(t, types.StatusTodo, task.Status)
	assert.Equal(t, types.PriorityHigh, task.Priority)
	assert.Equal(t, []string{"Platform"}, task.Projects)

	// Importing again returns the same task.
	out, err = run(t, "import", "PROJ-9", "--json")
	require.NoError(t, err, out)
	var again types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, task.ID, again.ID)

	out, err = run(t, "tasks", "move", task.ID, "done")
	require.NoError(t, err, out)
	assert.Contains(t, out, "is now done")
	assert.Contains(t, out, "Updating PROJ-9")

	// The command waits for propagation before exiting.
	assert.Equal(t, []string{"31"}, e.jira.transitions())

	out, err = run(t, "tasks", "show", task.ID, "--json")
	require.NoError(t, err, out)
	var shown types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, types.StatusDone, shown.Status)
}

func TestTasksCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "tasks", "add", "Write", "docs", "-p", "high", "--tag", "docs", "--start", "2025-03-01")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created Write docs")

	out, err = run(t, "tasks", "list", "--json")
	require.NoError(t, err, out)
	var tasks []types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	id := tasks[0].ID
	assert.Equal(t, types.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, []string{"docs"}, tasks[0].Tags)
	require.NotNil(t, tasks[0].StartDate)

	out, err = run(t, "tasks", "update", id, "--title", "Write more docs", "--comment", "started")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Updated Write more docs")

	out, err = run(t, "tasks", "show", id)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Write more docs")
	assert.Contains(t, out, "started")

	out, err = run(t, "tasks", "list", "--status", "done")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No tasks")

	out, err = run(t, "tasks", "delete", id)
	require.NoError(t, err, out)

	_, err = run(t, "tasks", "show", id)
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestTasksValidation(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "tasks", "add", "x", "--status", "blocked")
	assert.ErrorContains(t, err, "unknown status")

	_, err = run(t, "tasks", "add", "x", "--end", "tomorrow")
	assert.ErrorContains(t, err, "invalid --end")

	_, err = run(t, "tasks", "move", "nope", "done")
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestNotConfigured(t *testing.T) {
	setupEnv(t)
	t.Setenv("FRAGSYNC_WORKSPACE", "")
	_, err := config.Reload()
	require.NoError(t, err)

	_, err = run(t, "tasks", "list")
	assert.ErrorIs(t, err, types.ErrNotConfigured)
}

func TestImportWithoutTrackerCredentials(t *testing.T) {
	setupEnv(t)
	t.Setenv("FRAGSYNC_JIRA_API_TOKEN", "")

	_, err := run(t, "import", "PROJ-9")
	assert.ErrorIs(t, err, types.ErrNotConfigured)
}

func TestTrackerLoginStatusLogout(t *testing.T) {
	setupEnv(t)
	for _, k := range []string{"FRAGSYNC_JIRA_SITE", "FRAGSYNC_JIRA_EMAIL", "FRAGSYNC_JIRA_API_TOKEN"} {
		t.Setenv(k, "")
	}

	out, err := run(t, "tracker", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not configured")

	out, err = run(t, "tracker", "login", "--site", "acme", "--email", "me@co.com", "--token", "supersecrettoken")
	require.NoError(t, err, out)
	assert.Contains(t, out, "https://acme.atlassian.net")

	creds, err := config.LoadTrackerCredentials()
	require.NoError(t, err)
	assert.True(t, creds.IsComplete())

	out, err = run(t, "tracker", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "configured")
	assert.Contains(t, out, "supe...oken")
	assert.NotContains(t, out, "supersecrettoken")

	_, err = run(t, "tracker", "logout")
	require.NoError(t, err)
	creds, err = config.LoadTrackerCredentials()
	require.NoError(t, err)
	assert.False(t, creds.IsComplete())
}

func TestTrackerLoginPrompts(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetIn(strings.NewReader("acme\nme@co.com\ntok\n"))
	root.SetArgs([]string{"tracker", "login"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Jira site")
	assert.Contains(t, out.String(), "Logged in")
}

func TestTrackerTransitions(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "tracker", "transitions", "proj-9")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Transitions for PROJ-9")
	assert.Contains(t, out, "Closed (31)")
	assert.Contains(t, out, "In Progress (21)")
	assert.Contains(t, out, "no match")
}

func TestCrossProcessChanges(t *testing.T) {
	setupEnv(t)
	cfg, err := config.Get()
	require.NoError(t, err)
	ctx := context.Background()

	writer, err := newApp(ctx, cfg, appOptions{})
	require.NoError(t, err)
	defer writer.Close()

	watcher, err := newApp(ctx, cfg, appOptions{subscribe: true})
	require.NoError(t, err)
	defer watcher.Close()

	// Prime the watcher's cache.
	tasks, err := watcher.svc.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	changes, unsubscribe := watcher.cache.Subscribe()
	defer unsubscribe()

	_, err = writer.svc.CreateTask(ctx, types.Task{Title: "From elsewhere"})
	require.NoError(t, err)

	select {
	case change := <-changes:
		assert.Equal(t, "ws-1", change.WorkspaceID)
		assert.Equal(t, writer.cache.Origin(), change.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher was not notified")
	}

	tasks, err = watcher.svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "From elsewhere", tasks[0].Title)
}

func TestConfigCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created config file")

	_, err = run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "(found)")
	assert.Contains(t, out, "FRAGSYNC_JIRA_SITE")

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ws-1")
	assert.Contains(t, out, "redis://")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fragsync dev")
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    types.Status
		wantErr bool
	}{
		{"todo", types.StatusTodo, false},
		{"In Progress", types.StatusInProgress, false},
		{"inprogress", types.StatusInProgress, false},
		{" DONE ", types.StatusDone, false},
		{"archived", types.StatusArchived, false},
		{"blocked", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildUpdate(t *testing.T) {
	cmd := newTasksUpdateCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--status", "done", "--tag", "a", "--tag", "b", "--comment", " hi ", "-p", "URGENT"}))

	upd, err := buildUpdate(cmd)
	require.NoError(t, err)

	require.NotNil(t, upd.Status)
	assert.Equal(t, types.StatusDone, *upd.Status)
	require.NotNil(t, upd.Priority)
	assert.Equal(t, types.PriorityUrgent, *upd.Priority)
	require.NotNil(t, upd.Tags)
	assert.Equal(t, []string{"a", "b"}, *upd.Tags)
	require.NotNil(t, upd.Comment)
	assert.Equal(t, "hi", upd.Comment.Body)

	assert.Nil(t, upd.Title)
	assert.Nil(t, upd.Description)
	assert.Nil(t, upd.Projects)
	assert.Nil(t, upd.StartDate)
}

func TestHelpers(t *testing.T) {
	assert.True(t, isRedisURL("redis://localhost:6379/0"))
	assert.True(t, isRedisURL("rediss://cache:6380"))
	assert.False(t, isRedisURL("https://api.example.com"))

	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd...mnop", maskSecret("abcdefghijklmnop"))

	tasks := []types.Task{
		{ID: "1", Status: types.StatusTodo, Tags: []string{"Docs"}},
		{ID: "2", Status: types.StatusDone},
	}
	assert.Len(t, filterTasks(tasks, types.StatusTodo, ""), 1)
	assert.Len(t, filterTasks(tasks, "", "docs"), 1)
	assert.Len(t, filterTasks(tasks, "", ""), 2)
}

func TestRedisState(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Empty(t, redisState(""))
	assert.Contains(t, redisState("redis://"+mr.Addr()), "(reachable)")
	assert.Contains(t, redisState("not a url"), "(unreachable)")
}
