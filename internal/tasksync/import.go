package tasksync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/statusmap"
	"github.com/Jayphen/fragsync/internal/types"
)

// JiraTag is added to every imported task.
const JiraTag = "jira"

// ImportIssue links a tracker issue to a task in the active workspace,
// creating the task unless one already carries the issue key. Concurrent
// imports of the same key share a single attempt.
func (s *Service) ImportIssue(ctx context.Context, key string) (types.Task, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return types.Task{}, errors.New("issue key is required")
	}

	ws, err := s.workspace()
	if err != nil {
		return types.Task{}, err
	}

	// The shared attempt outlives any one caller's cancellation.
	ch := s.imports.DoChan(ws.ID+"/"+key, func() (interface{}, error) {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.importTimeout)
		defer cancel()
		return s.importIssue(ictx, ws, key)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return types.Task{}, r.Err
		}
		return r.Val.(types.Task).Clone(), nil
	case <-ctx.Done():
		return types.Task{}, ctx.Err()
	}
}

func (s *Service) importIssue(ctx context.Context, ws types.Workspace, key string) (types.Task, error) {
	log := s.log.WithWorkspace(ws.ID).WithTrackerKey(key)

	tracker, err := s.tracker()
	if err != nil {
		return types.Task{}, err
	}

	issue, err := tracker.FetchIssue(ctx, key)
	if err != nil {
		return types.Task{}, fmt.Errorf("import %s: %w", key, err)
	}
	if issue.Key == "" {
		issue.Key = key
	}

	if issue.EpicKey != "" && issue.EpicName == "" {
		issue.EpicName = s.resolveEpicName(ctx, tracker, issue.EpicKey)
	}

	tasks, err := s.cache.Get(ctx, ws.ID)
	if err != nil {
		return types.Task{}, fmt.Errorf("import %s: %w", key, err)
	}
	for _, t := range tasks {
		if strings.EqualFold(t.TrackerKey, issue.Key) {
			log.WithTask(t.ID).Debug("issue already imported")
			return t, nil
		}
	}

	order, err := s.store.Count(ctx, ws.ID, fragment.Filter{Tag: fragment.MarkerTag})
	if err != nil {
		return types.Task{}, fmt.Errorf("import %s: %w", key, err)
	}

	task := DeriveTask(issue, order)
	task.AssigneeID = s.resolveAssignee(ctx, ws.ID, issue.AssigneeEmail)
	task.CreatedAt = s.now()

	id, err := s.store.Create(ctx, ws.ID, ws.TaskTypeID, fragment.Encode(task))
	if err != nil {
		return types.Task{}, fmt.Errorf("import %s: %w", key, err)
	}
	task.ID = id
	task.UpdatedAt = task.CreatedAt

	s.written(ctx, ws.ID)

	log.WithTask(id).Info("imported issue")
	return task, nil
}

// DeriveTask builds the task for a tracker issue that has not been imported yet.
// order is used for both the board and list position.
func DeriveTask(issue types.TrackerIssue, order int) types.Task {
	description := "Imported from " + issue.URL
	if d := strings.TrimSpace(issue.Description); d != "" {
		description = d + "\n\n" + description
	}

	tags := []string{JiraTag}
	if issue.ProjectKey != "" && issue.ProjectKey != JiraTag {
		tags = append(tags, issue.ProjectKey)
	}
	sort.Strings(tags)

	var projects []string
	for _, name := range []string{issue.EpicName, issue.EpicKey, issue.ProjectName, issue.ProjectKey} {
		if strings.TrimSpace(name) != "" {
			projects = []string{name}
			break
		}
	}

	return types.Task{
		Title:       fmt.Sprintf("[%s] %s", issue.Key, issue.Summary),
		Description: description,
		Status:      statusmap.StatusFromTracker(issue.Status),
		Priority:    statusmap.PriorityFromTracker(issue.Priority),
		BoardOrder:  float64(order),
		ListOrder:   float64(order),
		Tags:        tags,
		Projects:    projects,
		TrackerKey:  issue.Key,
		TrackerURL:  issue.URL,
	}
}

// resolveEpicName fetches the parent issue for its summary, falling back to
// the key on any failure.
func (s *Service) resolveEpicName(ctx context.Context, tracker Tracker, epicKey string) string {
	parent, err := tracker.FetchIssue(ctx, epicKey)
	if err != nil {
		s.log.WithTrackerKey(epicKey).WithError(err).Debug("could not resolve epic name, using key")
		return epicKey
	}
	if parent.Summary == "" {
		return epicKey
	}
	return parent.Summary
}

// resolveAssignee matches the tracker assignee's email against the member
// directory. Any lookup problem leaves the task unassigned.
func (s *Service) resolveAssignee(ctx context.Context, workspaceID, email string) string {
	email = strings.TrimSpace(email)
	if email == "" || s.members == nil {
		return ""
	}

	members, err := s.members.ListMembers(ctx, workspaceID)
	if err != nil {
		s.log.WithWorkspace(workspaceID).WithError(err).Debug("member lookup failed, leaving task unassigned")
		return ""
	}
	for _, m := range members {
		if strings.EqualFold(strings.TrimSpace(m.Email), email) {
			return m.UserID
		}
	}
	return ""
}
