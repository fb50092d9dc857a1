package tasksync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/types"
)

// TaskUpdate contains fields to update on a task. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *types.Status
	Priority    *types.Priority
	BoardOrder  *float64
	ListOrder   *float64
	Tags        *[]string
	Projects    *[]string
	AssigneeID  *string
	StartDate   *time.Time
	EndDate     *time.Time

	// Comment, when set, is appended to the task's comments.
	Comment *types.Comment
}

// ListTasks returns the tasks of the active workspace in list order.
func (s *Service) ListTasks(ctx context.Context) ([]types.Task, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}

	tasks, err := s.cache.Get(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].ListOrder != tasks[j].ListOrder {
			return tasks[i].ListOrder < tasks[j].ListOrder
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// GetTask returns a single task of the active workspace.
func (s *Service) GetTask(ctx context.Context, id string) (types.Task, error) {
	ws, err := s.workspace()
	if err != nil {
		return types.Task{}, err
	}
	return s.cache.Find(ctx, ws.ID, id)
}

// CreateTask stores a new task. Missing status and priority default to
// todo and medium; a task without orders is placed at the end.
func (s *Service) CreateTask(ctx context.Context, draft types.Task) (types.Task, error) {
	ws, err := s.workspace()
	if err != nil {
		return types.Task{}, err
	}

	task := draft.Clone()
	task.ID = ""
	task.Title = strings.TrimSpace(task.Title)
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}
	if err := validate(task); err != nil {
		return types.Task{}, err
	}

	if task.BoardOrder == 0 && task.ListOrder == 0 {
		n, err := s.store.Count(ctx, ws.ID, fragment.Filter{Tag: fragment.MarkerTag})
		if err != nil {
			return types.Task{}, fmt.Errorf("create task: %w", err)
		}
		task.BoardOrder = float64(n)
		task.ListOrder = float64(n)
	}
	task.CreatedAt = s.now()

	id, err := s.store.Create(ctx, ws.ID, ws.TaskTypeID, fragment.Encode(task))
	if err != nil {
		return types.Task{}, fmt.Errorf("create task: %w", err)
	}
	task.ID = id
	task.UpdatedAt = task.CreatedAt

	s.written(ctx, ws.ID)
	s.log.WithWorkspace(ws.ID).WithTask(id).Info("created task")
	return task, nil
}

// UpdateTask applies upd to a task. When the status changes on a task
// linked to the tracker, the change is propagated after the write succeeds.
func (s *Service) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (types.Task, error) {
	ws, err := s.workspace()
	if err != nil {
		return types.Task{}, err
	}

	prev, err := s.cache.Find(ctx, ws.ID, id)
	if err != nil {
		return types.Task{}, err
	}

	next := prev.Clone()
	upd.apply(&next, s.now())
	if err := validate(next); err != nil {
		return types.Task{}, err
	}

	if err := s.store.Update(ctx, ws.ID, id, fragment.Encode(next)); err != nil {
		return types.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	next.UpdatedAt = s.now()

	s.written(ctx, ws.ID)
	s.log.WithWorkspace(ws.ID).WithTask(id).Debug("updated task")

	if next.Status != prev.Status && next.IsLinked() {
		s.PropagateStatus(next, next.Status)
	}
	return next, nil
}

// MoveTask changes a task's status and board position, as a board drag does.
func (s *Service) MoveTask(ctx context.Context, id string, status types.Status, boardOrder float64) (types.Task, error) {
	return s.UpdateTask(ctx, id, TaskUpdate{Status: &status, BoardOrder: &boardOrder})
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, ws.ID, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.written(ctx, ws.ID)
	s.log.WithWorkspace(ws.ID).WithTask(id).Info("deleted task")
	return nil
}

func (u TaskUpdate) apply(t *types.Task, now time.Time) {
	if u.Title != nil {
		t.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.BoardOrder != nil {
		t.BoardOrder = *u.BoardOrder
	}
	if u.ListOrder != nil {
		t.ListOrder = *u.ListOrder
	}
	if u.Tags != nil {
		t.Tags = *u.Tags
	}
	if u.Projects != nil {
		t.Projects = *u.Projects
	}
	if u.AssigneeID != nil {
		t.AssigneeID = *u.AssigneeID
	}
	if u.StartDate != nil {
		d := *u.StartDate
		t.StartDate = &d
	}
	if u.EndDate != nil {
		d := *u.EndDate
		t.EndDate = &d
	}
	if u.Comment != nil {
		c := *u.Comment
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		t.Comments = append(t.Comments, c)
	}
}

func validate(t types.Task) error {
	if t.Title == "" {
		return errors.New("task title is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.Priority != "" && !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return errors.New("end date is before start date")
	}
	for _, tag := range t.Tags {
		if fragment.IsReservedTag(tag) {
			return fmt.Errorf("tag %q uses a reserved prefix (%q or %q)", tag, fragment.ProjectTagPrefix, fragment.MarkerTag)
		}
	}
	return nil
}
