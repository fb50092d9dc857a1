// Package types defines the core data types used throughout fragsync.
package types

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// ValidStatuses is the list of known task statuses, in board column order.
var ValidStatuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusArchived}

// IsValid checks if a status is recognized.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriorities is the list of known priorities, lowest first.
var ValidPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// IsValid checks if a priority is recognized.
func (p Priority) IsValid() bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}

// Task is the canonical local view of a task fragment.
type Task struct {
	ID          string   `json:"id"` // Remote fragment ID
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`

	// Independent sort keys for the board and list views
	BoardOrder float64 `json:"boardOrder"`
	ListOrder  float64 `json:"listOrder"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Tags         []string  `json:"tags,omitempty"`
	Projects     []string  `json:"projects,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"` // IDs of other tasks
	Comments     []Comment `json:"comments,omitempty"`

	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	AssigneeID string     `json:"assigneeId,omitempty"`

	// External tracker link
	TrackerKey string `json:"trackerKey,omitempty"`
	TrackerURL string `json:"trackerUrl,omitempty"`
}

// IsLinked reports whether the task is linked to a tracker issue.
func (t Task) IsLinked() bool {
	return t.TrackerKey != ""
}

// Clone returns a copy of t that shares no slices or pointers with it.
func (t Task) Clone() Task {
	out := t
	out.Tags = cloneStrings(t.Tags)
	out.Projects = cloneStrings(t.Projects)
	out.Dependencies = cloneStrings(t.Dependencies)
	if t.Comments != nil {
		out.Comments = make([]Comment, len(t.Comments))
		copy(out.Comments, t.Comments)
	}
	if t.StartDate != nil {
		d := *t.StartDate
		out.StartDate = &d
	}
	if t.EndDate != nil {
		d := *t.EndDate
		out.EndDate = &d
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Comment is a single entry in a task's discussion thread.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Workspace identifies where task fragments live in the backend.
type Workspace struct {
	ID         string `json:"id"`
	TaskTypeID string `json:"taskTypeId"` // Fragment type designated for tasks
}

// IsConfigured reports whether both the workspace and its task type are set.
func (w Workspace) IsConfigured() bool {
	return w.ID != "" && w.TaskTypeID != ""
}

// Member is an entry of a workspace's member directory.
type Member struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Change is a notification that a workspace's task fragments were written.
type Change struct {
	WorkspaceID string    `json:"workspaceId"`
	Origin      string    `json:"origin,omitempty"` // Process that made the write
	At          time.Time `json:"at"`
}
