package fragment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Jayphen/fragsync/internal/types"
)

const (
	// MarkerTag is carried by every fragment written by fragsync.
	MarkerTag = "fragsync:task"

	// ProjectTagPrefix is the tag namespace holding project names.
	ProjectTagPrefix = "project:"
)

// Field keys inside Payload.Fields.
const (
	FieldStatus     = "status"
	FieldPriority   = "priority"
	FieldBoardOrder = "boardOrder"
	FieldListOrder  = "listOrder"
	FieldComments   = "comments"
	FieldStartDate  = "startDate"
	FieldEndDate    = "endDate"
	FieldAssignee   = "assigneeId"
	FieldTrackerKey = "trackerKey"
	FieldTrackerURL = "trackerUrl"
)

// Encode converts a task into a fragment payload. ID and UpdatedAt are not
// part of the payload; the backend owns them.
func Encode(t types.Task) Payload {
	p := Payload{
		Title:      t.Title,
		Content:    t.Description,
		Fields:     make(map[string]json.RawMessage),
		References: normalizeSet(t.Dependencies),
	}

	tags := []string{MarkerTag}
	for _, tag := range t.Tags {
		if IsReservedTag(tag) {
			continue
		}
		tags = append(tags, tag)
	}
	for _, project := range t.Projects {
		tags = append(tags, ProjectTagPrefix+project)
	}
	p.Tags = normalizeSet(tags)

	p.Fields[FieldStatus] = mustRaw(string(t.Status))
	if t.Priority != "" {
		p.Fields[FieldPriority] = mustRaw(string(t.Priority))
	}
	p.Fields[FieldBoardOrder] = mustRaw(finite(t.BoardOrder))
	p.Fields[FieldListOrder] = mustRaw(finite(t.ListOrder))

	if len(t.Comments) > 0 {
		p.Fields[FieldComments] = mustRaw(t.Comments)
	}
	if t.StartDate != nil {
		p.Fields[FieldStartDate] = mustRaw(formatTime(*t.StartDate))
	}
	if t.EndDate != nil {
		p.Fields[FieldEndDate] = mustRaw(formatTime(*t.EndDate))
	}
	if t.AssigneeID != "" {
		p.Fields[FieldAssignee] = mustRaw(t.AssigneeID)
	}
	if t.TrackerKey != "" {
		p.Fields[FieldTrackerKey] = mustRaw(t.TrackerKey)
	}
	if t.TrackerURL != "" {
		p.Fields[FieldTrackerURL] = mustRaw(t.TrackerURL)
	}

	if !t.CreatedAt.IsZero() {
		p.CreatedAt = formatTime(t.CreatedAt)
	}

	return p
}

// Decode converts a fragment into a task. Missing or unreadable optional
// fields are left unset; a missing id, title or status is an
// ErrMalformedFragment.
func Decode(f Fragment) (types.Task, error) {
	if f.ID == "" {
		return types.Task{}, malformed(f.ID, "missing id")
	}
	if f.Title == "" {
		return types.Task{}, malformed(f.ID, "missing title")
	}

	raw, ok := f.Fields[FieldStatus]
	if !ok {
		return types.Task{}, malformed(f.ID, "missing status")
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		return types.Task{}, malformed(f.ID, "status is not a string")
	}
	if !types.Status(status).IsValid() {
		return types.Task{}, malformed(f.ID, fmt.Sprintf("unknown status %q", status))
	}

	t := types.Task{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Content,
		Status:       types.Status(status),
		Dependencies: normalizeSet(f.References),
	}

	var priority string
	if decodeField(f.Fields, FieldPriority, &priority) && types.Priority(priority).IsValid() {
		t.Priority = types.Priority(priority)
	}
	decodeField(f.Fields, FieldBoardOrder, &t.BoardOrder)
	decodeField(f.Fields, FieldListOrder, &t.ListOrder)
	decodeField(f.Fields, FieldAssignee, &t.AssigneeID)
	decodeField(f.Fields, FieldTrackerKey, &t.TrackerKey)
	decodeField(f.Fields, FieldTrackerURL, &t.TrackerURL)

	var comments []types.Comment
	if decodeField(f.Fields, FieldComments, &comments) && len(comments) > 0 {
		t.Comments = comments
	}

	t.StartDate = decodeTimeField(f.Fields, FieldStartDate)
	t.EndDate = decodeTimeField(f.Fields, FieldEndDate)

	if ts, err := parseTime(f.CreatedAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := parseTime(f.UpdatedAt); err == nil {
		t.UpdatedAt = ts
	}

	var tags, projects []string
	for _, tag := range f.Tags {
		switch {
		case tag == MarkerTag:
		case strings.HasPrefix(tag, ProjectTagPrefix):
			projects = append(projects, strings.TrimPrefix(tag, ProjectTagPrefix))
		default:
			tags = append(tags, tag)
		}
	}
	t.Tags = normalizeSet(tags)
	t.Projects = normalizeSet(projects)

	return t, nil
}

// DecodeAll decodes every fragment, returning the tasks that decoded and the
// errors of those that did not.
func DecodeAll(frags []Fragment) ([]types.Task, []error) {
	tasks := make([]types.Task, 0, len(frags))
	var errs []error
	for _, f := range frags {
		t, err := Decode(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, errs
}

func malformed(id, reason string) error {
	if id == "" {
		return fmt.Errorf("%w: %s", types.ErrMalformedFragment, reason)
	}
	return fmt.Errorf("%w: fragment %s: %s", types.ErrMalformedFragment, id, reason)
}

// IsReservedTag reports whether tag belongs to a namespace the codec uses
// for its own bookkeeping. Such tags cannot be stored as plain task tags.
func IsReservedTag(tag string) bool {
	return tag == MarkerTag || strings.HasPrefix(tag, ProjectTagPrefix)
}

// decodeField unmarshals an optional field, reporting whether it was present
// and well formed.
func decodeField(fields map[string]json.RawMessage, key string, dst interface{}) bool {
	raw, ok := fields[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func decodeTimeField(fields map[string]json.RawMessage, key string) *time.Time {
	var s string
	if !decodeField(fields, key, &s) {
		return nil
	}
	ts, err := parseTime(s)
	if err != nil {
		return nil
	}
	return &ts
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// normalizeSet sorts and de-duplicates a string set. Empty sets become nil.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// finite maps NaN and infinities, which JSON cannot carry, to zero.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// mustRaw marshals values that cannot fail to encode (strings, numbers,
// comment slices).
func mustRaw(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fragment: marshal %T: %v", v, err))
	}
	return data
}
