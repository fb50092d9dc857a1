// Package statusmap translates between fragsync task states and the
// free-form status and priority names used by the issue tracker.
//
// Everything here is pure and table driven, so it can be tested without a
// tracker.
package statusmap

import (
	"strings"
	"unicode"

	"github.com/Jayphen/fragsync/internal/types"
)

var doneNames = []string{"Done", "Closed", "Resolved", "Complete"}

// targetNames lists the tracker status names acceptable for each local status.
var targetNames = map[types.Status][]string{
	types.StatusTodo:       {"To Do", "Open", "Backlog", "Selected for Development"},
	types.StatusInProgress: {"In Progress", "In Development", "In Review"},
	types.StatusDone:       doneNames,
	types.StatusArchived:   doneNames,
}

// TargetNames returns the tracker status names a task in the given status
// may be moved to. Unknown statuses yield nil.
func TargetNames(status types.Status) []string {
	names := targetNames[status]
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// SelectTransition picks the transition to execute for status. The first
// transition, in the order the tracker returned them, whose target status
// is one of TargetNames(status) wins. The names only decide membership.
func SelectTransition(status types.Status, transitions []types.Transition) (types.Transition, bool) {
	accept := make(map[string]bool)
	for _, name := range targetNames[status] {
		accept[strings.ToLower(name)] = true
	}

	for _, t := range transitions {
		if accept[strings.ToLower(strings.TrimSpace(t.TargetName()))] {
			return t, true
		}
	}
	return types.Transition{}, false
}

// TransitionNames returns the display names of transitions, for logging.
func TransitionNames(transitions []types.Transition) []string {
	names := make([]string, 0, len(transitions))
	for _, t := range transitions {
		names = append(names, t.TargetName())
	}
	return names
}

// reverseOrder decides which local status owns a name listed under several.
var reverseOrder = []types.Status{types.StatusTodo, types.StatusInProgress, types.StatusDone}

// StatusFromTracker maps a tracker status name onto a local status. Names
// from the target tables map back to the status they are listed under;
// anything else falls back to keyword heuristics.
func StatusFromTracker(name string) types.Status {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, status := range reverseOrder {
		for _, target := range targetNames[status] {
			if n == strings.ToLower(target) {
				return status
			}
		}
	}

	switch {
	case containsAny(n, "progress", "review", "development"):
		return types.StatusInProgress
	case hasWord(n, "done", "closed", "resolved", "complete", "completed"):
		return types.StatusDone
	default:
		return types.StatusTodo
	}
}

// PriorityFromTracker maps a tracker priority name onto a local priority.
// Empty or unrecognised names map to medium.
func PriorityFromTracker(name string) types.Priority {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, "highest", "critical", "blocker", "urgent"):
		return types.PriorityUrgent
	case strings.Contains(n, "high"):
		return types.PriorityHigh
	case containsAny(n, "low", "trivial", "minor"):
		return types.PriorityLow
	default:
		return types.PriorityMedium
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasWord reports whether s contains one of words as a whole word, so that
// "incomplete" does not count as "complete".
func hasWord(s string, words ...string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
