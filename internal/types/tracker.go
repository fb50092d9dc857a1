package types

// TrackerIssue is a normalized view of an external tracker issue.
// It only lives for the duration of an import.
type TrackerIssue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"` // Flattened to plain text
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
	IssueType   string `json:"issueType,omitempty"`
	URL         string `json:"url"` // Browse URL

	ProjectKey  string `json:"projectKey,omitempty"`
	ProjectName string `json:"projectName,omitempty"`

	AssigneeEmail string `json:"assigneeEmail,omitempty"`
	AssigneeName  string `json:"assigneeName,omitempty"`

	// Parent epic, if any. EpicName may be empty when only the key is known.
	EpicKey  string `json:"epicKey,omitempty"`
	EpicName string `json:"epicName,omitempty"`
}

// Transition is a tracker-defined state change available on an issue.
type Transition struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	To   *TransitionTarget `json:"to,omitempty"`
}

// TransitionTarget describes the status a transition leads to.
type TransitionTarget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TargetName returns the target status name, falling back to the
// transition's own name when the tracker did not report a target.
func (t Transition) TargetName() string {
	if t.To != nil && t.To.Name != "" {
		return t.To.Name
	}
	return t.Name
}
