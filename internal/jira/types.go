package jira

import "encoding/json"

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields of a Jira issue that fragsync reads.
// Object fields are kept raw and decoded one by one, so a field in an
// unexpected shape is dropped instead of failing the whole issue.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"` // ADF or plain text
	Status      json.RawMessage `json:"status"`
	Priority    json.RawMessage `json:"priority"`
	IssueType   json.RawMessage `json:"issuetype"`
	Project     json.RawMessage `json:"project"`
	Assignee    json.RawMessage `json:"assignee"`
	Parent      json.RawMessage `json:"parent"`
}

// optional decodes raw into a T. Absent, null and wrongly shaped values
// all yield nil.
func optional[T any](raw json.RawMessage) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// NamedField is the {id, name} shape shared by status, priority and issue type.
type NamedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectField represents a Jira project.
type ProjectField struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// UserField represents a Jira user.
type UserField struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// ParentField is the parent issue (usually an epic). Jira only includes a
// few of the parent's fields.
type ParentField struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

// ParentFields is the subset of the parent's fields Jira embeds.
type ParentFields struct {
	Summary string `json:"summary"`
}
