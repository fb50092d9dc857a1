// Package fragment maps tasks to and from the workspace backend's fragment
// representation and talks to the backend over HTTP.
package fragment

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Jayphen/fragsync/internal/types"
)

// Payload is the writable part of a fragment.
type Payload struct {
	Title      string                     `json:"title"`
	Content    string                     `json:"content"`
	Tags       []string                   `json:"tags,omitempty"`
	Fields     map[string]json.RawMessage `json:"fields,omitempty"` // Frontmatter-style fields
	References []string                   `json:"references,omitempty"`
	CreatedAt  string                     `json:"createdAt,omitempty"`
}

// Fragment is a fragment as returned by the backend. ID and UpdatedAt are
// assigned by the backend.
type Fragment struct {
	ID     string `json:"id"`
	TypeID string `json:"typeId,omitempty"`
	Payload
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Filter narrows list and count operations. Empty fields match everything.
type Filter struct {
	TypeID string `json:"typeId,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// Query encodes the filter as URL query parameters.
func (f *Filter) Query() url.Values {
	q := url.Values{}
	if f == nil {
		return q
	}
	if f.TypeID != "" {
		q.Set("type", f.TypeID)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	return q
}

// Matches reports whether a fragment satisfies the filter.
func (f *Filter) Matches(frag Fragment) bool {
	if f == nil {
		return true
	}
	if f.TypeID != "" && frag.TypeID != f.TypeID {
		return false
	}
	if f.Tag != "" {
		for _, tag := range frag.Tags {
			if tag == f.Tag {
				return true
			}
		}
		return false
	}
	return true
}

// Store is the fragment CRUD surface of a workspace backend.
type Store interface {
	// Create stores a new fragment of the given type and returns its ID.
	Create(ctx context.Context, workspaceID, typeID string, payload Payload) (string, error)

	// Update replaces the writable part of an existing fragment.
	Update(ctx context.Context, workspaceID, fragmentID string, payload Payload) error

	// Delete removes a fragment.
	Delete(ctx context.Context, workspaceID, fragmentID string) error

	// List returns fragments matching the filter in backend order.
	// If filter is nil, returns all fragments.
	List(ctx context.Context, workspaceID string, filter *Filter) ([]Fragment, error)

	// Count returns the number of fragments matching the filter.
	Count(ctx context.Context, workspaceID string, filter Filter) (int, error)
}

// MemberDirectory lists the members of a workspace.
type MemberDirectory interface {
	ListMembers(ctx context.Context, workspaceID string) ([]types.Member, error)
}
