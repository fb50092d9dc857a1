package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Jayphen/fragsync/internal/fragment"
	"github.com/Jayphen/fragsync/internal/types"
)

// FragmentStore keeps fragments and the member directory in Redis hashes,
// one hash per workspace. It stands in for the HTTP backend on a single host.
type FragmentStore struct {
	client *Client
	now    func() time.Time

	// beforeCommit runs between the read and the write of an Update.
	beforeCommit func()
}

// maxUpdateAttempts bounds the optimistic retries of an Update whose
// workspace hash changed underneath it.
const maxUpdateAttempts = 5

// NewFragmentStore creates a store on top of client.
func NewFragmentStore(client *Client) *FragmentStore {
	return &FragmentStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func fragmentsKey(workspaceID string) string { return workspaceKey(workspaceID, "fragments") }
func membersKey(workspaceID string) string   { return workspaceKey(workspaceID, "members") }

// Create stores a new fragment under a fresh UUID.
func (s *FragmentStore) Create(ctx context.Context, workspaceID, typeID string, payload fragment.Payload) (string, error) {
	now := s.now().Format(time.RFC3339Nano)
	if payload.CreatedAt == "" {
		payload.CreatedAt = now
	}

	frag := fragment.Fragment{
		ID:        uuid.NewString(),
		TypeID:    typeID,
		Payload:   payload,
		UpdatedAt: now,
	}
	if err := s.put(ctx, workspaceID, frag); err != nil {
		return "", fmt.Errorf("create fragment: %w", err)
	}
	return frag.ID, nil
}

// Update replaces a fragment's payload, keeping its type and creation time
// unless the payload sets one. The read and the write run under WATCH, so a
// fragment deleted in between is reported missing rather than recreated.
func (s *FragmentStore) Update(ctx context.Context, workspaceID, fragmentID string, payload fragment.Payload) error {
	key := fragmentsKey(workspaceID)

	txf := func(tx *redis.Tx) error {
		existing, err := decodeStored(tx.HGet(ctx, key, fragmentID))
		if err != nil {
			return err
		}

		if payload.CreatedAt == "" {
			payload.CreatedAt = existing.CreatedAt
		}
		existing.Payload = payload
		existing.UpdatedAt = s.now().Format(time.RFC3339Nano)

		data, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fragmentID, data)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update fragment %s: %w", fragmentID, err)
		}
		return nil
	}
	return fmt.Errorf("update fragment %s: workspace kept changing, gave up after %d attempts", fragmentID, maxUpdateAttempts)
}

// Delete removes a fragment.
func (s *FragmentStore) Delete(ctx context.Context, workspaceID, fragmentID string) error {
	n, err := s.client.rdb.HDel(ctx, fragmentsKey(workspaceID), fragmentID).Result()
	if err != nil {
		return fmt.Errorf("delete fragment %s: %w", fragmentID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete fragment %s: %w", fragmentID, types.ErrTaskNotFound)
	}
	return nil
}

// List returns the fragments matching filter, oldest first.
func (s *FragmentStore) List(ctx context.Context, workspaceID string, filter *fragment.Filter) ([]fragment.Fragment, error) {
	values, err := s.client.rdb.HGetAll(ctx, fragmentsKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}

	frags := make([]fragment.Fragment, 0, len(values))
	for _, val := range values {
		var frag fragment.Fragment
		if err := json.Unmarshal([]byte(val), &frag); err != nil {
			continue
		}
		if filter.Matches(frag) {
			frags = append(frags, frag)
		}
	}

	sort.Slice(frags, func(i, j int) bool {
		if frags[i].CreatedAt != frags[j].CreatedAt {
			return frags[i].CreatedAt < frags[j].CreatedAt
		}
		return frags[i].ID < frags[j].ID
	})

	return frags, nil
}

// Count returns the number of fragments matching filter.
func (s *FragmentStore) Count(ctx context.Context, workspaceID string, filter fragment.Filter) (int, error) {
	frags, err := s.List(ctx, workspaceID, &filter)
	if err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}
	return len(frags), nil
}

// ListMembers returns the workspace member directory ordered by user ID.
func (s *FragmentStore) ListMembers(ctx context.Context, workspaceID string) ([]types.Member, error) {
	values, err := s.client.rdb.HGetAll(ctx, membersKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]types.Member, 0, len(values))
	for userID, email := range values {
		members = append(members, types.Member{UserID: userID, Email: email})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// AddMember adds or replaces a member directory entry.
func (s *FragmentStore) AddMember(ctx context.Context, workspaceID string, member types.Member) error {
	if member.UserID == "" {
		return errors.New("member user ID is required")
	}
	return s.client.rdb.HSet(ctx, membersKey(workspaceID), member.UserID, member.Email).Err()
}

// decodeStored unmarshals the result of an HGET on a fragments hash.
func decodeStored(cmd *redis.StringCmd) (fragment.Fragment, error) {
	val, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return fragment.Fragment{}, types.ErrTaskNotFound
	}
	if err != nil {
		return fragment.Fragment{}, err
	}

	var frag fragment.Fragment
	if err := json.Unmarshal([]byte(val), &frag); err != nil {
		return fragment.Fragment{}, fmt.Errorf("%w: %v", types.ErrMalformedFragment, err)
	}
	return frag, nil
}

func (s *FragmentStore) put(ctx context.Context, workspaceID string, frag fragment.Fragment) error {
	data, err := json.Marshal(frag)
	if err != nil {
		return err
	}
	return s.client.rdb.HSet(ctx, fragmentsKey(workspaceID), frag.ID, data).Err()
}
