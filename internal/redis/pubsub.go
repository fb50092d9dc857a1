package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

// ChangeChannelPrefix is the prefix of the per-workspace change channels.
const ChangeChannelPrefix = KeyPrefix + "changes:"

// ChangeChannel returns the pub/sub channel for a workspace.
func ChangeChannel(workspaceID string) string {
	return ChangeChannelPrefix + workspaceID
}

// Publish announces a change to every process watching the workspace.
func (c *Client) Publish(ctx context.Context, change types.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, ChangeChannel(change.WorkspaceID), data).Err()
}

// Subscription delivers published changes until closed.
type Subscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

// SubscribeChanges listens on every workspace's change channel and calls
// handle for each change, from a single goroutine. It returns once the
// subscription is confirmed by the server.
func (c *Client) SubscribeChanges(ctx context.Context, handle func(types.Change)) (*Subscription, error) {
	ps := c.rdb.PSubscribe(ctx, ChangeChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	s := &Subscription{ps: ps, done: make(chan struct{})}
	go s.run(handle)
	return s, nil
}

func (s *Subscription) run(handle func(types.Change)) {
	defer close(s.done)
	log := logging.WithComponent("redis")

	for msg := range s.ps.Channel() {
		var change types.Change
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			log.WithField("channel", msg.Channel).WithError(err).Warn("ignoring malformed change message")
			continue
		}
		if change.WorkspaceID == "" {
			continue
		}
		handle(change)
	}
}

// Close stops the subscription and waits for the delivery goroutine to exit.
func (s *Subscription) Close() error {
	err := s.ps.Close()
	<-s.done
	return err
}
