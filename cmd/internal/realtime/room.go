package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	v1 "roomchat/shared/contracts/chat/v1"
)

// Room is an in-memory membership set + broadcast fan-out primitive.
//
// Concurrency guarantees:
//   - add/remove are safe under concurrent BroadcastMessage.
//   - BroadcastMessage never blocks on a member: each send is scheduled
//     independently through the SendLimiter.
//   - Membership changes go through Rooms, which owns the lifecycle.
type Room struct {
	ID      int64
	Name    string
	Created time.Time

	log     *slog.Logger
	limiter *SendLimiter

	mu      sync.RWMutex
	members map[string]*Client
}

func newRoom(log *slog.Logger, rec RoomRecord, limiter *SendLimiter) *Room {
	return &Room{
		ID:      rec.ID,
		Name:    rec.Name,
		Created: rec.Created,
		log:     log,
		limiter: limiter,
		members: make(map[string]*Client),
	}
}

func (r *Room) addClient(c *Client) {
	r.mu.Lock()
	r.members[c.ID()] = c
	r.mu.Unlock()

	r.log.Info("room.member.join", "room", r.Name, "conn_id", c.ID())
}

// removeClient drops the member and returns how many remain.
func (r *Room) removeClient(connID string) int {
	r.mu.Lock()
	delete(r.members, connID)
	n := len(r.members)
	r.mu.Unlock()

	r.log.Info("room.member.leave", "room", r.Name, "conn_id", connID, "remaining", n)
	return n
}

// Len returns the member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot ordered by connection id.
func (r *Room) Members() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// BroadcastMessage fans msg out to every member and returns the number of sends scheduled.
func (r *Room) BroadcastMessage(ctx context.Context, msg StoredMessage) int {
	frame := v1.MessageBroadcast{
		Type:    v1.TypeMessage,
		Message: wireMessage(msg),
	}

	members := r.Members()
	for _, m := range members {
		r.limiter.Go(ctx, func(ctx context.Context) error {
			if err := m.Send(ctx, frame); err != nil {
				r.log.Debug("room.broadcast.drop", "room", r.Name, "conn_id", m.ID(), "err", err)
				return err
			}
			return nil
		})
	}
	return len(members)
}

func wireMessage(m StoredMessage) v1.Message {
	return v1.Message{
		ID:   m.ID,
		User: m.User,
		Text: m.Text,
		Time: m.Time.UnixMilli(),
	}
}

func wireMessages(in []StoredMessage) []v1.Message {
	out := make([]v1.Message, 0, len(in))
	for _, m := range in {
		out = append(out, wireMessage(m))
	}
	return out
}
