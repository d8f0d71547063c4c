package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Rooms owns the in-memory room registry.
//
// Invariants:
//   - A room is registered iff it has at least one member. Creation and the
//     first join happen under one lock hold; the last leave deletes it under
//     the same hold.
//   - Client.RoomName() != "" implies that room contains the client.
//
// Lock order: Rooms.mu, then Room.mu.
type Rooms struct {
	log          *slog.Logger
	store        MessageStore
	limiter      *SendLimiter
	metrics      *Metrics
	historyLimit int
	now          func() time.Time

	loads singleflight.Group

	mu    sync.Mutex
	rooms map[string]*Room
}

// RoomsConfig wires a Rooms registry.
type RoomsConfig struct {
	Store        MessageStore
	Limiter      *SendLimiter
	Metrics      *Metrics
	HistoryLimit int
	Now          func() time.Time
}

// NewRooms constructs an empty registry.
func NewRooms(log *slog.Logger, cfg RoomsConfig) (*Rooms, error) {
	if cfg.Store == nil {
		return nil, errors.New("realtime: nil message store")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("realtime: nil send limiter")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Rooms{
		log:          log,
		store:        cfg.Store,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		historyLimit: cfg.HistoryLimit,
		now:          cfg.Now,
		rooms:        make(map[string]*Room),
	}, nil
}

// Enter moves c into the named room, creating it (durably and in memory) when
// needed, and returns the room history. Entering the current room keeps
// membership unchanged.
//
// Membership is committed before history is read; a history error leaves the
// client in the room.
func (r *Rooms) Enter(ctx context.Context, name string, c *Client) (*Room, []StoredMessage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, invalidInput("missing room name")
	}

	var (
		rec    RoomRecord
		loaded bool
		target *Room
	)
	for {
		r.mu.Lock()
		room, ok := r.rooms[name]
		if !ok && loaded {
			room = newRoom(r.log, rec, r.limiter)
			r.rooms[name] = room
			r.metrics.roomOpened()
			r.log.Info("room.open", "room", name, "room_id", rec.ID)
			ok = true
		}
		if ok {
			r.moveLocked(c, room)
			target = room
		}
		r.mu.Unlock()

		if target != nil {
			break
		}

		var err error
		rec, err = r.load(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		loaded = true
	}

	history, err := r.store.FetchHistory(ctx, FetchHistoryInput{
		RoomName: name,
		Latest:   r.historyLimit,
	})
	if err != nil {
		return target, nil, err
	}
	return target, history, nil
}

// Leave removes c from its room, destroying the room when it empties.
func (r *Rooms) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detachLocked(c)
}

// Get returns the registered room, or nil.
func (r *Rooms) Get(name string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[name]
}

// Len returns the number of registered rooms.
func (r *Rooms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Names returns the registered room names, sorted.
func (r *Rooms) Names() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.rooms))
	for n := range r.rooms {
		out = append(out, n)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

func (r *Rooms) moveLocked(c *Client, to *Room) {
	if c.RoomName() == to.Name {
		return
	}
	r.detachLocked(c)
	to.addClient(c)
	c.setRoom(to.Name)
}

func (r *Rooms) detachLocked(c *Client) {
	prev := c.RoomName()
	if prev == "" {
		return
	}
	c.setRoom("")

	room := r.rooms[prev]
	if room == nil {
		return
	}
	if room.removeClient(c.ID()) == 0 {
		delete(r.rooms, prev)
		r.metrics.roomClosed()
		r.log.Info("room.close", "room", prev)
	}
}

// load resolves the durable room row; concurrent loads of one name share a query.
func (r *Rooms) load(ctx context.Context, name string) (RoomRecord, error) {
	v, err, _ := r.loads.Do(name, func() (any, error) {
		rec, created, err := r.store.EnsureRoom(context.WithoutCancel(ctx), name, r.now())
		if err != nil {
			return RoomRecord{}, err
		}
		if created {
			r.log.Info("room.create", "room", name, "room_id", rec.ID)
		}
		return rec, nil
	})
	if err != nil {
		r.log.Error("room.load.fail", "room", name, "err", err)
		return RoomRecord{}, err
	}
	return v.(RoomRecord), nil
}
