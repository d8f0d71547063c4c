package realtime

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateConnection is returned by Open when the transport id is already registered.
var ErrDuplicateConnection = errors.New("connection already registered")

// Connections maps transport identities to clients.
type Connections struct {
	log     *slog.Logger
	rooms   *Rooms
	metrics *Metrics

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewConnections constructs an empty registry bound to rooms.
func NewConnections(log *slog.Logger, rooms *Rooms, m *Metrics) *Connections {
	if log == nil {
		log = slog.Default()
	}
	return &Connections{
		log:     log,
		rooms:   rooms,
		metrics: m,
		clients: make(map[string]*Client),
	}
}

// Open registers a new, unauthenticated client for conn.
func (cs *Connections) Open(conn Conn) (*Client, error) {
	c := newClient(conn)

	cs.mu.Lock()
	if _, ok := cs.clients[c.ID()]; ok {
		cs.mu.Unlock()
		return nil, ErrDuplicateConnection
	}
	cs.clients[c.ID()] = c
	cs.mu.Unlock()

	cs.metrics.connectionOpened()
	cs.log.Info("conn.open", "conn_id", c.ID())
	return c, nil
}

// Get looks up a client by transport id.
func (cs *Connections) Get(id string) (*Client, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.clients[id]
	return c, ok
}

// Close removes the client from its room (maybe destroying it) and then from
// the registry. Unknown ids are ignored.
func (cs *Connections) Close(id string) {
	c, ok := cs.Get(id)
	if !ok {
		return
	}

	cs.rooms.Leave(c)

	cs.mu.Lock()
	_, still := cs.clients[id]
	delete(cs.clients, id)
	cs.mu.Unlock()
	if !still {
		return
	}

	cs.metrics.connectionClosed()
	cs.log.Info("conn.close", "conn_id", id, "name", c.Name())
}

// Len returns the number of open connections.
func (cs *Connections) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}
