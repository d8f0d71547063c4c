package realtime

import (
	"context"
	"sync"

	"roomchat/cmd/security/sessioncrypto"
)

// Conn is the transport side of a client: an identity plus a way to push one
// JSON-encodable frame. Implementations must be safe for concurrent Send.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg any) error
}

// Phase is the session lifecycle stage of a client.
type Phase uint8

const (
	// PhaseConnected: transport open, no session key.
	PhaseConnected Phase = iota
	// PhaseKeyed: KEY_IV done; credentials can be decrypted.
	PhaseKeyed
	// PhaseAuthenticated: logged in as a user.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseKeyed:
		return "keyed"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Client is one connected session.
//
// roomName is written only by Rooms while holding the registry lock.
// Everything else is written by the connection's own request goroutine.
type Client struct {
	conn Conn

	mu       sync.RWMutex
	name     string
	userID   int64
	loggedIn bool
	roomName string
	cipher   *sessioncrypto.Session
}

func newClient(conn Conn) *Client {
	return &Client{conn: conn, name: PlaceholderName}
}

// ID returns the transport identity.
func (c *Client) ID() string { return c.conn.ID() }

// Send pushes one frame to the client.
func (c *Client) Send(ctx context.Context, msg any) error {
	return c.conn.Send(ctx, msg)
}

// Name returns the display name (PlaceholderName until login).
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// UserID returns the authenticated user id, or 0.
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// LoggedIn reports whether the client is authenticated.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

// RoomName returns the current room, or "".
func (c *Client) RoomName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomName
}

// Cipher returns the negotiated session cipher, or nil before KEY_IV.
func (c *Client) Cipher() *sessioncrypto.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cipher
}

// Phase derives the lifecycle stage.
func (c *Client) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.loggedIn:
		return PhaseAuthenticated
	case c.cipher != nil:
		return PhaseKeyed
	default:
		return PhaseConnected
	}
}

func (c *Client) negotiate(s *sessioncrypto.Session) {
	c.mu.Lock()
	c.cipher = s
	c.mu.Unlock()
}

func (c *Client) authenticate(userID int64, name string) {
	c.mu.Lock()
	c.userID = userID
	c.name = name
	c.loggedIn = true
	c.mu.Unlock()
}

func (c *Client) deauthenticate() {
	c.mu.Lock()
	c.userID = 0
	c.name = PlaceholderName
	c.loggedIn = false
	c.mu.Unlock()
}

func (c *Client) setRoom(name string) {
	c.mu.Lock()
	c.roomName = name
	c.mu.Unlock()
}
