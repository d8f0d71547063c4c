// Package main provides a CI-friendly WebSocket smoke test for the roomchat server.
//
// It validates:
//   - handshake + subprotocol selection
//   - KEY_IV session key negotiation
//   - encrypted REGISTER
//   - ENTER_ROOM for two clients
//   - SINGLE_MESSAGE -> ack + MESSAGE fan-out to the other member
//   - FETCH_MESSAGES paging by after_id
//   - SINGLE_MESSAGE rejected for a client that is not logged in
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"roomchat/cmd/security/sessioncrypto"
	v1 "roomchat/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type frame map[string]any

func (f frame) str(k string) string {
	s, _ := f[k].(string)
	return s
}

func (f frame) boolean(k string) bool {
	b, _ := f[k].(bool)
	return b
}

func (f frame) int64(k string) int64 {
	n, _ := f[k].(float64)
	return int64(n)
}

type smokeClient struct {
	name    string
	conn    *websocket.Conn
	session *sessioncrypto.Session

	inbox chan frame
	errCh chan error
}

func main() {
	var (
		wsURL    = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		room     = flag.String("room", "smoke-room", "Room to enter")
		text     = flag.String("text", "hello roomchat 👋", "Message text to send")
		password = flag.String("password", "smoke-password-1", "Password for the generated account")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	name := "smoke" + suffix[len(suffix)-8:]
	mustRegister(root, a, name+"@example.invalid", name, *password, *timeout)

	if *verbose {
		fmt.Printf("registered: name=%s origin=%q\n", name, *origin)
	}

	mustEnterRoom(root, a, *room, *timeout)
	mustEnterRoom(root, b, *room, *timeout)

	mustSend(root, a, *text, true, *timeout)
	id := mustAssertMessage(root, b, name, *text, *timeout)
	_ = drainOptional(root, a, v1.TypeMessage, 750*time.Millisecond)

	mustFetchContains(root, b, id-1, id, name, *text, *timeout)
	mustFetchEmpty(root, b, id, *timeout)

	mustSend(root, b, "anonymous", false, *timeout)

	fmt.Printf("OK: room=%s user=%s message_id=%d\n", *room, name, id)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan frame, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWriteWithTimeout(parent, conn, frame{"type": v1.TypeKeyIV}, stepTimeout)
	reply := c.mustReadUntilType(parent, v1.TypeKeyIV, stepTimeout)

	sess, err := sessioncrypto.FromHex(reply.str("key"), reply.str("iv"))
	if err != nil {
		fatalf("KEY_IV reply unusable (%s): %v", name, err)
	}
	c.session = sess
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unexpected message type: %v", mt):
				default:
				}
				return
			}

			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if f.str("type") == "" {
				select {
				case c.errCh <- errors.New("frame without type"):
				default:
				}
				return
			}

			select {
			case c.inbox <- f:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) encrypt(plain string) string {
	out, err := c.session.EncryptHex(plain)
	if err != nil {
		fatalf("encrypt (%s): %v", c.name, err)
	}
	return out
}

func mustRegister(parent context.Context, c *smokeClient, email, name, password string, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, frame{
		"type":     v1.TypeRegister,
		"email":    c.encrypt(email),
		"name":     c.encrypt(name),
		"password": c.encrypt(password),
	}, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeRegister, stepTimeout)
	if !reply.boolean("accepted") {
		fatalf("register rejected (%s): %v", c.name, reply)
	}
	if reply.str("name") != name {
		fatalf("register name mismatch (%s): got=%q want=%q", c.name, reply.str("name"), name)
	}
}

func mustEnterRoom(parent context.Context, c *smokeClient, room string, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, frame{"type": v1.TypeEnterRoom, "name": room}, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeEnterRoom, stepTimeout)
	if !reply.boolean("accepted") {
		fatalf("enter room rejected (%s): %v", c.name, reply)
	}
	if reply.str("room") != room {
		fatalf("enter room mismatch (%s): got=%q want=%q", c.name, reply.str("room"), room)
	}
}

func mustSend(parent context.Context, c *smokeClient, text string, wantAccepted bool, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, frame{"type": v1.TypeSingleMessage, "text": text}, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeSingleMessage, stepTimeout)
	if got := reply.boolean("accepted"); got != wantAccepted {
		fatalf("send accepted mismatch (%s): got=%v want=%v", c.name, got, wantAccepted)
	}
}

func mustAssertMessage(parent context.Context, c *smokeClient, user, text string, stepTimeout time.Duration) int64 {
	m := c.mustReadUntilType(parent, v1.TypeMessage, stepTimeout)

	if m.str("user") != user {
		fatalf("message user mismatch (%s): got=%q want=%q", c.name, m.str("user"), user)
	}
	if m.str("text") != text {
		fatalf("message text mismatch (%s): got=%q want=%q", c.name, m.str("text"), text)
	}
	if m.int64("id") <= 0 {
		fatalf("message invalid id (%s): %v", c.name, m["id"])
	}
	if m.int64("time") <= 0 {
		fatalf("message missing time (%s)", c.name)
	}
	return m.int64("id")
}

func fetch(parent context.Context, c *smokeClient, afterID int64, stepTimeout time.Duration) []frame {
	mustWriteWithTimeout(parent, c.conn, frame{"type": v1.TypeFetchMessages, "after_id": afterID, "latest": 50}, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeFetchMessages, stepTimeout)
	if !reply.boolean("accepted") {
		fatalf("fetch rejected (%s): %v", c.name, reply)
	}
	raw, _ := reply["messages"].([]any)
	out := make([]frame, 0, len(raw))
	for _, r := range raw {
		m, _ := r.(map[string]any)
		out = append(out, frame(m))
	}
	return out
}

func mustFetchContains(parent context.Context, c *smokeClient, afterID, id int64, user, text string, stepTimeout time.Duration) {
	for _, m := range fetch(parent, c, afterID, stepTimeout) {
		if m.int64("id") == id && m.str("user") == user && m.str("text") == text {
			return
		}
	}
	fatalf("fetch missing expected message (%s): id=%d", c.name, id)
}

func mustFetchEmpty(parent context.Context, c *smokeClient, afterID int64, stepTimeout time.Duration) {
	if msgs := fetch(parent, c, afterID, stepTimeout); len(msgs) != 0 {
		fatalf("fetch after_id=%d expected empty (%s), got %d", afterID, c.name, len(msgs))
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, want v1.Type, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s (%s)", want, c.name)
		case err := <-c.errCh:
			fatalf("read error (%s): %v", c.name, err)
		case f, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %s (%s)", want, c.name)
			}
			if f.str("type") == string(want) {
				return f
			}
		}
	}
}

func drainOptional(parent context.Context, c *smokeClient, typ v1.Type, wait time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case f, ok := <-c.inbox:
			if !ok {
				return n
			}
			if f.str("type") == string(typ) {
				n++
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, f frame, timeout time.Duration) {
	b, err := json.Marshal(f)
	if err != nil {
		fatalf("marshal frame: %v", err)
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
