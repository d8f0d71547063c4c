package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"roomchat/cmd/identity"
	"roomchat/cmd/internal/auth"
	"roomchat/cmd/security/sessioncrypto"
	v1 "roomchat/shared/contracts/chat/v1"
)

// Authenticator is the account boundary used by the router (satisfied by *auth.Service).
type Authenticator interface {
	CheckAvailable(ctx context.Context, field identity.Field, value string) (bool, error)
	Register(ctx context.Context, email, name, password string) (auth.Principal, error)
	Login(ctx context.Context, email, password string, wantToken bool) (auth.LoginResult, error)
	AutoLogin(ctx context.Context, email, token string) (auth.LoginResult, error)
	Logout(ctx context.Context, userID int64, token string) error
	VerifyEmail(ctx context.Context, userID int64, code string) error
	NewVerificationCode(ctx context.Context, userID int64) (*string, error)
}

// errMalformed marks a frame whose payload does not decode; such frames get no reply.
var errMalformed = errors.New("malformed payload")

type handlerFunc func(ctx context.Context, c *Client, raw []byte) error

// Router dispatches decoded client frames by type tag.
type Router struct {
	log     *slog.Logger
	conns   *Connections
	rooms   *Rooms
	store   MessageStore
	auth    Authenticator
	limiter *SendLimiter
	metrics *Metrics
	now     func() time.Time

	historyLimit int
	handlers     map[v1.Type]handlerFunc
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Connections  *Connections
	Rooms        *Rooms
	Store        MessageStore
	Auth         Authenticator
	Limiter      *SendLimiter
	Metrics      *Metrics
	HistoryLimit int
	Now          func() time.Time
}

// NewRouter constructs a Router with the full dispatch table.
func NewRouter(log *slog.Logger, cfg RouterConfig) (*Router, error) {
	switch {
	case cfg.Connections == nil:
		return nil, errors.New("realtime: nil connections")
	case cfg.Rooms == nil:
		return nil, errors.New("realtime: nil rooms")
	case cfg.Store == nil:
		return nil, errors.New("realtime: nil message store")
	case cfg.Auth == nil:
		return nil, errors.New("realtime: nil authenticator")
	case cfg.Limiter == nil:
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

	r := &Router{
		log:          log,
		conns:        cfg.Connections,
		rooms:        cfg.Rooms,
		store:        cfg.Store,
		auth:         cfg.Auth,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		historyLimit: cfg.HistoryLimit,
	}
	r.handlers = map[v1.Type]handlerFunc{
		v1.TypeSingleMessage:       r.onSingleMessage,
		v1.TypeCheckUsername:       r.onCheckUsername,
		v1.TypeCheckEmail:          r.onCheckEmail,
		v1.TypeKeyIV:               r.onKeyIV,
		v1.TypeRegister:            r.onRegister,
		v1.TypeLogin:               r.onLogin,
		v1.TypeAutoLogin:           r.onAutoLogin,
		v1.TypeLogout:              r.onLogout,
		v1.TypeEnterRoom:           r.onEnterRoom,
		v1.TypeFetchMessages:       r.onFetchMessages,
		v1.TypeVerifyEmail:         r.onVerifyEmail,
		v1.TypeNewVerificationCode: r.onNewVerificationCode,
	}
	return r, nil
}

// Handle processes one inbound frame from connection connID.
// Malformed frames, unknown types and unknown connections are dropped.
func (r *Router) Handle(ctx context.Context, connID string, data []byte) {
	typ, err := v1.DecodeHeader(data)
	if err != nil {
		r.log.Debug("router.drop", "conn_id", connID, "err", err)
		return
	}
	c, ok := r.conns.Get(connID)
	if !ok {
		r.log.Debug("router.drop", "conn_id", connID, "err", "unknown connection")
		return
	}
	h, ok := r.handlers[typ]
	if !ok {
		r.log.Debug("router.drop", "conn_id", connID, "type", typ)
		return
	}

	r.metrics.request(string(typ))

	if err := h(ctx, c, data); err != nil {
		if errors.Is(err, errMalformed) {
			r.log.Debug("router.drop", "conn_id", connID, "type", typ, "err", err)
			return
		}
		r.log.Info("router.reply.fail", "conn_id", connID, "type", typ, "err", err)
	}
}

// ---- handlers ----

func (r *Router) onSingleMessage(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.SingleMessageRequest](raw)
	if err != nil {
		return err
	}
	reject := v1.AcceptedResponse{Type: v1.TypeSingleMessage, Accepted: false}

	if !c.LoggedIn() {
		return r.reply(ctx, c, reject)
	}
	room := r.rooms.Get(c.RoomName())
	if room == nil {
		return r.reply(ctx, c, reject)
	}

	text := strings.TrimSpace(req.Text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageChars {
		return r.reply(ctx, c, reject)
	}

	stored, err := r.store.AppendMessage(ctx, AppendMessageInput{
		User:     c.Name(),
		Text:     text,
		RoomName: room.Name,
		Now:      r.now(),
	})
	if err != nil {
		r.log.Error("message.append.fail", "conn_id", c.ID(), "room", room.Name, "err", err)
		return r.reply(ctx, c, reject)
	}

	r.metrics.message()
	room.BroadcastMessage(ctx, stored)

	return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeSingleMessage, Accepted: true})
}

func (r *Router) onCheckUsername(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.CheckUsernameRequest](raw)
	if err != nil {
		return err
	}
	return r.reply(ctx, c, v1.AvailabilityResponse{
		Type:      v1.TypeCheckUsername,
		Available: r.available(ctx, identity.FieldName, req.Name),
	})
}

func (r *Router) onCheckEmail(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.CheckEmailRequest](raw)
	if err != nil {
		return err
	}
	return r.reply(ctx, c, v1.AvailabilityResponse{
		Type:      v1.TypeCheckEmail,
		Available: r.available(ctx, identity.FieldEmail, req.Email),
	})
}

func (r *Router) available(ctx context.Context, field identity.Field, value string) bool {
	ok, err := r.auth.CheckAvailable(ctx, field, value)
	if err != nil {
		r.logAuthErr("auth.check_available.fail", err)
		return false
	}
	return ok
}

func (r *Router) onKeyIV(ctx context.Context, c *Client, _ []byte) error {
	sess, err := sessioncrypto.New()
	if err != nil {
		r.log.Error("session.key.fail", "conn_id", c.ID(), "err", err)
		return err
	}
	c.negotiate(sess)

	return r.reply(ctx, c, v1.KeyIVResponse{
		Type: v1.TypeKeyIV,
		Key:  sess.KeyHex(),
		IV:   sess.IVHex(),
	})
}

func (r *Router) onRegister(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.RegisterRequest](raw)
	if err != nil {
		return err
	}

	fields, err := decryptFields(c.Cipher(), req.Email, req.Name, req.Password)
	if err != nil {
		r.log.Debug("auth.register.decrypt_fail", "conn_id", c.ID(), "err", err)
		return r.reply(ctx, c, v1.RegisterResponse{Type: v1.TypeRegister, Accepted: false})
	}
	email, name, password := fields[0], fields[1], fields[2]

	p, err := r.auth.Register(ctx, email, name, password)
	if err != nil {
		r.logAuthErr("auth.register.fail", err)
		return r.reply(ctx, c, v1.RegisterResponse{Type: v1.TypeRegister, Accepted: false, Name: identity.NormalizeName(name)})
	}

	c.authenticate(p.UserID, p.Name)
	return r.reply(ctx, c, v1.RegisterResponse{Type: v1.TypeRegister, Accepted: true, Name: p.Name})
}

func (r *Router) onLogin(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.LoginRequest](raw)
	if err != nil {
		return err
	}
	reject := v1.LoginResponse{Type: v1.TypeLogin, Accepted: false}

	cipher := c.Cipher()
	fields, err := decryptFields(cipher, req.Email, req.Password)
	if err != nil {
		r.log.Debug("auth.login.decrypt_fail", "conn_id", c.ID(), "err", err)
		return r.reply(ctx, c, reject)
	}

	res, err := r.auth.Login(ctx, fields[0], fields[1], req.Remember)
	if err != nil {
		r.logAuthErr("auth.login.fail", err)
		return r.reply(ctx, c, reject)
	}
	return r.acceptLogin(ctx, c, cipher, v1.TypeLogin, res)
}

func (r *Router) onAutoLogin(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.AutoLoginRequest](raw)
	if err != nil {
		return err
	}
	reject := v1.LoginResponse{Type: v1.TypeAutoLogin, Accepted: false}

	cipher := c.Cipher()
	fields, err := decryptFields(cipher, req.Email)
	if err != nil {
		r.log.Debug("auth.autologin.decrypt_fail", "conn_id", c.ID(), "err", err)
		return r.reply(ctx, c, reject)
	}

	// A token that does not decrypt cannot match; it still counts as a
	// mismatch against the named account.
	tok, err := cipher.DecryptHex(req.Token)
	if err != nil {
		r.log.Debug("auth.autologin.token_decrypt_fail", "conn_id", c.ID(), "err", err)
		tok = ""
	}

	res, err := r.auth.AutoLogin(ctx, fields[0], tok)
	if err != nil {
		r.logAuthErr("auth.autologin.fail", err)
		return r.reply(ctx, c, reject)
	}
	return r.acceptLogin(ctx, c, cipher, v1.TypeAutoLogin, res)
}

func (r *Router) acceptLogin(ctx context.Context, c *Client, cipher *sessioncrypto.Session, typ v1.Type, res auth.LoginResult) error {
	out := v1.LoginResponse{
		Type:                 typ,
		Accepted:             true,
		Name:                 res.Name,
		RequiresVerification: res.RequiresVerification,
	}
	if res.Token != "" {
		enc, err := cipher.EncryptHex(res.Token)
		if err != nil {
			r.log.Error("auth.token.encrypt_fail", "conn_id", c.ID(), "err", err)
			return r.reply(ctx, c, v1.LoginResponse{Type: typ, Accepted: false})
		}
		out.Token = enc
	}

	c.authenticate(res.UserID, res.Name)
	return r.reply(ctx, c, out)
}

func (r *Router) onLogout(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.LogoutRequest](raw)
	if err != nil {
		return err
	}
	if !c.LoggedIn() {
		return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeLogout, Accepted: false})
	}

	if req.Token != "" {
		fields, err := decryptFields(c.Cipher(), req.Token)
		if err == nil {
			err = r.auth.Logout(ctx, c.UserID(), fields[0])
		}
		if err != nil {
			r.logAuthErr("auth.logout.fail", err)
		}
	}

	c.deauthenticate()
	return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeLogout, Accepted: true})
}

func (r *Router) onEnterRoom(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.EnterRoomRequest](raw)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)

	_, history, err := r.rooms.Enter(ctx, name, c)
	if err != nil {
		if !errors.Is(err, ErrInvalidInput) {
			r.log.Error("room.enter.fail", "conn_id", c.ID(), "room", name, "err", err)
		}
		return r.reply(ctx, c, v1.HistoryResponse{
			Type:     v1.TypeEnterRoom,
			Room:     name,
			Accepted: false,
			Messages: []v1.Message{},
		})
	}

	return r.reply(ctx, c, v1.HistoryResponse{
		Type:     v1.TypeEnterRoom,
		Room:     name,
		Accepted: true,
		Messages: wireMessages(history),
	})
}

func (r *Router) onFetchMessages(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.FetchMessagesRequest](raw)
	if err != nil {
		return err
	}
	room := c.RoomName()
	if room == "" {
		return r.reply(ctx, c, v1.HistoryResponse{Type: v1.TypeFetchMessages, Accepted: false, Messages: []v1.Message{}})
	}

	latest := req.Latest
	if latest <= 0 || latest > r.historyLimit {
		latest = r.historyLimit
	}

	history, err := r.store.FetchHistory(ctx, FetchHistoryInput{
		RoomName: room,
		AfterID:  req.AfterID,
		Latest:   latest,
	})
	if err != nil {
		r.log.Error("room.history.fail", "conn_id", c.ID(), "room", room, "err", err)
		return r.reply(ctx, c, v1.HistoryResponse{Type: v1.TypeFetchMessages, Room: room, Accepted: false, Messages: []v1.Message{}})
	}

	return r.reply(ctx, c, v1.HistoryResponse{
		Type:     v1.TypeFetchMessages,
		Room:     room,
		Accepted: true,
		Messages: wireMessages(history),
	})
}

func (r *Router) onVerifyEmail(ctx context.Context, c *Client, raw []byte) error {
	req, err := decode[v1.VerifyEmailRequest](raw)
	if err != nil {
		return err
	}
	if !c.LoggedIn() {
		return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeVerifyEmail, Accepted: false})
	}

	err = r.auth.VerifyEmail(ctx, c.UserID(), req.Code)
	if err != nil {
		r.logAuthErr("auth.verify_email.fail", err)
	}
	return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeVerifyEmail, Accepted: err == nil})
}

func (r *Router) onNewVerificationCode(ctx context.Context, c *Client, _ []byte) error {
	if !c.LoggedIn() {
		return r.reply(ctx, c, v1.AcceptedResponse{Type: v1.TypeNewVerificationCode, Accepted: false})
	}

	code, err := r.auth.NewVerificationCode(ctx, c.UserID())
	if err != nil {
		r.logAuthErr("auth.verification.renew_fail", err)
	}
	return r.reply(ctx, c, v1.AcceptedResponse{
		Type:     v1.TypeNewVerificationCode,
		Accepted: err == nil && code != nil,
	})
}

// ---- helpers ----

func (r *Router) reply(ctx context.Context, c *Client, msg any) error {
	return r.limiter.Do(ctx, func(ctx context.Context) error {
		return c.Send(ctx, msg)
	})
}

// logAuthErr logs storage/internal failures loudly and client rejections quietly.
func (r *Router) logAuthErr(event string, err error) {
	if auth.IsRejection(err) {
		r.log.Debug(event, "err", err)
		return
	}
	r.log.Error(event, "err", err)
}

func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Join(errMalformed, err)
	}
	return v, nil
}

// decryptFields decrypts hex ciphertext fields in order with the client's session cipher.
func decryptFields(cipher *sessioncrypto.Session, fields ...string) ([]string, error) {
	if cipher == nil {
		return nil, ErrNoSessionKey
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		p, err := cipher.DecryptHex(f)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
