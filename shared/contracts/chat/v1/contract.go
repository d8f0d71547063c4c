// Package v1 defines the roomchat wire protocol v1.
//
// Every frame is a JSON object carrying a "type" tag. Credential fields are
// hex ciphertext under the connection key/IV negotiated with KEY_IV.
// The package is shared between server and clients and has no dependencies.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "roomchat.v1"

// Type is the request/response tag.
type Type string

// Request types (client -> server). Replies echo the request type.
const (
	TypeSingleMessage       Type = "SINGLE_MESSAGE"
	TypeCheckUsername       Type = "CHECK_USERNAME"
	TypeCheckEmail          Type = "CHECK_EMAIL"
	TypeKeyIV               Type = "KEY_IV"
	TypeRegister            Type = "REGISTER"
	TypeLogin               Type = "LOGIN"
	TypeAutoLogin           Type = "AUTO_LOGIN"
	TypeLogout              Type = "LOGOUT"
	TypeEnterRoom           Type = "ENTER_ROOM"
	TypeFetchMessages       Type = "FETCH_MESSAGES"
	TypeVerifyEmail         Type = "VERIFY_EMAIL"
	TypeNewVerificationCode Type = "NEW_VERIFICATION_CODE"
)

// TypeMessage is the room broadcast (server -> room members).
const TypeMessage Type = "MESSAGE"

// RequestTypes lists every type a client may send.
var RequestTypes = []Type{
	TypeSingleMessage,
	TypeCheckUsername,
	TypeCheckEmail,
	TypeKeyIV,
	TypeRegister,
	TypeLogin,
	TypeAutoLogin,
	TypeLogout,
	TypeEnterRoom,
	TypeFetchMessages,
	TypeVerifyEmail,
	TypeNewVerificationCode,
}

// ParseType validates a raw tag against RequestTypes.
func ParseType(raw string) (Type, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing field: type")
	}
	for _, t := range RequestTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown type: %q", raw)
}

// Header is the part of every frame needed for dispatch.
type Header struct {
	Type string `json:"type"`
}

// DecodeHeader extracts and validates the type tag of a raw frame.
func DecodeHeader(data []byte) (Type, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("invalid json: %w", err)
	}
	return ParseType(h.Type)
}

// ---- Requests ----

// SingleMessageRequest posts text into the sender's current room.
type SingleMessageRequest struct {
	Text string `json:"text"`
}

// CheckUsernameRequest probes whether a display name is free.
type CheckUsernameRequest struct {
	Name string `json:"name"`
}

// CheckEmailRequest probes whether an email is free.
type CheckEmailRequest struct {
	Email string `json:"email"`
}

// RegisterRequest fields are hex ciphertext.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest fields are hex ciphertext. Remember asks for an auto-login token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

// AutoLoginRequest fields are hex ciphertext.
type AutoLoginRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// LogoutRequest optionally revokes the auto-login token held by the client (hex ciphertext).
type LogoutRequest struct {
	Token string `json:"token,omitempty"`
}

// EnterRoomRequest joins (and lazily creates) a room.
type EnterRoomRequest struct {
	Name string `json:"name"`
}

// FetchMessagesRequest pages history of the current room.
// Messages with id > AfterID are returned, at most Latest of the newest ones.
type FetchMessagesRequest struct {
	AfterID int64 `json:"after_id,omitempty"`
	Latest  int   `json:"latest,omitempty"`
}

// VerifyEmailRequest carries the code mailed at registration.
type VerifyEmailRequest struct {
	Code string `json:"code"`
}

// ---- Responses ----

// Message is one chat message. Time is unix milliseconds.
type Message struct {
	ID   int64  `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
	Time int64  `json:"time"`
}

// MessageBroadcast is fanned out to every room member.
type MessageBroadcast struct {
	Type Type `json:"type"`
	Message
}

// AcceptedResponse answers SINGLE_MESSAGE, LOGOUT, VERIFY_EMAIL and NEW_VERIFICATION_CODE.
type AcceptedResponse struct {
	Type     Type `json:"type"`
	Accepted bool `json:"accepted"`
}

// AvailabilityResponse answers CHECK_USERNAME and CHECK_EMAIL.
type AvailabilityResponse struct {
	Type      Type `json:"type"`
	Available bool `json:"available"`
}

// KeyIVResponse carries the hex session key and IV.
type KeyIVResponse struct {
	Type Type   `json:"type"`
	Key  string `json:"key"`
	IV   string `json:"iv"`
}

// RegisterResponse answers REGISTER.
type RegisterResponse struct {
	Type     Type   `json:"type"`
	Accepted bool   `json:"accepted"`
	Name     string `json:"name,omitempty"`
}

// LoginResponse answers LOGIN and AUTO_LOGIN. Token is hex ciphertext.
type LoginResponse struct {
	Type                 Type   `json:"type"`
	Accepted             bool   `json:"accepted"`
	Name                 string `json:"name,omitempty"`
	Token                string `json:"token,omitempty"`
	RequiresVerification bool   `json:"requires_verification,omitempty"`
}

// HistoryResponse answers ENTER_ROOM and FETCH_MESSAGES. Messages are ordered by id.
type HistoryResponse struct {
	Type     Type      `json:"type"`
	Room     string    `json:"room"`
	Accepted bool      `json:"accepted"`
	Messages []Message `json:"messages"`
}
