// Package protocol defines the JSON envelopes exchanged over a client's
// websocket. Every frame is an object with a "type" discriminator; payload
// fields sit flat beside it.
package protocol

import "encoding/json"

// Version is the protocol version this server speaks. A join carrying a
// different version is refused before any room state is touched.
const Version = 1

// Inbound message types.
const (
	TypeJoin   = "join"
	TypeReport = "report"
	TypeSeek   = "seek"
	TypeReady  = "ready"
	TypeLeave  = "leave"
	TypeChat   = "chat"
	TypePing   = "ping"
)

// Outbound message types.
const (
	TypeJoined     = "joined"
	TypeCorrection = "correction"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypeChatRelay  = "chat"
	TypeError      = "error"
	TypePong       = "pong"
)

// Error codes carried by Error frames.
const (
	CodeProtocol         = "protocol_error"
	CodeVersionMismatch  = "version_mismatch"
	CodeBadPassword      = "bad_password"
	CodePasswordRequired = "password_required"
	CodeInvalidName      = "invalid_name"
	CodeNotInRoom        = "not_in_room"
	CodeRateLimited      = "rate_limited"
)

// Envelope is the minimal decode used to route an inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type     string `json:"type"`
	Version  int    `json:"version"`
	Room     string `json:"room"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name"`
}

// Report is a client's periodic statement of where its local player is.
// Timestamp is the client's claim of when the sample was taken, unix
// milliseconds; Duration is the media length in seconds when the client
// knows it, 0 otherwise.
type Report struct {
	Type      string  `json:"type"`
	Position  float64 `json:"position"`
	Playing   bool    `json:"playing"`
	Timestamp int64   `json:"ts"`
	Duration  float64 `json:"duration,omitempty"`
}

type Seek struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
}

type Chat struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlaybackSnapshot mirrors domain.PlaybackState on the wire.
type PlaybackSnapshot struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

type MemberInfo struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type Joined struct {
	Type    string           `json:"type"`
	Room    string           `json:"room"`
	State   PlaybackSnapshot `json:"state"`
	Members []MemberInfo     `json:"members"`
}

// Correction tells one client to snap its player to the authoritative state.
type Correction struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

type PeerEvent struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type ChatRelay struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Color   string `json:"color,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Pong struct {
	Type string `json:"type"`
}

func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

func NewCorrection(position float64, playing bool) Correction {
	return Correction{Type: TypeCorrection, Position: position, Playing: playing}
}

// DecodeType peeks at a frame's discriminator without decoding the payload.
func DecodeType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
