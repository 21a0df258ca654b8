package domain

import (
	"crypto/rand"
	"time"
)

type RoomID string

const (
	MaxRoomIDLen = 36
	RoomIDLen    = 6

	roomIDCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// NewRandomRoomID returns a short shareable room identifier.
func NewRandomRoomID() RoomID {
	buf := make([]byte, RoomIDLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = roomIDCharset[int(b)%len(roomIDCharset)]
	}
	return RoomID(buf)
}

// RoomState is the lifecycle state of a room's playback state machine.
type RoomState int

const (
	StateEmpty RoomState = iota
	StateSyncing
	StatePlaying
	StatePaused
)

func (s RoomState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSyncing:
		return "syncing"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlaybackState is the authoritative playback position of a room.
// While Playing, the effective position advances with wall-clock time
// from UpdatedAt; Position is the value at UpdatedAt, not "now".
type PlaybackState struct {
	Position  float64   `json:"position"`
	Playing   bool      `json:"playing"`
	UpdatedAt time.Time `json:"-"`
}

// Room is room meta-data only; membership and the state machine live in core.
type Room struct {
	ID           RoomID
	PasswordHash []byte
	// DriftTolerance overrides the server-wide tolerance when > 0.
	DriftTolerance time.Duration
}
