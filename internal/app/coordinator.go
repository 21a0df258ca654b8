package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/core"
	"github.com/dkeye/syncplayserver/internal/domain"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

// Handshake is what a client presents before any session exists.
type Handshake struct {
	Version  int
	Room     string
	Password string
	Name     string
}

// JoinError is a refused handshake with a machine-readable wire code. The
// connection is closed before any session or room state is touched.
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join refused (%s): %s", e.Code, e.Message)
}

type sessionEntry struct {
	RoomID  domain.RoomID
	Session *core.Session
}

// Coordinator is the surface the connection layer talks to: connect,
// per-message operations, disconnect. It tracks live sessions and resolves
// a session's room through the registry by identifier, never by holding
// long-lived room references.
type Coordinator struct {
	Rooms  *core.Registry
	Policy Policy

	// PasswordRequired refuses joins into unlocked rooms without a password.
	PasswordRequired bool

	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
}

func NewCoordinator(rooms *core.Registry, policy Policy, passwordRequired bool) *Coordinator {
	c := &Coordinator{
		Rooms:            rooms,
		Policy:           policy,
		PasswordRequired: passwordRequired,
		sessions:         make(map[domain.SessionID]*sessionEntry),
	}
	rooms.OnDrop = c.onDrop
	return c
}

// Connect validates the handshake, joins the room (creating it lazily) and
// returns the bound session plus the join ack to send.
func (c *Coordinator) Connect(hs Handshake, conn core.SignalConnection) (*core.Session, protocol.Joined, error) {
	if hs.Version != protocol.Version {
		return nil, protocol.Joined{}, &JoinError{Code: protocol.CodeVersionMismatch,
			Message: fmt.Sprintf("server speaks protocol %d", protocol.Version)}
	}
	if err := domain.ValidateDisplayName(hs.Name); err != nil {
		return nil, protocol.Joined{}, &JoinError{Code: protocol.CodeInvalidName, Message: err.Error()}
	}
	if hs.Room == "" || len(hs.Room) > domain.MaxRoomIDLen {
		return nil, protocol.Joined{}, &JoinError{Code: protocol.CodeProtocol, Message: "invalid room identifier"}
	}
	roomID := domain.RoomID(hs.Room)

	// A room emptied by the registry between lookup and join surfaces as
	// ErrRoomClosed; retry against a fresh room under the same identifier.
	for attempt := 0; attempt < 3; attempt++ {
		_, existed := c.Rooms.Get(roomID)
		room := c.Rooms.GetOrCreate(roomID)
		err := room.Authenticate(hs.Password, c.PasswordRequired)
		if err != nil {
			// A refused join must not leave behind a room that this very
			// lookup lazily created. Pre-existing rooms stay.
			if !existed {
				c.Rooms.RemoveIfEmpty(roomID)
			}
			switch {
			case errors.Is(err, core.ErrRoomClosed):
				continue
			case errors.Is(err, core.ErrBadPassword):
				return nil, protocol.Joined{}, &JoinError{Code: protocol.CodeBadPassword, Message: "wrong room password"}
			case errors.Is(err, core.ErrPasswordRequired):
				return nil, protocol.Joined{}, &JoinError{Code: protocol.CodePasswordRequired, Message: "this server requires a room password"}
			default:
				return nil, protocol.Joined{}, err
			}
		}

		sess := core.NewSession(hs.Name, conn)
		ack, err := room.Join(sess)
		if errors.Is(err, core.ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, protocol.Joined{}, err
		}

		c.mu.Lock()
		c.sessions[sess.ID] = &sessionEntry{RoomID: roomID, Session: sess}
		c.mu.Unlock()
		log.Info().Str("module", "app.coordinator").Str("sid", string(sess.ID)).Str("room", hs.Room).Msg("session connected")
		return sess, ack, nil
	}
	return nil, protocol.Joined{}, errors.New("room kept closing during join")
}

// Disconnect runs the leave transition and destroys the room if it became
// empty. Safe to call twice for the same session.
func (c *Coordinator) Disconnect(s *core.Session) {
	c.mu.Lock()
	entry, ok := c.sessions[s.ID]
	delete(c.sessions, s.ID)
	c.mu.Unlock()
	if !ok {
		return
	}

	if room, found := c.Rooms.Get(entry.RoomID); found {
		if room.Leave(s.ID) == 0 {
			c.Rooms.RemoveIfEmpty(entry.RoomID)
		}
	}
	log.Info().Str("module", "app.coordinator").Str("sid", string(s.ID)).Msg("session disconnected")
}

func (c *Coordinator) Report(s *core.Session, pos float64, playing bool, duration float64, claimed time.Time) {
	if room, ok := c.roomOf(s.ID); ok {
		room.Report(s.ID, pos, playing, duration, claimed)
	}
}

func (c *Coordinator) Seek(s *core.Session, pos float64) {
	if room, ok := c.roomOf(s.ID); ok {
		room.Seek(s.ID, pos)
	}
}

func (c *Coordinator) Ready(s *core.Session) {
	if room, ok := c.roomOf(s.ID); ok {
		room.Ready(s.ID)
	}
}

func (c *Coordinator) Chat(s *core.Session, message string) {
	if room, ok := c.roomOf(s.ID); ok {
		room.Chat(s.ID, message)
	}
}

// CreateRoom registers a room under a fresh random identifier, optionally
// locked with a password and carrying a per-room drift tolerance.
func (c *Coordinator) CreateRoom(password string, driftTolerance time.Duration) (domain.RoomID, error) {
	meta := &domain.Room{DriftTolerance: driftTolerance}
	if c.PasswordRequired && password == "" {
		return "", &JoinError{Code: protocol.CodePasswordRequired, Message: "this server requires a room password"}
	}
	if password != "" {
		hash, err := core.HashPassword(password)
		if err != nil {
			return "", err
		}
		meta.PasswordHash = hash
	}
	room := c.Rooms.Create(meta)
	return room.ID(), nil
}

func (c *Coordinator) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Coordinator) roomOf(id domain.SessionID) (*core.Room, bool) {
	c.mu.RLock()
	entry, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.Rooms.Get(entry.RoomID)
}

// onDrop handles peers whose transport rejected a send.
func (c *Coordinator) onDrop(s *core.Session) {
	if c.Policy == nil {
		c.kick(s)
		return
	}
	room, _ := c.roomOf(s.ID)
	switch c.Policy.OnBackPressure(room, s) {
	case KickMember:
		c.kick(s)
	case NoAction:
	}
}

func (c *Coordinator) kick(s *core.Session) {
	log.Warn().Str("module", "app.coordinator").Str("sid", string(s.ID)).Msg("kicking unresponsive peer")
	c.Disconnect(s)
	s.Conn().Close()
}
