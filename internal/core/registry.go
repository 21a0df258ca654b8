package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/domain"
)

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID      domain.RoomID `json:"id"`
	Members int           `json:"members"`
	State   string        `json:"state"`
}

// Registry is the only component mapping room identifiers to rooms. Rooms
// are created lazily on first join and destroyed once empty, so a reused
// identifier always yields a fresh room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room

	tol Tolerances
	now func() time.Time

	// OnDrop is forwarded to every room it creates; set once at startup.
	OnDrop func(*Session)
}

func NewRegistry(tol Tolerances) *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]*Room),
		tol:   tol,
		now:   time.Now,
	}
}

// GetOrCreate returns the room for id, creating it if needed. Idempotent.
func (reg *Registry) GetOrCreate(id domain.RoomID) *Room {
	reg.mu.RLock()
	room, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return room
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok = reg.rooms[id]; ok {
		return room
	}
	room = NewRoom(&domain.Room{ID: id}, reg.tol, reg.now, reg.OnDrop)
	reg.rooms[id] = room
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
	return room
}

// Create registers a room with pre-set meta (password hash, tolerance
// override) under a fresh random identifier.
func (reg *Registry) Create(meta *domain.Room) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for {
		id := domain.NewRandomRoomID()
		if _, taken := reg.rooms[id]; taken {
			continue
		}
		meta.ID = id
		room := NewRoom(meta, reg.tol, reg.now, reg.OnDrop)
		reg.rooms[id] = room
		log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
		return room
	}
}

// Get returns the room for id without creating one.
func (reg *Registry) Get(id domain.RoomID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// RemoveIfEmpty destroys the room only if it has no members. Redundant
// calls are a no-op, not an error. A joiner racing this sees ErrRoomClosed
// from Join and retries against a fresh room.
func (reg *Registry) RemoveIfEmpty(id domain.RoomID) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[id]
	if !ok {
		return false
	}
	if !room.markClosedIfEmpty() {
		return false
	}
	delete(reg.rooms, id)
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room destroyed")
	return true
}

func (reg *Registry) List() []RoomInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]RoomInfo, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		state, _ := r.Snapshot()
		out = append(out, RoomInfo{ID: r.ID(), Members: r.MemberCount(), State: state.String()})
	}
	return out
}
