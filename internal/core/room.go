package core

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/syncplayserver/internal/domain"
	"github.com/dkeye/syncplayserver/internal/protocol"
)

// ErrRoomClosed is returned by Join when the registry has already torn the
// room down; the caller should fetch a fresh room and retry.
var ErrRoomClosed = errors.New("room closed")

// System chat notice colors, matching what clients render for join/leave.
const (
	colorJoined = "#00FF00"
	colorLeft   = "#FF0000"
)

// Room owns a set of sessions and the authoritative playback state. Every
// mutating operation takes r.mu, so reconciliation is serialized per room
// while distinct rooms proceed in parallel. Sends are non-blocking TrySend
// calls; peers that cannot keep up are handed to onDrop for removal.
type Room struct {
	mu   sync.Mutex
	meta *domain.Room
	tol  Tolerances
	now  func() time.Time

	// onDrop is invoked outside the room lock, once per dead peer.
	onDrop func(*Session)

	state    domain.RoomState
	auth     domain.PlaybackState
	duration float64

	sessions map[domain.SessionID]*Session

	// seeded turns true once the authority holds member-derived state; until
	// then a sole member's first report is adopted wholesale, even if the
	// join handshake already timed out.
	seeded bool

	pendingResume bool
	resumeGen     int
	settleGen     int

	closed bool
}

func NewRoom(meta *domain.Room, tol Tolerances, now func() time.Time, onDrop func(*Session)) *Room {
	if meta.DriftTolerance > 0 {
		tol.DriftTolerance = meta.DriftTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Room{
		meta:     meta,
		tol:      tol,
		now:      now,
		onDrop:   onDrop,
		state:    domain.StateEmpty,
		sessions: make(map[domain.SessionID]*Session),
	}
}

func (r *Room) ID() domain.RoomID { return r.meta.ID }

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the state machine position and authoritative state.
func (r *Room) Snapshot() (domain.RoomState, domain.PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.auth
}

// Join adds a session and returns the ack payload for it. The first member
// starts a bounded ready handshake; later members are handed the current
// authoritative state immediately.
func (r *Room) Join(s *Session) (protocol.Joined, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return protocol.Joined{}, ErrRoomClosed
	}
	now := r.now()
	var dropped []*Session

	if len(r.sessions) == 0 {
		r.auth = domain.PlaybackState{Position: 0, Playing: false, UpdatedAt: now}
		r.state = domain.StateSyncing
		r.seeded = false
		r.scheduleSettleLocked()
	} else {
		r.seeded = true
		pos := Extrapolate(r.auth, now)
		if !r.trySend(s, protocol.NewCorrection(pos, r.auth.Playing)) {
			dropped = append(dropped, s)
		}
	}

	s.RoomID = r.meta.ID
	s.Ready = false
	r.sessions[s.ID] = s

	dropped = append(dropped, r.broadcastLocked(s.ID, protocol.PeerEvent{Type: protocol.TypePeerJoined, Name: s.Name})...)
	dropped = append(dropped, r.broadcastLocked(s.ID, protocol.ChatRelay{
		Type: protocol.TypeChatRelay, Name: s.Name, Message: s.Name + " joined", Color: colorJoined,
	})...)

	ack := protocol.Joined{
		Type:    protocol.TypeJoined,
		Room:    string(r.meta.ID),
		State:   protocol.PlaybackSnapshot{Position: Extrapolate(r.auth, now), Playing: r.auth.Playing},
		Members: r.membersLocked(),
	}
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(s.ID)).Str("name", s.Name).Msg("member joined")
	r.mu.Unlock()

	r.flushDropped(dropped)
	return ack, nil
}

// Leave removes a session and returns the remaining member count. Removing
// the last member parks the room in Empty; the registry destroys it. A
// departing member cannot hold back an in-flight handshake.
func (r *Room) Leave(id domain.SessionID) int {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		n := len(r.sessions)
		r.mu.Unlock()
		return n
	}
	delete(r.sessions, id)
	s.RoomID = ""

	if len(r.sessions) == 0 {
		r.state = domain.StateEmpty
		r.pendingResume = false
		r.resumeGen++
		r.settleGen++
		log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("room empty")
		r.mu.Unlock()
		return 0
	}

	dropped := r.broadcastLocked(id, protocol.PeerEvent{Type: protocol.TypePeerLeft, Name: s.Name})
	dropped = append(dropped, r.broadcastLocked(id, protocol.ChatRelay{
		Type: protocol.TypeChatRelay, Name: s.Name, Message: s.Name + " left", Color: colorLeft,
	})...)

	if r.state == domain.StateSyncing && AllReady(r.viewsLocked()) {
		dropped = append(dropped, r.concludeSyncLocked(false)...)
	} else if r.pendingResume && AllReady(r.viewsLocked()) {
		dropped = append(dropped, r.resumeLocked(r.now())...)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.flushDropped(dropped)
	return n
}

// Report records a session's state report and reconciles the room against
// it: pause requests win immediately, play requests go through the resume
// quorum, and while playing every member is judged for drift.
func (r *Room) Report(id domain.SessionID, pos float64, playing bool, duration float64, claimed time.Time) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := r.now()

	if !ValidPosition(pos) || (duration != 0 && !ValidPosition(duration)) {
		log.Error().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(id)).
			Float64("position", pos).Msg("discarding report with invalid position")
		r.mu.Unlock()
		return
	}
	if duration > r.duration {
		r.duration = duration
	}
	pos = ClampPosition(pos, r.duration)

	s.Report(pos, playing, claimed, now, r.tol.LatencyAlpha)
	if r.state != domain.StateSyncing {
		// A reporting player is evidently operational; readiness during a
		// sync handshake still requires an explicit ready ack.
		s.Ready = true
	}

	var dropped []*Session

	if !r.seeded && len(r.sessions) == 1 {
		// Sole member bootstraps the authoritative state with its own,
		// also when the report arrived after the join handshake settled.
		r.auth = domain.PlaybackState{Position: pos, Playing: playing, UpdatedAt: now}
		r.seeded = true
		s.Ready = true
		dropped = r.concludeSyncLocked(false)
		r.mu.Unlock()
		r.flushDropped(dropped)
		return
	}

	// Play/pause arbitration is suspended during a sync handshake: members
	// pause locally while buffering toward the seek target, and honoring
	// that would cancel the handshake they are part of.
	if r.state != domain.StateSyncing {
		switch {
		case !playing && r.auth.Playing:
			dropped = r.pauseLocked(s, pos, now)
		case playing && !r.auth.Playing:
			dropped = r.requestResumeLocked(now)
		}
		// The report may have been the last readiness the quorum waited on.
		if r.pendingResume && AllReady(r.viewsLocked()) {
			dropped = append(dropped, r.resumeLocked(now)...)
		}
	}

	if r.state == domain.StatePlaying {
		r.advanceLocked(now)
		dropped = append(dropped, r.driftLocked(now)...)
	}
	r.mu.Unlock()

	r.flushDropped(dropped)
}

// Seek forcibly sets the authoritative position to the requester's value
// and puts every member through a bounded ready handshake. Concurrent
// seeks resolve by receipt order: the last processed wins and earlier
// requesters receive a correction to the winning position.
func (r *Room) Seek(id domain.SessionID, pos float64) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if !ValidPosition(pos) {
		log.Error().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(id)).
			Float64("position", pos).Msg("discarding seek with invalid position")
		r.mu.Unlock()
		return
	}
	now := r.now()
	pos = ClampPosition(pos, r.duration)

	r.auth.Position = pos
	r.auth.UpdatedAt = now
	r.state = domain.StateSyncing
	r.seeded = true
	for _, m := range r.sessions {
		m.Ready = false
	}
	r.scheduleSettleLocked()

	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(id)).
		Float64("position", pos).Msg("seek")
	dropped := r.broadcastLocked(s.ID, protocol.NewCorrection(pos, r.auth.Playing))
	r.mu.Unlock()

	r.flushDropped(dropped)
}

// Ready acknowledges a sync handshake. When the last member acks, the room
// returns to Playing or Paused; a pending resume completes the same way.
func (r *Room) Ready(id domain.SessionID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.Ready = true

	var dropped []*Session
	if r.state == domain.StateSyncing && AllReady(r.viewsLocked()) {
		dropped = r.concludeSyncLocked(false)
	} else if r.pendingResume && AllReady(r.viewsLocked()) {
		dropped = r.resumeLocked(r.now())
	}
	r.mu.Unlock()

	r.flushDropped(dropped)
}

// Chat relays a member's message to the whole room.
func (r *Room) Chat(id domain.SessionID, message string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	dropped := r.broadcastLocked("", protocol.ChatRelay{Type: protocol.TypeChatRelay, Name: s.Name, Message: message})
	r.mu.Unlock()

	r.flushDropped(dropped)
}

// markClosedIfEmpty flips the room into its terminal state iff no members
// remain. Called by the registry under its own lock; safe to call twice.
func (r *Room) markClosedIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) > 0 {
		return false
	}
	r.closed = true
	return true
}

// pause wins immediately over play, without quorum: continuing while one
// viewer has stalled breaks the synchronization guarantee.
func (r *Room) pauseLocked(requester *Session, pos float64, now time.Time) []*Session {
	r.auth = domain.PlaybackState{Position: pos, Playing: false, UpdatedAt: now}
	r.state = domain.StatePaused
	r.pendingResume = false
	r.resumeGen++
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(requester.ID)).
		Float64("position", pos).Msg("paused")
	return r.broadcastLocked(requester.ID, protocol.NewCorrection(pos, false))
}

// requestResumeLocked starts (or joins) the resume quorum. Resume happens
// right away when every member is ready; otherwise a grace timer lets
// laggards catch up before the room proceeds without them.
func (r *Room) requestResumeLocked(now time.Time) []*Session {
	if r.pendingResume {
		return nil
	}
	if AllReady(r.viewsLocked()) {
		return r.resumeLocked(now)
	}
	r.pendingResume = true
	r.resumeGen++
	gen := r.resumeGen
	time.AfterFunc(r.tol.ResumeGrace, func() { r.fireResumeGrace(gen) })
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("resume pending on laggards")
	return nil
}

func (r *Room) resumeLocked(now time.Time) []*Session {
	r.pendingResume = false
	r.resumeGen++
	r.auth.Playing = true
	r.auth.UpdatedAt = now
	r.state = domain.StatePlaying
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).
		Float64("position", r.auth.Position).Msg("playing")
	return r.broadcastLocked("", protocol.NewCorrection(r.auth.Position, true))
}

// fireResumeGrace runs once per resume handshake: the generation check
// makes a stale timer a no-op even if reports arrived during the wait.
func (r *Room) fireResumeGrace(gen int) {
	r.mu.Lock()
	if gen != r.resumeGen || !r.pendingResume {
		r.mu.Unlock()
		return
	}
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("resume grace elapsed, proceeding")
	dropped := r.resumeLocked(r.now())
	r.mu.Unlock()

	r.flushDropped(dropped)
}

func (r *Room) scheduleSettleLocked() {
	r.settleGen++
	gen := r.settleGen
	time.AfterFunc(r.tol.SeekSettle, func() { r.fireSeekSettle(gen) })
}

// fireSeekSettle ends a sync handshake that ran out its bounded wait: the
// room proceeds and members that never acked get a catch-up correction.
func (r *Room) fireSeekSettle(gen int) {
	r.mu.Lock()
	if gen != r.settleGen || r.state != domain.StateSyncing {
		r.mu.Unlock()
		return
	}
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("sync settle elapsed, proceeding")
	dropped := r.concludeSyncLocked(true)
	r.mu.Unlock()

	r.flushDropped(dropped)
}

func (r *Room) concludeSyncLocked(catchup bool) []*Session {
	now := r.now()
	r.settleGen++
	if r.auth.Playing {
		r.auth.UpdatedAt = now
		r.state = domain.StatePlaying
	} else {
		r.state = domain.StatePaused
	}

	var dropped []*Session
	if catchup {
		pos := Extrapolate(r.auth, now)
		for _, m := range r.sessions {
			if m.Ready {
				continue
			}
			if !r.trySend(m, protocol.NewCorrection(pos, r.auth.Playing)) {
				dropped = append(dropped, m)
			}
		}
	}
	return dropped
}

// advanceLocked normalizes the authoritative position to now so that the
// monotonic-advance invariant holds across updates. The position never
// passes the longest reported media duration.
func (r *Room) advanceLocked(now time.Time) {
	pos := Extrapolate(r.auth, now)
	if r.duration > 0 && pos > r.duration {
		pos = r.duration
	}
	r.auth.Position = pos
	r.auth.UpdatedAt = now
}

func (r *Room) driftLocked(now time.Time) []*Session {
	var dropped []*Session
	for _, c := range DriftCorrections(r.auth, r.viewsLocked(), now, r.tol.DriftTolerance) {
		s, ok := r.sessions[c.Target]
		if !ok {
			continue
		}
		log.Debug().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(c.Target)).
			Float64("position", c.Position).Msg("drift correction")
		if !r.trySend(s, protocol.NewCorrection(c.Position, c.Playing)) {
			dropped = append(dropped, s)
		}
	}
	return dropped
}

func (r *Room) viewsLocked() []ReportView {
	out := make([]ReportView, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, ReportView{
			ID:         s.ID,
			Position:   s.Position,
			Playing:    s.Playing,
			Latency:    s.Latency,
			ReportedAt: s.ReportedAt,
			Ready:      s.Ready,
		})
	}
	return out
}

func (r *Room) membersLocked() []protocol.MemberInfo {
	out := make([]protocol.MemberInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, protocol.MemberInfo{Name: s.Name, Ready: s.Ready})
	}
	return out
}

func (r *Room) broadcastLocked(exclude domain.SessionID, v any) []*Session {
	var dropped []*Session
	for id, s := range r.sessions {
		if id == exclude {
			continue
		}
		if !r.trySend(s, v) {
			dropped = append(dropped, s)
		}
	}
	return dropped
}

func (r *Room) trySend(s *Session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("marshal outbound")
		return true
	}
	if err := s.Conn().TrySend(b); err != nil {
		log.Warn().Str("module", "core.room").Str("sid", string(s.ID)).Err(err).Msg("send failed, dropping peer")
		return false
	}
	return true
}

// flushDropped hands dead peers to the coordinator outside the room lock,
// so a disconnect never delays reconciliation for the rest of the room.
func (r *Room) flushDropped(dropped []*Session) {
	if r.onDrop == nil {
		return
	}
	for _, s := range dropped {
		go r.onDrop(s)
	}
}
