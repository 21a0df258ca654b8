package core

import (
	"time"

	"github.com/dkeye/syncplayserver/internal/domain"
)

// Session is one authenticated client inside a room: the playback metadata
// the reconciliation engine works from. All mutable fields are guarded by
// the owning room's mutex; the connection itself stays adapter-owned.
type Session struct {
	ID     domain.SessionID
	Name   string
	RoomID domain.RoomID

	conn SignalConnection

	Position   float64
	Playing    bool
	ReportedAt time.Time
	Latency    time.Duration
	Ready      bool
}

func NewSession(name string, conn SignalConnection) *Session {
	return &Session{
		ID:   domain.NewSessionID(),
		Name: name,
		conn: conn,
	}
}

// maxLatencySample bounds one observed delay. Client clocks are not
// trusted; a bogus epoch in a report must not dominate the average.
const maxLatencySample = 5 * time.Second

// Report records a client state report and folds the observed one-way delay
// (arrival minus the client-claimed sample time) into a rolling latency
// estimate. Samples from skewed or bogus client clocks are clamped into
// [0, maxLatencySample] rather than poisoning the average.
func (s *Session) Report(position float64, playing bool, claimed, arrival time.Time, alpha float64) {
	s.Position = position
	s.Playing = playing

	sample := arrival.Sub(claimed)
	if sample < 0 {
		sample = 0
	}
	if sample > maxLatencySample {
		sample = maxLatencySample
	}
	if s.ReportedAt.IsZero() {
		s.Latency = sample
	} else {
		s.Latency = time.Duration(alpha*float64(sample) + (1-alpha)*float64(s.Latency))
	}
	s.ReportedAt = arrival
}

// Conn exposes the transport for the room's send path.
func (s *Session) Conn() SignalConnection { return s.conn }
