package app

import "github.com/dkeye/syncplayserver/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a peer whose connection cannot absorb
// outbound traffic.
type Policy interface {
	OnBackPressure(room *core.Room, member *core.Session) BackpressureAction
}

// SimplePolicy drops the slow peer: a member that cannot receive
// corrections is already desynchronized and only degrades the room.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room *core.Room, member *core.Session) BackpressureAction {
	return KickMember
}
