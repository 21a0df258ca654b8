package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/syncplayserver/internal/domain"
)

func TestRegistry_GetOrCreateIdempotent(t *testing.T) {
	reg := NewRegistry(slowTolerances())

	a := reg.GetOrCreate("movie-night")
	b := reg.GetOrCreate("movie-night")

	assert.Same(t, a, b)
	assert.Len(t, reg.List(), 1)
}

func TestRegistry_RemoveIfEmptyIdempotent(t *testing.T) {
	reg := NewRegistry(slowTolerances())
	reg.GetOrCreate("r1")

	assert.True(t, reg.RemoveIfEmpty("r1"))
	// Second and third invocations are no-ops, not errors.
	assert.False(t, reg.RemoveIfEmpty("r1"))
	assert.False(t, reg.RemoveIfEmpty("r1"))
	assert.False(t, reg.RemoveIfEmpty("never-existed"))
}

func TestRegistry_RemoveIfEmptyKeepsOccupiedRoom(t *testing.T) {
	reg := NewRegistry(slowTolerances())
	room := reg.GetOrCreate("r1")
	s := NewSession("alice", &mockConn{})
	_, err := room.Join(s)
	require.NoError(t, err)

	assert.False(t, reg.RemoveIfEmpty("r1"))
	assert.Len(t, reg.List(), 1)
}

func TestRegistry_ReusedIdentifierYieldsFreshRoom(t *testing.T) {
	reg := NewRegistry(slowTolerances())
	room := reg.GetOrCreate("r1")
	s := NewSession("alice", &mockConn{})
	_, err := room.Join(s)
	require.NoError(t, err)
	room.Report(s.ID, 1000, true, 0, reg.now())

	require.Equal(t, 0, room.Leave(s.ID))
	require.True(t, reg.RemoveIfEmpty("r1"))

	fresh := reg.GetOrCreate("r1")
	assert.NotSame(t, room, fresh)
	state, auth := fresh.Snapshot()
	assert.Equal(t, domain.StateEmpty, state)
	assert.Equal(t, 0.0, auth.Position)
}

func TestRegistry_ClosedRoomRefusesJoin(t *testing.T) {
	reg := NewRegistry(slowTolerances())
	room := reg.GetOrCreate("r1")
	require.True(t, reg.RemoveIfEmpty("r1"))

	_, err := room.Join(NewSession("late", &mockConn{}))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRegistry_CreateAssignsRandomID(t *testing.T) {
	reg := NewRegistry(slowTolerances())

	a := reg.Create(&domain.Room{})
	b := reg.Create(&domain.Room{})

	assert.Len(t, string(a.ID()), domain.RoomIDLen)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Len(t, reg.List(), 2)
}
