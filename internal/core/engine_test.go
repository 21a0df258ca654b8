package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/syncplayserver/internal/domain"
)

func TestClampPosition(t *testing.T) {
	tests := []struct {
		name     string
		pos      float64
		duration float64
		want     float64
	}{
		{name: "in range", pos: 10, duration: 100, want: 10},
		{name: "negative clamped to zero", pos: -5, duration: 100, want: 0},
		{name: "past duration clamped", pos: 150, duration: 100, want: 100},
		{name: "unknown duration only floors", pos: 1e9, duration: 0, want: 1e9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampPosition(tt.pos, tt.duration))
		})
	}
}

func TestValidPosition(t *testing.T) {
	assert.True(t, ValidPosition(0))
	assert.True(t, ValidPosition(-3))
	assert.False(t, ValidPosition(math.NaN()))
	assert.False(t, ValidPosition(math.Inf(1)))
	assert.False(t, ValidPosition(math.Inf(-1)))
}

func TestExtrapolate(t *testing.T) {
	t0 := time.Now()

	playing := domain.PlaybackState{Position: 100, Playing: true, UpdatedAt: t0}
	assert.InDelta(t, 102.5, Extrapolate(playing, t0.Add(2500*time.Millisecond)), 1e-9)

	paused := domain.PlaybackState{Position: 100, Playing: false, UpdatedAt: t0}
	assert.Equal(t, 100.0, Extrapolate(paused, t0.Add(time.Minute)))

	// A clock reading from before the last update never moves backwards.
	assert.Equal(t, 100.0, Extrapolate(playing, t0.Add(-time.Second)))
}

func TestDriftCorrections_LatencyCompensated(t *testing.T) {
	t0 := time.Now()
	auth := domain.PlaybackState{Position: 100, Playing: true, UpdatedAt: t0}

	views := []ReportView{
		{ID: "x", Position: 102.0, Playing: true, Latency: 50 * time.Millisecond, ReportedAt: t0.Add(2 * time.Second), Ready: true},
		{ID: "y", Position: 100.3, Playing: true, Latency: 500 * time.Millisecond, ReportedAt: t0.Add(2400 * time.Millisecond), Ready: true},
	}

	out := DriftCorrections(auth, views, t0.Add(2400*time.Millisecond), 500*time.Millisecond)
	require.Len(t, out, 1)
	assert.Equal(t, domain.SessionID("y"), out[0].Target)
	assert.InDelta(t, 102.4, out[0].Position, 1e-6)
	assert.True(t, out[0].Playing)
}

func TestDriftCorrections_WithinToleranceSilent(t *testing.T) {
	t0 := time.Now()
	auth := domain.PlaybackState{Position: 50, Playing: true, UpdatedAt: t0}

	views := []ReportView{
		{ID: "a", Position: 51.9, Playing: true, ReportedAt: t0.Add(2 * time.Second)},
		{ID: "b", Position: 52.1, Playing: true, ReportedAt: t0.Add(2 * time.Second)},
	}

	assert.Empty(t, DriftCorrections(auth, views, t0.Add(2*time.Second), 500*time.Millisecond))
}

func TestDriftCorrections_PausedAuthorityIsSilent(t *testing.T) {
	t0 := time.Now()
	auth := domain.PlaybackState{Position: 50, Playing: false, UpdatedAt: t0}
	views := []ReportView{
		{ID: "a", Position: 10, Playing: true, ReportedAt: t0},
	}
	assert.Empty(t, DriftCorrections(auth, views, t0.Add(time.Minute), 500*time.Millisecond))
}

func TestDriftCorrections_SkipsUnreported(t *testing.T) {
	t0 := time.Now()
	auth := domain.PlaybackState{Position: 50, Playing: true, UpdatedAt: t0}
	views := []ReportView{{ID: "fresh"}}
	assert.Empty(t, DriftCorrections(auth, views, t0.Add(time.Minute), 500*time.Millisecond))
}

func TestAllReady(t *testing.T) {
	assert.True(t, AllReady(nil))
	assert.True(t, AllReady([]ReportView{{Ready: true}, {Ready: true}}))
	assert.False(t, AllReady([]ReportView{{Ready: true}, {Ready: false}}))
}
