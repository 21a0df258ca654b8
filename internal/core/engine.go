package core

import (
	"math"
	"time"

	"github.com/dkeye/syncplayserver/internal/domain"
)

// Tolerances bundles the reconciliation knobs. Zero values are invalid;
// config supplies the defaults.
type Tolerances struct {
	DriftTolerance time.Duration
	ResumeGrace    time.Duration
	SeekSettle     time.Duration
	LatencyAlpha   float64
}

// ReportView is the engine's read-only snapshot of one session.
type ReportView struct {
	ID         domain.SessionID
	Position   float64
	Playing    bool
	Latency    time.Duration
	ReportedAt time.Time
	Ready      bool
}

// Correction is a targeted command to snap one session to the
// authoritative state.
type Correction struct {
	Target   domain.SessionID
	Position float64
	Playing  bool
}

// ValidPosition rejects values that must never reach the authoritative
// state, even after clamping.
func ValidPosition(pos float64) bool {
	return !math.IsNaN(pos) && !math.IsInf(pos, 0)
}

// ClampPosition forces pos into [0, duration]. A duration of 0 means the
// media length is unknown and only the lower bound applies. Out-of-range
// input is clamped, never rejected: rejecting would silently desynchronize
// the clamped member from the room.
func ClampPosition(pos, duration float64) float64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}

// Extrapolate returns the authoritative position at now. While playing the
// position advances with wall clock from the last update; paused state is
// static.
func Extrapolate(st domain.PlaybackState, now time.Time) float64 {
	if !st.Playing {
		return st.Position
	}
	elapsed := now.Sub(st.UpdatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return st.Position + elapsed.Seconds()
}

// DriftCorrections judges every reported session against the extrapolated
// authoritative position and returns targeted corrections for the ones out
// of tolerance. The comparison is latency-compensated: a playing session's
// report is aged by its own one-way latency estimate plus the time since
// arrival, so a report that is merely old by network delay is not mistaken
// for drift. Sessions within tolerance get nothing.
func DriftCorrections(auth domain.PlaybackState, views []ReportView, now time.Time, tolerance time.Duration) []Correction {
	if !auth.Playing {
		return nil
	}
	expected := Extrapolate(auth, now)

	var out []Correction
	for _, v := range views {
		if v.ReportedAt.IsZero() {
			continue
		}
		believed := v.Position
		if v.Playing {
			believed += v.Latency.Seconds()
			if age := now.Sub(v.ReportedAt); age > 0 {
				believed += age.Seconds()
			}
		}
		if math.Abs(expected-believed) > tolerance.Seconds() {
			out = append(out, Correction{Target: v.ID, Position: expected, Playing: true})
		}
	}
	return out
}

// AllReady reports whether every view has acknowledged readiness. An empty
// set counts as ready so a departing laggard cannot hold a room back.
func AllReady(views []ReportView) bool {
	for _, v := range views {
		if !v.Ready {
			return false
		}
	}
	return true
}
