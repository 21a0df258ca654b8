package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionReport_FirstSampleSeedsLatency(t *testing.T) {
	s := NewSession("alice", &mockConn{})
	arrival := time.Now()

	s.Report(12.5, true, arrival.Add(-400*time.Millisecond), arrival, 0.125)

	assert.Equal(t, 12.5, s.Position)
	assert.True(t, s.Playing)
	assert.Equal(t, 400*time.Millisecond, s.Latency)
	assert.Equal(t, arrival, s.ReportedAt)
}

func TestSessionReport_LatencyIsRollingAverage(t *testing.T) {
	s := NewSession("alice", &mockConn{})
	arrival := time.Now()

	s.Report(1, true, arrival.Add(-400*time.Millisecond), arrival, 0.125)
	// Second sample of zero pulls the estimate down by one alpha step.
	s.Report(2, true, arrival.Add(time.Second), arrival.Add(time.Second), 0.125)

	assert.InDelta(t, float64(350*time.Millisecond), float64(s.Latency), float64(time.Millisecond))
}

func TestSessionReport_BogusEpochClampedToCap(t *testing.T) {
	s := NewSession("alice", &mockConn{})
	arrival := time.Now()

	// Client sends ts 0; the apparent delay of half a century must not
	// seed the estimate.
	s.Report(1, false, time.UnixMilli(0), arrival, 0.125)

	assert.Equal(t, maxLatencySample, s.Latency)
}

func TestSessionReport_ClockSkewClampedToZero(t *testing.T) {
	s := NewSession("alice", &mockConn{})
	arrival := time.Now()

	// Client claims a timestamp from the future.
	s.Report(1, false, arrival.Add(5*time.Second), arrival, 0.125)

	assert.Equal(t, time.Duration(0), s.Latency)
}
