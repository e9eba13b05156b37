package gps

import (
	"time"

	"gpstether/internal/fix"
)

const (
	defaultMinInterval  = 200 * time.Millisecond
	defaultMinDistanceM = 1.0
)

// throttle drops fixes that arrive too soon after, and too close to, the
// last accepted one. Elapsed time is measured between fix times.
type throttle struct {
	minInterval  time.Duration
	minDistanceM float64

	last fix.Fix
	has  bool
}

func (t *throttle) accept(f fix.Fix) bool {
	if t.has &&
		f.Time.Sub(t.last.Time) < t.minInterval &&
		fix.DistanceM(t.last.LatDeg, t.last.LonDeg, f.LatDeg, f.LonDeg) < t.minDistanceM {
		return false
	}
	t.last = f
	t.has = true
	return true
}
