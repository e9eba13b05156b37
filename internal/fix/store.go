// Package fix holds the current position fix shared by every client session.
package fix

import (
	"fmt"
	"sync"
	"time"
)

// MaxSatellites is the number of satellite PRNs the store keeps.
const MaxSatellites = 20

// Fix is one position/velocity/time sample from the location source.
type Fix struct {
	LatDeg     float64 `json:"lat_deg"`
	LonDeg     float64 `json:"lon_deg"`
	AltM       float64 `json:"alt_m"`
	SpeedMS    float64 `json:"speed_ms"`
	BearingDeg float64 `json:"bearing_deg"`
	HasBearing bool    `json:"has_bearing"`

	Time time.Time `json:"time"`

	// Dilution of precision; zero when the source does not report it.
	PDOP float64 `json:"pdop,omitempty"`
	HDOP float64 `json:"hdop,omitempty"`
	VDOP float64 `json:"vdop,omitempty"`

	Provider string `json:"provider,omitempty"`
}

// TimestampMillis returns the fix time as epoch milliseconds.
func (f Fix) TimestampMillis() int64 {
	return f.Time.UnixMilli()
}

// String formats the fix as a single line for status notifications.
func (f Fix) String() string {
	return fmt.Sprintf("Location[%s %.6f,%.6f alt=%.1f vel=%.2f bear=%.1f et=%d]",
		f.Provider, f.LatDeg, f.LonDeg, f.AltM, f.SpeedMS, f.BearingDeg, f.TimestampMillis())
}

// Snapshot is an immutable copy of the store. Valid is false until the
// first fix arrives.
type Snapshot struct {
	Valid       bool    `json:"valid"`
	Fix         Fix     `json:"fix"`
	RateOfClimb float64 `json:"rate_of_climb"`
	Satellites  []int   `json:"satellites"`
	UpdateCount uint64  `json:"update_count"`
}

func (s Snapshot) SatelliteCount() int {
	return len(s.Satellites)
}

// Store is the lock-protected holder of the current fix. A fix and the
// values derived from it are published together under one lock.
type Store struct {
	mu sync.RWMutex

	cur     Fix
	valid   bool
	climb   float64
	sats    []int
	updates uint64

	// navGGA selects the tag returned by the next NextNavTag call.
	navGGA bool
}

func NewStore() *Store {
	return &Store{}
}

// Update replaces the current fix and recomputes derived state.
func (s *Store) Update(f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid {
		prev := s.cur
		if !f.HasBearing {
			f.BearingDeg = Bearing(prev.LatDeg, prev.LonDeg, f.LatDeg, f.LonDeg)
			f.HasBearing = true
		}
		// A zero time delta keeps the previous rate.
		if dt := f.TimestampMillis() - prev.TimestampMillis(); dt != 0 {
			s.climb = (prev.AltM - f.AltM) * 1000 / float64(dt)
		}
	}
	s.cur = f
	s.valid = true
	s.updates++
}

// SetSatellites replaces the list of satellite PRNs used in the fix.
func (s *Store) SetSatellites(prns []int) {
	n := len(prns)
	if n > MaxSatellites {
		n = MaxSatellites
	}
	cp := make([]int, n)
	copy(cp, prns[:n])

	s.mu.Lock()
	s.sats = cp
	s.mu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sats := make([]int, len(s.sats))
	copy(sats, s.sats)
	return Snapshot{
		Valid:       s.valid,
		Fix:         s.cur,
		RateOfClimb: s.climb,
		Satellites:  sats,
		UpdateCount: s.updates,
	}
}

// NextNavTag returns "RMC" and "GGA" alternately, starting with "RMC".
func (s *Store) NextNavTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := "RMC"
	if s.navGGA {
		tag = "GGA"
	}
	s.navGGA = !s.navGGA
	return tag
}
