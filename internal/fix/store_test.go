package fix

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)

func TestStoreEmptySnapshot(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	require.False(t, snap.Valid)
	require.Equal(t, 0, snap.SatelliteCount())
	require.Equal(t, uint64(0), snap.UpdateCount)
}

func TestStoreRateOfClimb(t *testing.T) {
	s := NewStore()
	s.Update(Fix{LatDeg: 10, LonDeg: 20, AltM: 100, Time: t0})
	require.Equal(t, 0.0, s.Snapshot().RateOfClimb)

	s.Update(Fix{LatDeg: 10, LonDeg: 20, AltM: 90, Time: t0.Add(2 * time.Second)})
	require.InDelta(t, 5.0, s.Snapshot().RateOfClimb, 1e-9)

	// same timestamp: previous value is retained
	s.Update(Fix{LatDeg: 10, LonDeg: 20, AltM: 50, Time: t0.Add(2 * time.Second)})
	snap := s.Snapshot()
	require.InDelta(t, 5.0, snap.RateOfClimb, 1e-9)
	require.Equal(t, 50.0, snap.Fix.AltM)
	require.Equal(t, uint64(3), snap.UpdateCount)
}

func TestStoreComputesBearing(t *testing.T) {
	for _, ca := range []struct {
		name   string
		toLat  float64
		toLon  float64
		expect float64
	}{
		{"north", 1, 0, 0},
		{"east", 0, 1, 90},
		{"south", -1, 0, 180},
		{"west", 0, -1, 270},
	} {
		t.Run(ca.name, func(t *testing.T) {
			s := NewStore()
			s.Update(Fix{Time: t0})
			s.Update(Fix{LatDeg: ca.toLat, LonDeg: ca.toLon, Time: t0.Add(time.Second)})
			snap := s.Snapshot()
			require.True(t, snap.Fix.HasBearing)
			require.InDelta(t, ca.expect, snap.Fix.BearingDeg, 1e-6)
		})
	}
}

func TestStoreKeepsProvidedBearing(t *testing.T) {
	s := NewStore()
	s.Update(Fix{Time: t0})
	s.Update(Fix{LatDeg: 1, BearingDeg: 42, HasBearing: true, Time: t0.Add(time.Second)})
	require.Equal(t, 42.0, s.Snapshot().Fix.BearingDeg)
}

func TestStoreSatellitesCappedAndCopied(t *testing.T) {
	s := NewStore()
	prns := make([]int, 25)
	for i := range prns {
		prns[i] = i + 1
	}
	s.SetSatellites(prns)
	prns[0] = 99

	snap := s.Snapshot()
	require.Equal(t, MaxSatellites, snap.SatelliteCount())
	require.Equal(t, 1, snap.Satellites[0])

	snap.Satellites[1] = 77
	require.Equal(t, 2, s.Snapshot().Satellites[1])
}

func TestStoreNavTagAlternates(t *testing.T) {
	s := NewStore()
	require.Equal(t, "RMC", s.NextNavTag())
	require.Equal(t, "GGA", s.NextNavTag())
	require.Equal(t, "RMC", s.NextNavTag())
}

func TestStoreConcurrentSnapshot(t *testing.T) {
	s := NewStore()
	s.Update(Fix{AltM: 0, Time: t0})

	done := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan string, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Snapshot()
				alt := snap.Fix.AltM
				ms := snap.Fix.TimestampMillis() - t0.UnixMilli()
				if alt != float64(ms) {
					errs <- "mismatched altitude and timestamp"
					return
				}
			}
		}()
	}

	for i := 1; i <= 5000; i++ {
		s.Update(Fix{AltM: float64(i), Time: t0.Add(time.Duration(i) * time.Millisecond)})
	}
	close(done)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Fatal(e)
	}
}

func TestDistanceM(t *testing.T) {
	// one degree of latitude is about 111 km
	d := DistanceM(0, 0, 1, 0)
	require.InDelta(t, 111195, d, 500)
}

func TestFixString(t *testing.T) {
	f := Fix{LatDeg: 1.5, LonDeg: -2.25, AltM: 10, SpeedMS: 3, BearingDeg: 90, Time: time.UnixMilli(1500), Provider: "sim"}
	require.Equal(t, "Location[sim 1.500000,-2.250000 alt=10.0 vel=3.00 bear=90.0 et=1500]", f.String())
}
