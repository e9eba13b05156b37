package gps

import (
	"math"
	"time"

	"gpstether/internal/fix"
)

// simSatellites is the constellation reported by the simulator.
var simSatellites = []int{2, 5, 12, 15, 20, 25, 29}

// SimConfig describes the simulated track.
type SimConfig struct {
	CenterLatDeg float64
	CenterLonDeg float64

	// AltM is the mean altitude; zero is sea level.
	AltM    float64
	RadiusM float64
	Period  time.Duration

	// Interval is the time between generated fixes.
	Interval time.Duration
}

// Fix returns the deterministic simulated fix at now: a figure-eight
// around the centre with a slow altitude oscillation.
func (s SimConfig) Fix(now time.Time) fix.Fix {
	period := s.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusM := s.RadiusM
	if radiusM <= 0 {
		radiusM = 500
	}

	// Roughly 111.2 km per degree of latitude.
	radiusDeg := radiusM / 111195.0

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())

	//	x = cos(2πt)     east-west
	//	y = 0.5*sin(4πt) north-south
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	lat := s.CenterLatDeg + radiusDeg*y
	lon := s.CenterLonDeg + (radiusDeg*x)/math.Cos(s.CenterLatDeg*math.Pi/180.0)

	vx := -math.Sin(w)
	vy := math.Cos(2 * w)
	track := math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	speed := radiusM * (2 * math.Pi / period.Seconds()) * math.Hypot(vx, vy)

	// Vertical period is decoupled from horizontal.
	vp := period / 2
	if vp < 30*time.Second {
		vp = 30 * time.Second
	}
	vphase := float64(now.UnixNano()%vp.Nanoseconds()) / float64(vp.Nanoseconds())
	alt := s.AltM + 50*math.Sin(2*math.Pi*vphase)

	return fix.Fix{
		LatDeg:     lat,
		LonDeg:     lon,
		AltM:       alt,
		SpeedMS:    speed,
		BearingDeg: track,
		HasBearing: true,
		Time:       now.UTC(),
		PDOP:       1.5,
		HDOP:       0.9,
		VDOP:       1.2,
		Provider:   "sim",
	}
}
