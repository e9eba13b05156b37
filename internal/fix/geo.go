package fix

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// Bearing returns the initial great-circle bearing from the first point to
// the second in degrees, normalised to [0,360).
func Bearing(fromLat, fromLon, toLat, toLon float64) float64 {
	b := geo.NewPoint(fromLat, fromLon).BearingTo(geo.NewPoint(toLat, toLon))
	b = math.Mod(b+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// DistanceM returns the great-circle distance between two points in meters.
func DistanceM(fromLat, fromLon, toLat, toLon float64) float64 {
	km := geo.NewPoint(fromLat, fromLon).GreatCircleDistance(geo.NewPoint(toLat, toLon))
	return km * 1000
}
