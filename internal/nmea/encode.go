// Package nmea renders fix snapshots as NMEA-0183 sentences.
//
// Every generator returns a complete sentence including the leading '$',
// the checksum and the CRLF terminator, or "" when the snapshot holds no fix.
package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gpstether/internal/fix"
)

const (
	// MPSToKMH converts meters per second to kilometers per hour.
	MPSToKMH = 3.6

	// MPSToKnots converts meters per second to knots.
	MPSToKnots = 1.9438444924406

	crlf = "\r\n"

	// gsaSlots is the number of PRN fields in a GSA sentence.
	gsaSlots = 12
)

// Checksum returns the XOR of every byte between the leading '$' and the
// first '*' as two uppercase hex digits. Both delimiters are optional.
func Checksum(s string) string {
	s = strings.TrimPrefix(s, "$")
	if i := strings.IndexByte(s, '*'); i >= 0 {
		s = s[:i]
	}
	var ck byte
	for i := 0; i < len(s); i++ {
		ck ^= s[i]
	}
	return fmt.Sprintf("%02X", ck)
}

func sentence(fields ...string) string {
	body := strings.Join(fields, ",")
	return "$" + body + "*" + Checksum(body) + crlf
}

// LatitudeFields splits a latitude into zero-padded integer degrees, decimal
// minutes to four places and the hemisphere letter.
func LatitudeFields(lat float64) (deg, min, hemi string) {
	return coordFields(lat, 2, "N", "S")
}

// LongitudeFields is LatitudeFields for longitudes (three degree digits).
func LongitudeFields(lon float64) (deg, min, hemi string) {
	return coordFields(lon, 3, "E", "W")
}

func coordFields(v float64, width int, pos, neg string) (string, string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	d := int(v)
	m := (v - float64(d)) * 60
	// minutes that round to 60.0000 carry into the degrees
	if math.Round(m*1e4) >= 60*1e4 {
		d++
		m = 0
	}
	return fmt.Sprintf("%0*d", width, d), fmt.Sprintf("%07.4f", m), hemi
}

func latLon(f fix.Fix) []string {
	latD, latM, ns := LatitudeFields(f.LatDeg)
	lonD, lonM, ew := LongitudeFields(f.LonDeg)
	return []string{latD + latM, ns, lonD + lonM, ew}
}

// TimeField formats t in UTC as HHMMSS.ss.
func TimeField(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond))
}

// DateField formats t in UTC as DDMMYY.
func DateField(t time.Time) string {
	return t.UTC().Format("020106")
}

// FixType maps a satellite count to the GSA fix-type digit. Exactly three
// satellites yields "0".
func FixType(sats int) string {
	switch {
	case sats > 0 && sats <= 2:
		return "2"
	case sats > 3:
		return "3"
	default:
		return "0"
	}
}

// GGA returns the fix data sentence. The HDOP field is left empty.
func GGA(s fix.Snapshot) string {
	if !s.Valid {
		return ""
	}
	f := s.Fix
	fields := []string{"GPGGA", TimeField(f.Time)}
	fields = append(fields, latLon(f)...)
	fields = append(fields,
		"1",
		fmt.Sprintf("%02d", s.SatelliteCount()),
		"",
		strconv.FormatFloat(f.AltM, 'f', 1, 64),
		"M",
		"",
		"M",
		"",
		"",
	)
	return sentence(fields...)
}

// GLL returns the geographic position sentence.
func GLL(s fix.Snapshot) string {
	if !s.Valid {
		return ""
	}
	fields := []string{"GPGLL"}
	fields = append(fields, latLon(s.Fix)...)
	fields = append(fields, TimeField(s.Fix.Time), "A")
	return sentence(fields...)
}

// RMC returns the recommended minimum sentence. Speed is reported in km/h
// and the track made good is left empty.
func RMC(s fix.Snapshot) string {
	if !s.Valid {
		return ""
	}
	f := s.Fix
	fields := []string{"GPRMC", TimeField(f.Time), "A"}
	fields = append(fields, latLon(f)...)
	fields = append(fields,
		strconv.FormatFloat(f.SpeedMS*MPSToKMH, 'f', 1, 64),
		"",
		DateField(f.Time),
		"",
		"",
	)
	return sentence(fields...)
}

// GSA returns the DOP and active satellites sentence.
func GSA(s fix.Snapshot) string {
	if !s.Valid {
		return ""
	}
	fields := []string{"GPGSA", "A", FixType(s.SatelliteCount())}
	for i := 0; i < gsaSlots; i++ {
		if i < len(s.Satellites) {
			fields = append(fields, strconv.Itoa(s.Satellites[i]))
		} else {
			fields = append(fields, "")
		}
	}
	f := s.Fix
	fields = append(fields,
		strconv.FormatFloat(f.PDOP, 'f', 1, 64),
		strconv.FormatFloat(f.HDOP, 'f', 1, 64),
		strconv.FormatFloat(f.VDOP, 'f', 1, 64),
	)
	return sentence(fields...)
}

// Raw returns GSA, GGA, GLL and RMC concatenated.
func Raw(s fix.Snapshot) string {
	return GSA(s) + GGA(s) + GLL(s) + RMC(s)
}
