package gps

import (
	"math"
	"strconv"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gpstether/internal/fix"
)

const knotsPerMPS = 1.9438444924406

// update is what a source contributes after one message. Nil members are
// unchanged.
type update struct {
	fix  *fix.Fix
	prns []int
}

type nmeaState struct {
	altM  float64
	altOK bool

	pdop float64
	hdop float64
	vdop float64
}

func (s *nmeaState) apply(nowUTC time.Time, sent gonmea.Sentence) update {
	switch m := sent.(type) {
	case gonmea.RMC:
		return s.applyRMC(nowUTC, m)
	case gonmea.GGA:
		s.applyGGA(m)
	case gonmea.GSA:
		return s.applyGSA(m)
	}
	return update{}
}

// RMC closes a fix: position, speed and course come from it, altitude
// from the latest GGA.
func (s *nmeaState) applyRMC(nowUTC time.Time, m gonmea.RMC) update {
	if m.Validity != gonmea.ValidRMC {
		return update{}
	}

	f := fix.Fix{
		LatDeg:   m.Latitude,
		LonDeg:   m.Longitude,
		SpeedMS:  m.Speed / knotsPerMPS,
		Time:     nmeaTime(nowUTC, m.Date, m.Time),
		PDOP:     s.pdop,
		HDOP:     s.hdop,
		VDOP:     s.vdop,
		Provider: "nmea",
	}
	// An empty course field means the receiver has no track.
	if len(m.Fields) > 7 && strings.TrimSpace(m.Fields[7]) != "" {
		f.BearingDeg = math.Mod(m.Course+360.0, 360.0)
		f.HasBearing = true
	}
	if s.altOK {
		f.AltM = s.altM
	}
	return update{fix: &f}
}

func (s *nmeaState) applyGGA(m gonmea.GGA) {
	if m.FixQuality == gonmea.Invalid {
		return
	}
	s.altM = m.Altitude
	s.altOK = true
	if m.HDOP > 0 {
		s.hdop = m.HDOP
	}
}

func (s *nmeaState) applyGSA(m gonmea.GSA) update {
	s.pdop = m.PDOP
	s.hdop = m.HDOP
	s.vdop = m.VDOP

	prns := make([]int, 0, len(m.SV))
	for _, sv := range m.SV {
		if n, err := strconv.Atoi(strings.TrimSpace(sv)); err == nil {
			prns = append(prns, n)
		}
	}
	return update{prns: prns}
}

func nmeaTime(nowUTC time.Time, d gonmea.Date, t gonmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return nowUTC
	}
	year := 2000 + d.YY
	if year > nowUTC.Year()+1 {
		year -= 100
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
