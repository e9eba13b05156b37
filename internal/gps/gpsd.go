package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"gpstether/internal/fix"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch asks the upstream daemon for TPV and SKY reports in SI units.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

type gpsdSat struct {
	PRN  int  `json:"PRN"`
	Used bool `json:"used"`
}

type gpsdSKY struct {
	Class      string    `json:"class"`
	PDOP       *float64  `json:"pdop"`
	HDOP       *float64  `json:"hdop"`
	VDOP       *float64  `json:"vdop"`
	Satellites []gpsdSat `json:"satellites"`
}

type gpsdState struct {
	altM  float64
	altOK bool

	pdop float64
	hdop float64
	vdop float64
}

func (s *gpsdState) applyLine(nowUTC time.Time, line string) (update, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return update{}, fmt.Errorf("gpsd json parse failed: %v", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return update{}, fmt.Errorf("gpsd tpv parse failed: %v", err)
		}
		return s.applyTPV(nowUTC, tpv), nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return update{}, fmt.Errorf("gpsd sky parse failed: %v", err)
		}
		return s.applySKY(sky), nil
	default:
		// other classes carry nothing we store
		return update{}, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) update {
	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		s.altM = *altM
		s.altOK = true
	}

	// A fix needs mode 2 or 3 and a position.
	if tpv.Mode == nil || *tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return update{}
	}

	f := fix.Fix{
		LatDeg:   *tpv.Lat,
		LonDeg:   *tpv.Lon,
		Time:     nowUTC,
		PDOP:     s.pdop,
		HDOP:     s.hdop,
		VDOP:     s.vdop,
		Provider: "gpsd",
	}
	if strings.TrimSpace(tpv.Time) != "" {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			f.Time = t.UTC()
		}
	}
	if s.altOK {
		f.AltM = s.altM
	}
	if tpv.SpeedMS != nil {
		f.SpeedMS = *tpv.SpeedMS
	}
	if tpv.Track != nil {
		f.BearingDeg = math.Mod(*tpv.Track+360.0, 360.0)
		f.HasBearing = true
	}
	return update{fix: &f}
}

func (s *gpsdState) applySKY(sky gpsdSKY) update {
	if sky.PDOP != nil {
		s.pdop = *sky.PDOP
	}
	if sky.HDOP != nil {
		s.hdop = *sky.HDOP
	}
	if sky.VDOP != nil {
		s.vdop = *sky.VDOP
	}
	if len(sky.Satellites) == 0 {
		return update{}
	}
	prns := make([]int, 0, len(sky.Satellites))
	for _, sat := range sky.Satellites {
		if sat.Used {
			prns = append(prns, sat.PRN)
		}
	}
	return update{prns: prns}
}
