package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gpstether/internal/gps"
)

// StatusSnapshot is the body of GET /api/status.
type StatusSnapshot struct {
	Service   string `json:"service"`
	Version   string `json:"version,omitempty"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	Listen  string `json:"listen,omitempty"`
	Clients int    `json:"clients"`

	GPS gps.Status `json:"gps"`

	FixValid    bool   `json:"fix_valid"`
	FixUTC      string `json:"fix_utc,omitempty"`
	Satellites  int    `json:"satellites"`
	UpdateCount uint64 `json:"update_count"`
}

func (s *Server) status(nowUTC time.Time) StatusSnapshot {
	snap := StatusSnapshot{
		Service:   "gpstether",
		Version:   s.Version,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		Listen:    s.Listen,
	}
	if s.Sessions != nil {
		snap.Clients = len(s.Sessions.Sessions())
	}
	if s.GPS != nil {
		snap.GPS = s.GPS.Status()
	}
	if s.Store != nil {
		fs := s.Store.Snapshot()
		snap.FixValid = fs.Valid
		snap.Satellites = fs.SatelliteCount()
		snap.UpdateCount = fs.UpdateCount
		if fs.Valid {
			snap.FixUTC = fs.Fix.Time.UTC().Format(time.RFC3339Nano)
		}
	}
	return snap
}

func (s *Server) onStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status(time.Now()))
}
