package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
)

type AboutResponse struct {
	Service    string `json:"service"`
	NowUTC     string `json:"now_utc"`
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

func (s *Server) onAbout(c *gin.Context) {
	resp := AboutResponse{
		Service:   "gpstether",
		NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
		Version:   s.Version,
	}

	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		resp.ModulePath = bi.Main.Path
		if resp.Version == "" {
			resp.Version = bi.Main.Version
		}
		for _, st := range bi.Settings {
			switch st.Key {
			case "vcs.revision":
				resp.Commit = st.Value
			case "vcs.modified":
				resp.Dirty = st.Value == "true"
			case "vcs.time":
				resp.BuildTime = st.Value
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}
