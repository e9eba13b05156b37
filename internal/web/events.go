package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gpstether/internal/logger"
)

var (
	pingInterval = 30 * time.Second
	pingTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// onEvents streams notify events as JSON text messages with periodic
// pings. Messages from the client are discarded.
func (s *Server) onEvents(c *gin.Context) {
	if s.Events == nil {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("event stream disabled"))
		return
	}

	wc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log(logger.Debug, "websocket upgrade: %v", err)
		return
	}
	defer wc.Close()

	id, events := s.Events.Subscribe(16)
	defer s.Events.Unsubscribe(id)

	s.Log(logger.Debug, "event stream opened by %s", wc.RemoteAddr())
	defer s.Log(logger.Debug, "event stream closed by %s", wc.RemoteAddr())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck
		wc.SetPongHandler(func(string) error {
			wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck
			return nil
		})
		for {
			if _, _, err := wc.NextReader(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := wc.WriteJSON(ev); err != nil {
				return
			}

		case <-pingTicker.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			wc.WriteMessage(websocket.PingMessage, nil)       //nolint:errcheck

		case <-readDone:
			return

		case <-s.closing:
			wc.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
			return
		}
	}
}
