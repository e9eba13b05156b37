// Package web serves the JSON status API and the live event stream.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gpstether/internal/fix"
	"gpstether/internal/gps"
	"gpstether/internal/gpsd"
	"gpstether/internal/logger"
	"gpstether/internal/notify"
)

// SessionLister lists the connected gpsd clients.
type SessionLister interface {
	Sessions() []gpsd.SessionInfo
}

// GPSStatuser reports the location source status.
type GPSStatuser interface {
	Status() gps.Status
}

type apiError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Server is the HTTP status API. Nil members disable the endpoints that
// need them.
type Server struct {
	Version  string
	Listen   string
	Store    *fix.Store
	Sessions SessionLister
	GPS      GPSStatuser
	Logs     *LogBuffer
	Events   *notify.Hub
	Parent   logger.Writer

	start   time.Time
	closing chan struct{}
}

// Handler builds the router. It may be called once per Server.
func (s *Server) Handler() http.Handler {
	if s.start.IsZero() {
		s.start = time.Now()
	}
	if s.closing == nil {
		s.closing = make(chan struct{})
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(noStore)

	group := router.Group("/api")
	group.GET("/status", s.onStatus)
	group.GET("/sessions", s.onSessions)
	group.GET("/fix", s.onFix)
	group.GET("/about", s.onAbout)
	group.GET("/logs", s.onLogs)
	group.GET("/events", s.onEvents)

	router.GET("/", s.onRoot)
	router.NoRoute(func(c *gin.Context) {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("not found: %s", c.Request.URL.Path))
	})

	return router
}

// Serve runs the API on listenAddr until ctx is done.
func (s *Server) Serve(ctx context.Context, listenAddr string) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.Log(logger.Info, "listener opened on %s", listenAddr)

	select {
	case <-ctx.Done():
		// Event streams are hijacked and not tracked by Shutdown.
		close(s.closing)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.Log(logger.Info, "listener closed")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	if s.Parent == nil {
		return
	}
	s.Parent.Log(level, "[web] "+format, args...)
}

func (s *Server) writeError(c *gin.Context, status int, err error) {
	s.Log(logger.Debug, "%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(status, &apiError{Status: "error", Error: err.Error()})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
}

func (s *Server) onRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpstether</title></head><body>"+
		"<h1>gpstether</h1>"+
		"<p>See <a href=\"/api/status\">/api/status</a>, <a href=\"/api/sessions\">/api/sessions</a>, "+
		"<a href=\"/api/fix\">/api/fix</a> and <a href=\"/api/logs?format=text\">/api/logs</a>.</p>"+
		"</body></html>")
}

func (s *Server) onSessions(c *gin.Context) {
	if s.Sessions == nil {
		c.JSON(http.StatusOK, []gpsd.SessionInfo{})
		return
	}
	c.JSON(http.StatusOK, s.Sessions.Sessions())
}

func (s *Server) onFix(c *gin.Context) {
	if s.Store == nil {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("no fix store"))
		return
	}
	c.JSON(http.StatusOK, s.Store.Snapshot())
}
