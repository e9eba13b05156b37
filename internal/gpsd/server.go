package gpsd

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gpstether/internal/fix"
	"gpstether/internal/logger"
)

// ErrServerClosed is returned by Start after Close.
var ErrServerClosed = errors.New("server closed")

// Config controls the gpsd server.
type Config struct {
	Listen         string
	AcceptTimeout  time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	StreamInterval time.Duration

	// MaxClients caps concurrent sessions. Zero means unbounded.
	MaxClients int

	DeviceName string
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = ":2947"
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.StreamInterval <= 0 {
		c.StreamInterval = time.Second
	}
	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}
}

// StatusNotifier receives service state changes.
type StatusNotifier interface {
	ServiceStatus(running bool)
}

// Server accepts gpsd clients and tracks their sessions.
type Server struct {
	Config   Config
	Store    *fix.Store
	Notifier StatusNotifier
	Parent   logger.Writer

	newTicker func(time.Duration) ticker

	interp   *Interpreter
	ln       *net.TCPListener
	done     atomic.Bool
	started  bool
	mu       sync.Mutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// Start binds the listening socket and starts accepting clients.
// A bind failure is returned to the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done.Load() {
		return ErrServerClosed
	}
	if s.started {
		return nil
	}

	s.Config.setDefaults()
	if s.newTicker == nil {
		s.newTicker = newTimeTicker
	}
	s.interp = NewInterpreter(s.Store)
	s.sessions = make(map[*Session]struct{})

	addr, err := net.ResolveTCPAddr("tcp", s.Config.Listen)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.Config.Listen, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Config.Listen, err)
	}
	s.ln = ln
	s.started = true

	s.Log(logger.Info, "listener opened on %s", ln.Addr())

	s.wg.Add(1)
	go s.runAccept()

	if s.Notifier != nil {
		s.Notifier.ServiceStatus(true)
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops every session, then the listener.
func (s *Server) Close() {
	if !s.done.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	started := s.started
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if !started {
		return
	}

	for _, sess := range sessions {
		sess.Close()
	}

	s.ln.Close()
	s.wg.Wait()

	s.Log(logger.Info, "listener closed")

	if s.Notifier != nil {
		s.Notifier.ServiceStatus(false)
	}
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	if s.Parent == nil {
		return
	}
	s.Parent.Log(level, "[gpsd] "+format, args...)
}

// Sessions returns the live sessions ordered by creation time.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

func (s *Server) runAccept() {
	defer s.wg.Done()

	for !s.done.Load() {
		s.ln.SetDeadline(time.Now().Add(s.Config.AcceptTimeout)) //nolint:errcheck
		conn, err := s.ln.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.done.Load() {
				return
			}
			s.Log(logger.Error, "accept: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		conn.SetKeepAlive(true) //nolint:errcheck
		s.newSession(conn)
	}
}

func (s *Server) newSession(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done.Load() {
		conn.Close()
		return
	}
	if s.Config.MaxClients > 0 && len(s.sessions) >= s.Config.MaxClients {
		s.Log(logger.Warn, "rejecting %s: %d clients connected", conn.RemoteAddr(), len(s.sessions))
		conn.Close()
		return
	}

	sess := &Session{
		readTimeout:    s.Config.ReadTimeout,
		writeTimeout:   s.Config.WriteTimeout,
		streamInterval: s.Config.StreamInterval,
		newTicker:      s.newTicker,
		interp:         s.interp,
		conn:           conn,
		parent:         s,
	}
	s.sessions[sess] = struct{}{}
	sess.initialize(s.Config.DeviceName)
}

func (s *Server) closeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}
