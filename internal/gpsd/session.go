package gpsd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gpstether/internal/logger"
)

const maxLineLen = 1024

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Created    time.Time `json:"created"`
	Watcher    bool      `json:"watcher"`
	Raw        bool      `json:"raw"`
	DeviceName string    `json:"device_name"`
	BytesSent  uint64    `json:"bytes_sent"`
}

type sessionParent interface {
	logger.Writer
	closeSession(*Session)
}

// Session owns one accepted connection.
type Session struct {
	readTimeout    time.Duration
	writeTimeout   time.Duration
	streamInterval time.Duration
	newTicker      func(time.Duration) ticker
	interp         *Interpreter
	conn           net.Conn
	parent         sessionParent

	ctx       context.Context
	ctxCancel func()
	uuid      uuid.UUID
	created   time.Time
	bytesSent atomic.Uint64

	mu    sync.Mutex
	state State

	done chan struct{}
}

func (s *Session) initialize(deviceName string) {
	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.uuid = uuid.New()
	s.created = time.Now()
	s.state.DeviceName = deviceName
	s.done = make(chan struct{})

	s.Log(logger.Debug, "opened")

	go s.run()
}

// Close stops the session and waits for it to exit.
func (s *Session) Close() {
	s.ctxCancel()
	s.conn.Close()
	<-s.done
}

// Log implements logger.Writer.
func (s *Session) Log(level logger.Level, format string, args ...interface{}) {
	s.parent.Log(level, "[session %s] "+format, append([]interface{}{s.conn.RemoteAddr()}, args...)...)
}

// Info returns a description of the session.
func (s *Session) Info() SessionInfo {
	st := s.currentState()

	return SessionInfo{
		ID:         s.uuid.String(),
		RemoteAddr: s.conn.RemoteAddr().String(),
		Created:    s.created,
		Watcher:    st.Watcher,
		Raw:        st.Raw,
		DeviceName: st.DeviceName,
		BytesSent:  s.bytesSent.Load(),
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) run() {
	defer close(s.done)
	defer s.finish()
	defer func() {
		if r := recover(); r != nil {
			s.Log(logger.Error, "fatal: %v", r)
		}
	}()

	err := s.runInner()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.Log(logger.Info, "closed by client")
	default:
		s.Log(logger.Info, "closed: %v", err)
	}
}

func (s *Session) runInner() error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.runReader(lines, readErr)

	var t ticker
	var tick <-chan time.Time
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	for {
		streaming := s.currentState().Streaming()

		switch {
		case streaming && t == nil:
			t = s.newTicker(s.streamInterval)
			tick = t.C()
		case !streaming && t != nil:
			t.Stop()
			t = nil
			tick = nil
		}

		select {
		case line := <-lines:
			if err := s.handleLine(line); err != nil {
				return err
			}

		case <-tick:
			if err := s.serveTick(lines); err != nil {
				return err
			}

		case err := <-readErr:
			return err

		case <-s.ctx.Done():
			return nil
		}
	}
}

// serveTick runs one streaming cycle. A pending request takes the cycle
// instead of the unsolicited output.
func (s *Session) serveTick(lines <-chan string) error {
	select {
	case line := <-lines:
		return s.handleLine(line)
	default:
	}
	return s.push()
}

// runReader delivers complete lines. Read timeouts are expected and only
// bound how long a cancelled session keeps blocking. Lines longer than
// maxLineLen are dropped up to their terminator.
func (s *Session) runReader(lines chan<- string, readErr chan<- error) {
	r := bufio.NewReaderSize(s.conn, maxLineLen)
	var partial []byte
	discard := false

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)) //nolint:errcheck
		chunk, err := r.ReadSlice('\n')
		if !discard {
			partial = append(partial, chunk...)
			if len(partial) > maxLineLen {
				discard = true
				partial = partial[:0]
			}
		}

		if err == nil {
			if discard {
				s.Log(logger.Warn, "request longer than %d bytes dropped", maxLineLen)
				discard = false
				continue
			}
			line := strings.TrimRight(string(partial), "\r\n")
			partial = partial[:0]
			select {
			case lines <- line:
			case <-s.ctx.Done():
				return
			}
			continue
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && s.ctx.Err() == nil {
			continue
		}

		readErr <- err
		return
	}
}

func (s *Session) handleLine(line string) error {
	line = strings.TrimSpace(line)

	var reply string
	var err error
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		reply, err = s.interp.Reply(&s.state, line)
	}()

	if err != nil {
		s.Log(logger.Warn, "request %q failed: %v", line, err)
		return nil
	}
	s.Log(logger.Debug, "request %q", line)
	return s.write(reply + lineEnd)
}

func (s *Session) push() error {
	st := s.currentState()

	var b strings.Builder
	if st.Watcher {
		b.WriteString(s.interp.Watch() + lineEnd)
	}
	if st.Raw {
		b.WriteString(s.interp.Raw())
	}
	if b.Len() == 0 {
		return nil
	}
	return s.write(b.String())
}

func (s *Session) write(msg string) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)) //nolint:errcheck
	n, err := io.WriteString(s.conn, msg)
	s.bytesSent.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Session) finish() {
	s.ctxCancel()

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Reset()
	}()

	s.conn.Close()
	s.parent.closeSession(s)

	s.Log(logger.Debug, "destroyed")
}
