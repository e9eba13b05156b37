package gps

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/looplab/fsm"
)

const (
	stateIdle       = "idle"
	stateConnecting = "connecting"
	stateStreaming  = "streaming"
	stateBackoff    = "backoff"
	stateStopped    = "stopped"
)

const (
	eventConnect   = "connect"
	eventConnected = "connected"
	eventFail      = "fail"
	eventStop      = "stop"
)

const (
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

func newLinkFSM(onEnter func(from, to string)) *fsm.FSM {
	return fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventConnect, Src: []string{stateIdle, stateBackoff}, Dst: stateConnecting},
			{Name: eventConnected, Src: []string{stateConnecting}, Dst: stateStreaming},
			{Name: eventFail, Src: []string{stateConnecting, stateStreaming}, Dst: stateBackoff},
			{Name: eventStop, Src: []string{stateIdle, stateConnecting, stateStreaming, stateBackoff}, Dst: stateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				if onEnter != nil {
					onEnter(e.Src, e.Dst)
				}
			},
		},
	)
}

// link keeps a stream source connected: it opens the stream, hands it to
// read until it fails, then reopens it with exponential backoff.
type link struct {
	open func(ctx context.Context) (io.ReadCloser, error)
	read func(ctx context.Context, r io.Reader) error

	minBackoff time.Duration
	maxBackoff time.Duration

	onState func(from, to string)
	onError func(err error)
}

func (l *link) run(ctx context.Context) {
	minBackoff := l.minBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := l.maxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = defaultMaxBackoff
	}

	m := newLinkFSM(l.onState)
	backoff := minBackoff
	var rc io.ReadCloser

	for {
		if ctx.Err() != nil && m.Current() != stateStopped {
			if rc != nil {
				rc.Close()
			}
			m.Event(eventStop) //nolint:errcheck
		}

		switch m.Current() {
		case stateIdle:
			m.Event(eventConnect) //nolint:errcheck

		case stateConnecting:
			var err error
			rc, err = l.open(ctx)
			if err != nil {
				l.fail(err)
				m.Event(eventFail) //nolint:errcheck
				continue
			}
			backoff = minBackoff
			m.Event(eventConnected) //nolint:errcheck

		case stateStreaming:
			stop := context.AfterFunc(ctx, func() { rc.Close() })
			err := l.read(ctx, rc)
			stop()
			rc.Close()
			rc = nil
			if ctx.Err() != nil {
				continue
			}
			if err == nil {
				err = io.EOF
			}
			l.fail(fmt.Errorf("read stopped: %w", err))
			m.Event(eventFail) //nolint:errcheck

		case stateBackoff:
			select {
			case <-ctx.Done():
				continue
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			m.Event(eventConnect) //nolint:errcheck

		case stateStopped:
			return
		}
	}
}

func (l *link) fail(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}
