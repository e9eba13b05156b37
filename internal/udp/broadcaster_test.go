package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"gpstether/internal/logger"
)

const testSentence = "$GPGLL,4807.0380,N,01131.0000,E,123519.00,A*2E\r\n"

type fakeConn struct {
	mu       sync.Mutex
	writes   []string
	attempts int
	failN    int
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failN {
		return 0, errors.New("network is unreachable")
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type recordingLog struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLog) Log(level logger.Level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingLog) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestNewBroadcaster(t *testing.T) {
	resolveErr := errors.New("no such host")
	dialErr := errors.New("permission denied")

	for _, ca := range []struct {
		name    string
		resolve resolveFunc
		dial    dialFunc
		wantErr error
	}{
		{
			"ok",
			net.ResolveUDPAddr,
			func(network string, _, raddr *net.UDPAddr) (udpConn, error) {
				if network != "udp" || raddr.Port != 10110 {
					return nil, fmt.Errorf("dialed %s %v", network, raddr)
				}
				return &fakeConn{}, nil
			},
			nil,
		},
		{
			"resolve failure",
			func(string, string) (*net.UDPAddr, error) { return nil, resolveErr },
			nil,
			resolveErr,
		},
		{
			"dial failure",
			net.ResolveUDPAddr,
			func(string, *net.UDPAddr, *net.UDPAddr) (udpConn, error) { return nil, dialErr },
			dialErr,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			b, err := newBroadcaster("192.168.10.255:10110", ca.resolve, ca.dial)
			if ca.wantErr != nil {
				if !errors.Is(err, ca.wantErr) {
					t.Fatalf("err=%v want %v", err, ca.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("newBroadcaster: %v", err)
			}
			defer b.Close()
			if b.Dest() != "192.168.10.255:10110" {
				t.Fatalf("dest=%q", b.Dest())
			}
		})
	}
}

func TestBroadcaster_SendSkipsEmpty(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc}

	for _, p := range [][]byte{nil, {}, []byte(testSentence)} {
		if err := b.Send(p); err != nil {
			t.Fatalf("Send(%q): %v", p, err)
		}
	}
	if fc.attempts != 1 {
		t.Fatalf("attempts=%d want 1", fc.attempts)
	}
	if got := fc.sent(); len(got) != 1 || got[0] != testSentence {
		t.Fatalf("sent=%q", got)
	}

	fc.failN = 2
	if err := b.Send([]byte(testSentence)); err == nil {
		t.Fatalf("expected write error")
	}

	if err := b.Close(); err != nil || !fc.closed {
		t.Fatalf("close err=%v closed=%v", err, fc.closed)
	}
	if err := (&Broadcaster{}).Close(); err != nil {
		t.Fatalf("Close on empty broadcaster: %v", err)
	}
}

func TestBroadcaster_RunLogsFailureOnce(t *testing.T) {
	fc := &fakeConn{failN: 3}
	b := &Broadcaster{dest: "x", conn: fc}
	log := &recordingLog{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx, 2*time.Millisecond, func() []byte { return []byte(testSentence) }, log)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(fc.sent()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for writes")
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	lines := log.get()
	if len(lines) != 2 {
		t.Fatalf("log lines=%q", lines)
	}
	if lines[0] != "[udp] send to x: network is unreachable" || lines[1] != "[udp] send to x recovered" {
		t.Fatalf("log lines=%q", lines)
	}
}

func TestNewBroadcaster_Loopback(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	b, err := NewBroadcaster(pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewBroadcaster: %v", err)
	}
	defer b.Close()

	if err := b.Send([]byte(testSentence)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	pc.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	buf := make([]byte, 128)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(buf[:n]) != testSentence {
		t.Fatalf("got %q", buf[:n])
	}
}
