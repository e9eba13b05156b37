// Package udp sends periodic datagrams, such as raw NMEA, to a fixed
// destination.
package udp

import (
	"context"
	"fmt"
	"net"
	"time"

	"gpstether/internal/logger"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

// Broadcaster writes datagrams to one destination, which may be a
// broadcast address.
type Broadcaster struct {
	dest string
	conn udpConn
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Broadcaster{
		dest: dest,
		conn: conn,
	}, nil
}

// Dest returns the configured destination.
func (b *Broadcaster) Dest() string {
	return b.dest
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// Run sends payload() every interval until ctx is done. Empty payloads are
// skipped; write errors are logged and do not stop the loop.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration, payload func() []byte, log logger.Writer) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		err := b.Send(payload())
		switch {
		case err != nil && !failing:
			failing = true
			if log != nil {
				log.Log(logger.Warn, "[udp] send to %s: %v", b.dest, err)
			}
		case err == nil && failing:
			failing = false
			if log != nil {
				log.Log(logger.Info, "[udp] send to %s recovered", b.dest)
			}
		}
	}
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
