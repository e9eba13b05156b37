// Package led drives a status LED from the fix store: off without a fix,
// steady while fixes are fresh, blinking when the last fix went stale.
package led

import (
	"context"
	"fmt"
	"time"

	"gpstether/internal/fix"
	"gpstether/internal/logger"
)

const (
	defaultInterval   = 500 * time.Millisecond
	defaultStaleAfter = 3 * time.Second
)

type Config struct {
	Enable bool

	// Pin is the BCM GPIO number (line name "GPIO<pin>").
	Pin int

	Interval   time.Duration
	StaleAfter time.Duration
}

type line interface {
	SetValue(v int) error
	Close() error
}

// Indicator owns the LED line while Run is active.
type Indicator struct {
	Config Config
	Store  *fix.Store
	Parent logger.Writer

	open func(pin int) (line, error)
	now  func() time.Time
}

// Run drives the LED until ctx is done, then turns it off.
func (i *Indicator) Run(ctx context.Context) error {
	if !i.Config.Enable {
		return nil
	}
	interval := i.Config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	staleAfter := i.Config.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	open := i.open
	if open == nil {
		open = openGPIO
	}
	now := i.now
	if now == nil {
		now = time.Now
	}

	ln, err := open(i.Config.Pin)
	if err != nil {
		return fmt.Errorf("led: %w", err)
	}
	defer func() {
		_ = ln.SetValue(0)
		_ = ln.Close()
	}()

	i.Log(logger.Info, "driving GPIO%d", i.Config.Pin)

	t := time.NewTicker(interval)
	defer t.Stop()

	blink := false
	last := -1
	for {
		v := value(i.Store.Snapshot(), now(), staleAfter, blink)
		blink = !blink
		if v != last {
			if err := ln.SetValue(v); err != nil {
				i.Log(logger.Warn, "set GPIO%d: %v", i.Config.Pin, err)
			} else {
				last = v
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Log implements logger.Writer.
func (i *Indicator) Log(level logger.Level, format string, args ...interface{}) {
	if i.Parent == nil {
		return
	}
	i.Parent.Log(level, "[led] "+format, args...)
}

func value(snap fix.Snapshot, now time.Time, staleAfter time.Duration, blinkOn bool) int {
	switch {
	case !snap.Valid:
		return 0
	case now.Sub(snap.Fix.Time) <= staleAfter:
		return 1
	case blinkOn:
		return 1
	default:
		return 0
	}
}
