// Package gpsd serves the current fix over the classic single-letter gpsd
// query protocol.
package gpsd

import (
	"errors"
	"fmt"
	"strings"

	"gpstether/internal/fix"
	"gpstether/internal/nmea"
)

const (
	// ReplyPrefix starts every reply except the device query.
	ReplyPrefix = "GPSD"

	// DefaultDeviceName is reported by the f and i queries.
	DefaultDeviceName = "Android GPS Device"

	// deviceSubtype is reported in the extended-info preamble.
	deviceSubtype = "Generic NMEA"

	maxDeviceNameLen = 64

	lineEnd = "\r\n"
)

var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrBadModeSuffix     = errors.New("bad mode suffix")
	ErrInvalidDeviceName = errors.New("invalid device name")
)

// State is the protocol state of one connection.
type State struct {
	Watcher          bool
	Raw              bool
	DeviceName       string
	ExtendedInfoSent bool
}

// Streaming reports whether unsolicited output is enabled.
func (st State) Streaming() bool {
	return st.Watcher || st.Raw
}

// Reset clears the modes and the preamble flag. The device name is kept.
func (st *State) Reset() {
	st.Watcher = false
	st.Raw = false
	st.ExtendedInfoSent = false
}

// Interpreter maps request lines to replies using the shared fix store.
type Interpreter struct {
	store *fix.Store
}

func NewInterpreter(store *fix.Store) *Interpreter {
	return &Interpreter{store: store}
}

// Reply interprets one request line and returns the reply without the
// trailing CRLF. On error st is left untouched and nothing must be sent.
func (in *Interpreter) Reply(st *State, line string) (string, error) {
	snap := in.store.Snapshot()
	next := *st

	var b strings.Builder
	b.WriteString(ReplyPrefix)

	for i := 0; i < len(line); i++ {
		c := line[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		switch c {
		case 'p':
			b.WriteString(position(snap))
		case 'o':
			b.WriteString(in.navInfo(snap))
		case 'd':
			b.WriteString(utcTime(snap))
		case 'v':
			b.WriteString(speed(snap))
		case 'u':
			fmt.Fprintf(&b, ",U=%f", snap.RateOfClimb)
		case 't':
			b.WriteString(bearing(snap))
		case 'x':
			b.WriteString(",X=" + stamp(snap))
		case 'q':
			fmt.Fprintf(&b, ",Q=%d ? ? ? ? ?", snap.SatelliteCount())
		case 'e':
			b.WriteString(",E=? ? ?")
		case 'a':
			b.WriteString(altitude(snap))
		case 'i':
			b.WriteString(",I=" + next.DeviceName)
		case 'f':
			// f ends the line and answers with the device string alone.
			if i+1 < len(line) && line[i+1] == '=' {
				name, err := ValidDeviceName(line[i+2:])
				if err != nil {
					return "", err
				}
				next.DeviceName = name
			}
			*st = next
			return "F," + next.DeviceName, nil
		case 'w', 'r':
			on, n, err := modeSuffix(line[i+1:], c == 'r')
			if err != nil {
				return "", err
			}
			i += n

			cur := &next.Watcher
			field := ",W="
			if c == 'r' {
				cur = &next.Raw
				field = ",R="
			}
			if n == 0 {
				on = !*cur
			}
			if on && !next.ExtendedInfoSent {
				b.WriteString(",X=" + stamp(snap) + ",I=" + deviceSubtype + lineEnd + ReplyPrefix)
				next.ExtendedInfoSent = true
			}
			*cur = on
			if on {
				b.WriteString(field + "1")
			} else {
				b.WriteString(field + "0")
			}
		default:
			return "", fmt.Errorf("%w '%c'", ErrUnknownCommand, line[i])
		}
	}

	*st = next
	return b.String(), nil
}

// Watch returns the unsolicited watcher line without the trailing CRLF.
func (in *Interpreter) Watch() string {
	return ReplyPrefix + in.navInfo(in.store.Snapshot())
}

// Raw returns the unsolicited raw-mode NMEA sentences.
func (in *Interpreter) Raw() string {
	return nmea.Raw(in.store.Snapshot())
}

// modeSuffix parses the optional argument of w and r. It returns the
// requested state and the number of bytes consumed; zero bytes consumed
// means toggle.
func modeSuffix(rest string, allowTwo bool) (bool, int, error) {
	if rest == "" {
		return false, 0, nil
	}
	n := 0
	if rest[0] == '=' {
		n = 1
		if len(rest) < 2 {
			return false, 0, ErrBadModeSuffix
		}
	}
	switch rest[n] {
	case '0', '-':
		return false, n + 1, nil
	case '1', '+':
		return true, n + 1, nil
	case '2':
		if allowTwo {
			return true, n + 1, nil
		}
	}
	return false, 0, fmt.Errorf("%w '%c'", ErrBadModeSuffix, rest[n])
}

// ValidDeviceName trims s and checks it is 1 to 64 printable ASCII
// characters.
func ValidDeviceName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxDeviceNameLen {
		return "", ErrInvalidDeviceName
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return "", ErrInvalidDeviceName
		}
	}
	return s, nil
}

// stamp formats the fix time as seconds and hundredths.
func stamp(snap fix.Snapshot) string {
	if !snap.Valid {
		return "0.00"
	}
	ms := snap.Fix.TimestampMillis()
	return fmt.Sprintf("%d.%02d", ms/1000, (ms%1000)/10)
}

func position(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",P=?"
	}
	return fmt.Sprintf(",P=%f %f", snap.Fix.LatDeg, snap.Fix.LonDeg)
}

func altitude(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",A=?"
	}
	return fmt.Sprintf(",A=%f", snap.Fix.AltM)
}

func speed(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",V=?"
	}
	return fmt.Sprintf(",V=%f", snap.Fix.SpeedMS*nmea.MPSToKnots)
}

func bearing(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",T=?"
	}
	return fmt.Sprintf(",T=%f", snap.Fix.BearingDeg)
}

func utcTime(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",D=?"
	}
	return ",D=" + snap.Fix.Time.UTC().Format("2006-01-02T15:04:05.00Z")
}

func (in *Interpreter) navInfo(snap fix.Snapshot) string {
	if !snap.Valid {
		return ",O=?"
	}
	f := snap.Fix
	return fmt.Sprintf(",O=%s %s 0.005 %.6f %.6f %.2f ? ? %.4f %.3f %.3f ? ? ? 3",
		in.store.NextNavTag(), stamp(snap),
		f.LatDeg, f.LonDeg, f.AltM,
		f.BearingDeg, f.SpeedMS*nmea.MPSToKMH, snap.RateOfClimb,
	)
}
