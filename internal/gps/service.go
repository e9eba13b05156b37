package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gpstether/internal/fix"
	"gpstether/internal/logger"
)

// Status texts sent to the notifier when the service starts and stops.
const (
	StatusStarted = "GPS started"
	StatusStopped = "GPS stopped"
)

// Config controls the location source.
//
// Device may be empty to auto-detect a USB receiver (/dev/ttyACM*,
// /dev/ttyUSB*). Most receivers default to 9600 baud.
type Config struct {
	Enable bool

	// Source selects how fixes are ingested: "nmea" (direct serial), "gpsd"
	// (upstream gpsd JSON) or "sim". Empty means "nmea".
	Source string

	// GPSDAddr is host:port of the upstream gpsd when Source=="gpsd".
	GPSDAddr string

	// Device is the serial device path when Source=="nmea".
	Device string
	Baud   int

	// An update is stored when at least MinInterval elapsed or the
	// position moved MinDistanceM since the last stored one.
	MinInterval  time.Duration
	MinDistanceM float64

	Sim SimConfig
}

// Notifier receives source status changes and stored fixes.
type Notifier interface {
	GPSStatus(text string)
	Location(f fix.Fix)
}

// Status describes the source for the status API.
type Status struct {
	Enabled bool   `json:"enabled"`
	Source  string `json:"source,omitempty"`
	State   string `json:"state,omitempty"`

	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Service runs one location source and feeds the fix store.
type Service struct {
	cfg      Config
	store    *fix.Store
	notifier Notifier
	parent   logger.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Status

	mu       sync.Mutex
	throttle throttle
	now      func() time.Time
}

// New returns a stopped service. notifier and parent may be nil.
func New(cfg Config, store *fix.Store, notifier Notifier, parent logger.Writer) *Service {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "nmea"
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.MinDistanceM <= 0 {
		cfg.MinDistanceM = defaultMinDistanceM
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		parent:   parent,
		throttle: throttle{minInterval: cfg.MinInterval, minDistanceM: cfg.MinDistanceM},
		now:      time.Now,
	}

	st := Status{Enabled: cfg.Enable, Source: cfg.Source, State: stateIdle}
	switch cfg.Source {
	case "gpsd":
		st.GPSDAddr = cfg.GPSDAddr
		if st.GPSDAddr == "" {
			st.GPSDAddr = gpsdDefaultAddr
		}
	case "nmea":
		st.Device = cfg.Device
		st.Baud = cfg.Baud
	}
	s.last.Store(st)
	return s
}

// Start launches the source goroutine. It is a no-op when disabled or
// already running.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	var run func(context.Context)
	switch s.cfg.Source {
	case "nmea":
		run = s.newLink(s.openNMEA, s.readNMEA).run
	case "gpsd":
		run = s.newLink(s.openGPSD, s.readGPSD).run
	case "sim":
		run = s.runSim
	default:
		return fmt.Errorf("unknown gps source '%s'", s.cfg.Source)
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(childCtx)
	}()

	s.Log(logger.Info, "enabled source=%s", s.cfg.Source)
	if s.notifier != nil {
		s.notifier.GPSStatus(StatusStarted)
	}
	return nil
}

// Close stops the source and waits for it to exit.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()

	s.Log(logger.Info, "disabled")
	if s.notifier != nil {
		s.notifier.GPSStatus(StatusStopped)
	}
}

// Status returns the latest source status.
func (s *Service) Status() Status {
	if s == nil {
		return Status{}
	}
	v := s.last.Load()
	if v == nil {
		return Status{}
	}
	return v.(Status)
}

// Log implements logger.Writer.
func (s *Service) Log(level logger.Level, format string, args ...interface{}) {
	if s.parent == nil {
		return
	}
	s.parent.Log(level, "[gps] "+format, args...)
}

func (s *Service) newLink(
	open func(ctx context.Context) (io.ReadCloser, error),
	read func(ctx context.Context, r io.Reader) error,
) *link {
	return &link{
		open: open,
		read: read,
		onState: func(from, to string) {
			s.Log(logger.Debug, "link %s -> %s", from, to)
			s.setStatus(func(st *Status) { st.State = to })
		},
		onError: func(err error) {
			s.Log(logger.Warn, "%v", err)
			s.setError(err.Error())
		},
	}
}

func (s *Service) openNMEA(context.Context) (io.ReadCloser, error) {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, fmt.Errorf("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}

	port, err := openSerial(device, s.cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("gps open failed device=%s baud=%d: %w", device, s.cfg.Baud, err)
	}
	s.setStatus(func(st *Status) { st.Device = device })
	s.Log(logger.Info, "opened device=%s baud=%d", device, s.cfg.Baud)
	return port, nil
}

func (s *Service) readNMEA(ctx context.Context, r io.Reader) error {
	var st nmeaState
	return scanLines(ctx, r, 4096, func(line string) {
		// Some receivers include non-NMEA chatter.
		if !strings.HasPrefix(line, "$") {
			return
		}
		sent, err := gonmea.Parse(line)
		if err != nil {
			s.setError(err.Error())
			return
		}
		s.apply(st.apply(s.now().UTC(), sent))
	})
}

func (s *Service) openGPSD(ctx context.Context) (io.ReadCloser, error) {
	conn, err := dialGPSD(ctx, s.cfg.GPSDAddr)
	if err != nil {
		return nil, fmt.Errorf("gpsd dial failed addr=%s: %w", s.cfg.GPSDAddr, err)
	}
	if err := gpsdWatch(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("gpsd watch failed: %w", err)
	}
	return conn, nil
}

func (s *Service) readGPSD(ctx context.Context, r io.Reader) error {
	var st gpsdState
	return scanLines(ctx, r, 256*1024, func(line string) {
		u, err := st.applyLine(s.now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			return
		}
		s.apply(u)
	})
}

func (s *Service) runSim(ctx context.Context) {
	interval := s.cfg.Sim.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.setStatus(func(st *Status) { st.State = stateStreaming })
	defer s.setStatus(func(st *Status) { st.State = stateStopped })

	for {
		f := s.cfg.Sim.Fix(s.now())
		s.apply(update{fix: &f, prns: simSatellites})

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// apply publishes a source update: satellites always, the fix only when
// the throttle accepts it.
func (s *Service) apply(u update) {
	if u.prns != nil {
		s.store.SetSatellites(u.prns)
	}
	if u.fix == nil {
		return
	}
	f := *u.fix

	s.mu.Lock()
	ok := s.throttle.accept(f)
	s.setStatusLocked(func(st *Status) {
		if ok {
			st.Accepted++
			st.LastFixUTC = f.Time.UTC().Format(time.RFC3339Nano)
		} else {
			st.Dropped++
		}
	})
	s.mu.Unlock()

	if !ok {
		return
	}
	s.store.Update(f)
	if s.notifier != nil {
		s.notifier.Location(f)
	}
}

func (s *Service) setError(msg string) {
	s.setStatus(func(st *Status) { st.LastError = msg })
}

func (s *Service) setStatus(fn func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(fn)
}

func (s *Service) setStatusLocked(fn func(st *Status)) {
	cur := s.Status()
	fn(&cur)
	s.last.Store(cur)
}

// scanLines calls fn for every non-empty trimmed line until r fails or ctx
// is done.
func scanLines(ctx context.Context, r io.Reader, maxLine int, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), maxLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
