package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"gpstether/internal/config"
	"gpstether/internal/confwatcher"
	"gpstether/internal/fix"
	"gpstether/internal/logger"
	"gpstether/internal/notify"
	"gpstether/internal/web"
)

var version = "v0.0.0"

type cliArgs struct {
	Version   bool   `help:"print version"`
	Summarize string `help:"print a summary of an NMEA log file and exit" placeholder:"PATH"`
	Confpath  string `arg:"" default:"gpstether.yml"`
}

// app owns the logger and the runtime built from the current configuration.
// The fix store and the event hub outlive reloads.
type app struct {
	ctx       context.Context
	ctxCancel func()
	confPath  string
	conf      config.Config
	confFound bool

	logger      *logger.Logger
	logs        *web.LogBuffer
	store       *fix.Store
	hub         *notify.Hub
	rt          *liveRuntime
	confWatcher *confwatcher.ConfWatcher

	interrupt chan os.Signal
	failed    bool

	// out
	done chan struct{}
}

func newApp(args []string) (*app, bool) {
	var cli cliArgs
	parser, err := kong.New(&cli,
		kong.Name("gpstether"),
		kong.Description("gpstether "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is gpstether.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if cli.Summarize != "" {
		if err := printNMEASummary(os.Stdout, cli.Summarize); err != nil {
			fmt.Printf("ERR: %s\n", err)
			return nil, false
		}
		os.Exit(0)
	}

	return startApp(cli.Confpath)
}

func startApp(confPath string) (*app, bool) {
	ctx, ctxCancel := context.WithCancel(context.Background())

	a := &app{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  confPath,
		store:     fix.NewStore(),
		hub:       notify.NewHub(),
		interrupt: make(chan os.Signal, 1),
		done:      make(chan struct{}),
	}

	var err error
	a.conf, a.confFound, err = config.Load(a.confPath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		ctxCancel()
		return nil, false
	}

	err = a.createResources(true)
	if err != nil {
		a.Log(logger.Error, "ERR: %s", err)
		a.closeResources(nil)
		ctxCancel()
		return nil, false
	}

	signal.Notify(a.interrupt, os.Interrupt, syscall.SIGTERM)

	go a.run()

	return a, true
}

// Close stops the app and waits for all goroutines to return.
func (a *app) Close() {
	a.ctxCancel()
	<-a.done
}

// Wait waits for the app to exit.
func (a *app) Wait() {
	<-a.done
}

// Log is the main logging function.
func (a *app) Log(level logger.Level, format string, args ...interface{}) {
	if a.logger == nil {
		fmt.Printf(format+"\n", args...)
		return
	}
	a.logger.Log(level, format, args...)
}

func (a *app) run() {
	defer close(a.done)
	defer signal.Stop(a.interrupt)

	confChanged := func() chan struct{} {
		if a.confWatcher != nil {
			return a.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

outer:
	for {
		select {
		case _, ok := <-confChanged:
			if !ok {
				confChanged = nil
				continue
			}
			a.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := config.Load(a.confPath)
			if err != nil {
				a.Log(logger.Error, "%s; keeping the current configuration", err)
				continue
			}

			if err := a.reloadConf(newConf); err != nil {
				a.Log(logger.Error, "%s", err)
				a.failed = true
				break outer
			}

		case <-a.interrupt:
			a.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-a.ctx.Done():
			break outer
		}
	}

	a.ctxCancel()

	a.closeResources(nil)
}

func (a *app) createResources(initial bool) error {
	if a.logger == nil {
		if a.logs == nil {
			a.logs = web.NewLogBuffer(a.conf.Log.BufferLines)
		}
		l, err := newLogger(a.conf.Log, a.logs)
		if err != nil {
			return err
		}
		a.logger = l
	}

	if initial {
		a.Log(logger.Info, "gpstether %s", version)
		if !a.confFound {
			a.Log(logger.Warn, "configuration file not found, using defaults")
		}

		gin.SetMode(gin.ReleaseMode)
	}

	if a.rt == nil {
		rt, err := newLiveRuntime(a.ctx, runtimeDeps{
			Conf:    a.conf,
			Version: version,
			Store:   a.store,
			Hub:     a.hub,
			Logs:    a.logs,
			Parent:  a,
		})
		if err != nil {
			return err
		}
		a.rt = rt
	}

	if a.confWatcher == nil {
		w := &confwatcher.ConfWatcher{FilePath: a.confPath}
		if err := w.Initialize(); err != nil {
			a.Log(logger.Warn, "configuration watcher: %v", err)
		} else {
			a.confWatcher = w
		}
	}

	return nil
}

// closeResources tears down what newConf changes; nil closes everything.
func (a *app) closeResources(newConf *config.Config) {
	closeLogger := newConf == nil ||
		!reflect.DeepEqual(newConf.Log, a.conf.Log)

	closeConfWatcher := newConf == nil

	if a.confWatcher != nil && closeConfWatcher {
		a.confWatcher.Close()
		a.confWatcher = nil
	}

	if a.rt != nil {
		a.rt.Close()
		a.rt = nil
	}

	if closeLogger && a.logger != nil {
		a.logger.Close()
		a.logger = nil
	}
}

func (a *app) reloadConf(newConf config.Config) error {
	a.closeResources(&newConf)
	a.conf = newConf
	return a.createResources(false)
}

func newLogger(conf config.LogConfig, sink *web.LogBuffer) (*logger.Logger, error) {
	level, err := logger.ParseLevel(conf.Level)
	if err != nil {
		return nil, err
	}
	dests := make([]logger.Destination, 0, len(conf.Destinations))
	for _, d := range conf.Destinations {
		dest, err := logger.ParseDestination(d)
		if err != nil {
			return nil, err
		}
		dests = append(dests, dest)
	}

	l := &logger.Logger{
		Level:        level,
		Destinations: dests,
		File:         conf.File,
		Sink:         sink,
	}
	if err := l.Initialize(); err != nil {
		return nil, err
	}
	return l, nil
}
