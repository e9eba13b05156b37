package main

import (
	"context"
	"sync"

	"gpstether/internal/config"
	"gpstether/internal/fix"
	"gpstether/internal/gps"
	"gpstether/internal/gpsd"
	"gpstether/internal/led"
	"gpstether/internal/logger"
	"gpstether/internal/nmea"
	"gpstether/internal/notify"
	"gpstether/internal/udp"
	"gpstether/internal/web"
)

type runtimeDeps struct {
	Conf    config.Config
	Version string
	Store   *fix.Store
	Hub     *notify.Hub
	Logs    *web.LogBuffer
	Parent  logger.Writer
}

// liveRuntime is everything built from one configuration.
type liveRuntime struct {
	ctx       context.Context
	ctxCancel func()
	wg        sync.WaitGroup

	mqtt   *notify.MQTT
	server *gpsd.Server
	gpsSvc *gps.Service
	udp    *udp.Broadcaster
}

func newLiveRuntime(parentCtx context.Context, d runtimeDeps) (*liveRuntime, error) {
	c := d.Conf
	ctx, ctxCancel := context.WithCancel(parentCtx)
	rt := &liveRuntime{ctx: ctx, ctxCancel: ctxCancel}

	notifiers := notify.Multi{d.Hub}
	if c.Notify.MQTT.Enable {
		// keep running without the broker
		m, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:      c.Notify.MQTT.Broker,
			ClientID:    c.Notify.MQTT.ClientID,
			Username:    c.Notify.MQTT.Username,
			Password:    c.Notify.MQTT.Password,
			TopicPrefix: c.Notify.MQTT.TopicPrefix,
			QoS:         byte(c.Notify.MQTT.QoS),
		}, d.Parent)
		if err != nil {
			d.Parent.Log(logger.Warn, "mqtt disabled: %v", err)
		} else {
			rt.mqtt = m
			notifiers = append(notifiers, m)
		}
	}

	rt.server = &gpsd.Server{
		Config: gpsd.Config{
			Listen:         c.Server.Listen,
			AcceptTimeout:  c.Server.AcceptTimeout,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			StreamInterval: c.Server.StreamInterval,
			MaxClients:     c.Server.MaxClients,
			DeviceName:     c.Server.DeviceName,
		},
		Store:    d.Store,
		Notifier: notifiers,
		Parent:   d.Parent,
	}
	if err := rt.server.Start(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.gpsSvc = gps.New(gps.Config{
		Enable:       c.GPS.Enable,
		Source:       c.GPS.Source,
		GPSDAddr:     c.GPS.GPSDAddr,
		Device:       c.GPS.Device,
		Baud:         c.GPS.Baud,
		MinInterval:  c.GPS.MinInterval,
		MinDistanceM: c.GPS.MinDistanceM,
		Sim:          gps.SimConfig(c.GPS.Sim),
	}, d.Store, notifiers, d.Parent)
	if err := rt.gpsSvc.Start(ctx); err != nil {
		// clients still get "no fix" replies
		d.Parent.Log(logger.Error, "gps: %v", err)
	}

	if c.Web.Enable {
		ws := &web.Server{
			Version:  d.Version,
			Listen:   c.Server.Listen,
			Store:    d.Store,
			Sessions: rt.server,
			GPS:      rt.gpsSvc,
			Logs:     d.Logs,
			Events:   d.Hub,
			Parent:   d.Parent,
		}
		rt.goRun(func() {
			if err := ws.Serve(ctx, c.Web.Listen); err != nil && ctx.Err() == nil {
				d.Parent.Log(logger.Error, "[web] %v", err)
			}
		})
	}

	if c.NMEAUDP.Enable {
		b, err := udp.NewBroadcaster(c.NMEAUDP.Dest)
		if err != nil {
			d.Parent.Log(logger.Error, "nmea udp disabled: %v", err)
		} else {
			rt.udp = b
			d.Parent.Log(logger.Info, "[udp] sending NMEA to %s", b.Dest())
			rt.goRun(func() {
				b.Run(ctx, c.NMEAUDP.Interval, func() []byte {
					return nmeaPayload(d.Store.Snapshot())
				}, d.Parent)
			})
		}
	}

	if c.LED.Enable {
		ind := &led.Indicator{
			Config: led.Config{
				Enable:     true,
				Pin:        c.LED.Pin,
				Interval:   c.LED.Interval,
				StaleAfter: c.LED.StaleAfter,
			},
			Store:  d.Store,
			Parent: d.Parent,
		}
		rt.goRun(func() {
			if err := ind.Run(ctx); err != nil {
				d.Parent.Log(logger.Error, "%v", err)
			}
		})
	}

	return rt, nil
}

func (rt *liveRuntime) goRun(fn func()) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		fn()
	}()
}

// Close stops components in reverse start order.
func (rt *liveRuntime) Close() {
	rt.ctxCancel()
	rt.wg.Wait()

	if rt.udp != nil {
		rt.udp.Close() //nolint:errcheck
	}
	if rt.gpsSvc != nil {
		rt.gpsSvc.Close()
	}
	if rt.server != nil {
		rt.server.Close()
	}
	if rt.mqtt != nil {
		rt.mqtt.Close()
	}
}

// nmeaPayload is the sentence block sent over UDP, empty without a fix.
func nmeaPayload(s fix.Snapshot) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(nmea.Raw(s))
}
