// Package config loads the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gpstether/internal/gpsd"
	"gpstether/internal/logger"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	GPS     GPSConfig     `yaml:"gps"`
	Notify  NotifyConfig  `yaml:"notify"`
	Web     WebConfig     `yaml:"web"`
	NMEAUDP NMEAUDPConfig `yaml:"nmea_udp"`
	LED     LEDConfig     `yaml:"led"`
}

type LogConfig struct {
	Level        string   `yaml:"level"`
	Destinations []string `yaml:"destinations"`
	File         string   `yaml:"file"`
	BufferLines  int      `yaml:"buffer_lines"`
}

type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	DeviceName     string        `yaml:"device_name"`
	StreamInterval time.Duration `yaml:"stream_interval"`
	AcceptTimeout  time.Duration `yaml:"accept_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxClients     int           `yaml:"max_clients"`
}

type GPSConfig struct {
	Enable       bool          `yaml:"enable"`
	Source       string        `yaml:"source"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	GPSDAddr     string        `yaml:"gpsd_addr"`
	MinInterval  time.Duration `yaml:"min_interval"`
	MinDistanceM float64       `yaml:"min_distance_m"`
	Sim          SimConfig     `yaml:"sim"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
}

type NotifyConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Enable      bool   `yaml:"enable"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type NMEAUDPConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

type LEDConfig struct {
	Enable     bool          `yaml:"enable"`
	Pin        int           `yaml:"pin"`
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

var validBauds = map[int]struct{}{4800: {}, 9600: {}, 19200: {}, 38400: {}, 57600: {}, 115200: {}}

// Default returns the configuration used when no file exists. Load starts
// from it too, so keys absent from the file keep these values.
func Default() Config {
	var cfg Config
	cfg.GPS.Enable = true
	cfg.GPS.Sim.AltM = 100
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates path. A missing file is not an error: defaults
// are returned with found=false.
func Load(path string) (cfg Config, found bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), false, nil
		}
		return Config{}, false, err
	}

	cfg = Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, true, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if len(cfg.Log.Destinations) == 0 {
		cfg.Log.Destinations = []string{"stdout"}
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "gpstether.log"
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":2947"
	}
	if cfg.Server.DeviceName == "" {
		cfg.Server.DeviceName = gpsd.DefaultDeviceName
	}
	if cfg.Server.StreamInterval <= 0 {
		cfg.Server.StreamInterval = 1 * time.Second
	}
	if cfg.Server.AcceptTimeout <= 0 {
		cfg.Server.AcceptTimeout = 1 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 1 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 5 * time.Second
	}

	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "nmea"
	}
	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.GPSDAddr == "" {
		cfg.GPS.GPSDAddr = "127.0.0.1:2947"
	}
	if cfg.GPS.MinInterval <= 0 {
		cfg.GPS.MinInterval = 200 * time.Millisecond
	}
	if cfg.GPS.MinDistanceM <= 0 {
		cfg.GPS.MinDistanceM = 1
	}
	if cfg.GPS.Sim.RadiusM <= 0 {
		cfg.GPS.Sim.RadiusM = 500
	}
	if cfg.GPS.Sim.Period <= 0 {
		cfg.GPS.Sim.Period = 120 * time.Second
	}
	if cfg.GPS.Sim.Interval <= 0 {
		cfg.GPS.Sim.Interval = 1 * time.Second
	}

	if cfg.Notify.MQTT.ClientID == "" {
		cfg.Notify.MQTT.ClientID = "gpstether"
	}
	if cfg.Notify.MQTT.TopicPrefix == "" {
		cfg.Notify.MQTT.TopicPrefix = "gpstether"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.NMEAUDP.Interval <= 0 {
		cfg.NMEAUDP.Interval = 1 * time.Second
	}

	if cfg.LED.Interval <= 0 {
		cfg.LED.Interval = 500 * time.Millisecond
	}
	if cfg.LED.StaleAfter <= 0 {
		cfg.LED.StaleAfter = 3 * time.Second
	}
}

func (cfg *Config) validate() error {
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for _, d := range cfg.Log.Destinations {
		if _, err := logger.ParseDestination(d); err != nil {
			return fmt.Errorf("log.destinations: %w", err)
		}
	}

	if cfg.Server.MaxClients < 0 {
		return fmt.Errorf("server.max_clients must be >= 0")
	}
	if _, err := gpsd.ValidDeviceName(cfg.Server.DeviceName); err != nil {
		return fmt.Errorf("server.device_name must be 1 to 64 printable ASCII characters")
	}

	switch cfg.GPS.Source {
	case "nmea", "gpsd", "sim":
	default:
		return fmt.Errorf("gps.source must be one of 'nmea', 'gpsd', 'sim'")
	}
	if cfg.GPS.Source == "nmea" {
		if _, ok := validBauds[cfg.GPS.Baud]; !ok {
			return fmt.Errorf("gps.baud %d is not supported", cfg.GPS.Baud)
		}
	}
	if cfg.GPS.Sim.CenterLatDeg < -90 || cfg.GPS.Sim.CenterLatDeg > 90 {
		return fmt.Errorf("gps.sim.center_lat_deg must be within [-90,90]")
	}
	if cfg.GPS.Sim.CenterLonDeg < -180 || cfg.GPS.Sim.CenterLonDeg > 180 {
		return fmt.Errorf("gps.sim.center_lon_deg must be within [-180,180]")
	}

	if cfg.Notify.MQTT.Enable && strings.TrimSpace(cfg.Notify.MQTT.Broker) == "" {
		return fmt.Errorf("notify.mqtt.broker is required when notify.mqtt.enable is true")
	}
	if cfg.Notify.MQTT.QoS < 0 || cfg.Notify.MQTT.QoS > 2 {
		return fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2")
	}

	if cfg.NMEAUDP.Enable && strings.TrimSpace(cfg.NMEAUDP.Dest) == "" {
		return fmt.Errorf("nmea_udp.dest is required when nmea_udp.enable is true")
	}

	if cfg.LED.Enable && cfg.LED.Pin <= 0 {
		return fmt.Errorf("led.pin must be > 0 when led.enable is true")
	}

	return nil
}
