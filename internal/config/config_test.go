package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false")
	}
	if !cfg.GPS.Enable || cfg.Server.Listen != ":2947" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  enable: true\n")
	cfg, found, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true")
	}

	if cfg.Server.Listen != ":2947" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.Server.DeviceName != "Android GPS Device" {
		t.Fatalf("device_name=%q", cfg.Server.DeviceName)
	}
	if cfg.Server.StreamInterval != time.Second || cfg.Server.WriteTimeout != 5*time.Second {
		t.Fatalf("server timings=%+v", cfg.Server)
	}
	if cfg.GPS.Source != "nmea" || cfg.GPS.Baud != 9600 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.GPS.MinInterval != 200*time.Millisecond || cfg.GPS.MinDistanceM != 1 {
		t.Fatalf("throttle=%s/%v", cfg.GPS.MinInterval, cfg.GPS.MinDistanceM)
	}
	if cfg.Notify.MQTT.TopicPrefix != "gpstether" {
		t.Fatalf("topic_prefix=%q", cfg.Notify.MQTT.TopicPrefix)
	}
	if cfg.Log.Level != "info" || len(cfg.Log.Destinations) != 1 || cfg.Log.Destinations[0] != "stdout" {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	path := writeTempConfig(t, `
log:
  level: debug
  destinations: [stdout, file]
  file: /tmp/x.log
server:
  listen: "127.0.0.1:3000"
  device_name: "My Receiver"
  stream_interval: 250ms
  max_clients: 4
gps:
  enable: true
  source: SIM
  sim:
    center_lat_deg: 45.5
    center_lon_deg: -122.9
notify:
  mqtt:
    enable: true
    broker: tcp://localhost:1883
    qos: 1
nmea_udp:
  enable: true
  dest: 192.168.10.255:10110
led:
  enable: true
  pin: 17
`)
	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:3000" || cfg.Server.StreamInterval != 250*time.Millisecond || cfg.Server.MaxClients != 4 {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.GPS.Source != "sim" || cfg.GPS.Sim.CenterLatDeg != 45.5 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.Notify.MQTT.Broker != "tcp://localhost:1883" || cfg.Notify.MQTT.QoS != 1 {
		t.Fatalf("mqtt=%+v", cfg.Notify.MQTT)
	}
	if cfg.NMEAUDP.Dest != "192.168.10.255:10110" || cfg.NMEAUDP.Interval != time.Second {
		t.Fatalf("nmea_udp=%+v", cfg.NMEAUDP)
	}
	if cfg.LED.Pin != 17 {
		t.Fatalf("led=%+v", cfg.LED)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"BadLevel", "log:\n  level: loud\n", "log.level: invalid log level 'loud'"},
		{"BadDestination", "log:\n  destinations: [syslog]\n", "log.destinations: invalid log destination 'syslog'"},
		{"NegativeMaxClients", "server:\n  max_clients: -1\n", "server.max_clients must be >= 0"},
		{"BadDeviceName", "server:\n  device_name: \"\\u00e9\"\n", "server.device_name must be 1 to 64 printable ASCII characters"},
		{"BadSource", "gps:\n  source: radio\n", "gps.source must be one of 'nmea', 'gpsd', 'sim'"},
		{"BadBaud", "gps:\n  baud: 1234\n", "gps.baud 1234 is not supported"},
		{"BadSimLat", "gps:\n  source: sim\n  sim:\n    center_lat_deg: 91\n", "gps.sim.center_lat_deg must be within [-90,90]"},
		{"MQTTNeedsBroker", "notify:\n  mqtt:\n    enable: true\n", "notify.mqtt.broker is required when notify.mqtt.enable is true"},
		{"MQTTBadQoS", "notify:\n  mqtt:\n    qos: 3\n", "notify.mqtt.qos must be 0, 1 or 2"},
		{"UDPNeedsDest", "nmea_udp:\n  enable: true\n", "nmea_udp.dest is required when nmea_udp.enable is true"},
		{"LEDNeedsPin", "led:\n  enable: true\n", "led.pin must be > 0 when led.enable is true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, found, err := Load(writeTempConfig(t, "server: [\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !found {
		t.Fatalf("expected found=true")
	}
}

func TestLoad_AbsentKeysKeepDefaults(t *testing.T) {
	cfg, _, err := Load(writeTempConfig(t, "web:\n  enable: true\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.GPS.Enable {
		t.Fatalf("gps disabled by an unrelated section")
	}
	if cfg.GPS.Sim.AltM != 100 {
		t.Fatalf("sim alt=%v", cfg.GPS.Sim.AltM)
	}
	if len(cfg.Log.Destinations) != 1 || cfg.Log.Destinations[0] != "stdout" {
		t.Fatalf("destinations=%v", cfg.Log.Destinations)
	}

	cfg, _, err = Load(writeTempConfig(t, "gps:\n  enable: false\n  sim:\n    alt_m: 0\nlog:\n  destinations: [file]\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Enable {
		t.Fatalf("explicit gps.enable=false ignored")
	}
	if cfg.GPS.Sim.AltM != 0 {
		t.Fatalf("sea-level sim alt=%v", cfg.GPS.Sim.AltM)
	}
	if len(cfg.Log.Destinations) != 1 || cfg.Log.Destinations[0] != "file" {
		t.Fatalf("destinations=%v", cfg.Log.Destinations)
	}
}
