package notify

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gpstether/internal/fix"
	"gpstether/internal/logger"
)

// Payloads of the retained service topic.
const (
	PayloadStarted = "started"
	PayloadStopped = "stopped"
)

const publishTimeout = 2 * time.Second

// MQTTConfig selects the broker and the topic prefix.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes events to <prefix>/service and <prefix>/gps.
type MQTT struct {
	conf   MQTTConfig
	pub    publisher
	client mqtt.Client
	parent logger.Writer
}

// NewMQTT connects to the broker. The service topic carries a retained
// "stopped" will so subscribers see an unclean exit.
func NewMQTT(conf MQTTConfig, parent logger.Writer) (*MQTT, error) {
	if conf.TopicPrefix == "" {
		conf.TopicPrefix = "gpstether"
	}
	if conf.ClientID == "" {
		conf.ClientID = "gpstether"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientID)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetWill(conf.TopicPrefix+"/service", PayloadStopped, conf.QoS, true)

	m := &MQTT{conf: conf, parent: parent}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.Log(logger.Info, "connected to %s", conf.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.Log(logger.Warn, "connection lost: %v", err)
	})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	m.pub = m.client
	return m, nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// Log implements logger.Writer.
func (m *MQTT) Log(level logger.Level, format string, args ...interface{}) {
	if m.parent == nil {
		return
	}
	m.parent.Log(level, "[mqtt] "+format, args...)
}

func (m *MQTT) ServiceStatus(running bool) {
	payload := PayloadStopped
	if running {
		payload = PayloadStarted
	}
	m.publish("service", true, payload)
}

func (m *MQTT) GPSStatus(text string) {
	m.publish("gps", false, text)
}

func (m *MQTT) Location(f fix.Fix) {
	m.publish("gps", false, f.String())
}

func (m *MQTT) publish(sub string, retained bool, payload string) {
	topic := m.conf.TopicPrefix + "/" + sub
	token := m.pub.Publish(topic, m.conf.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.Log(logger.Warn, "publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		m.Log(logger.Warn, "publish to %s: %v", topic, err)
	}
}
