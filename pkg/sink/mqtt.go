package sink

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes snapshots as JSON to a single topic.
type MQTT struct {
	client mqttPublisher
	topic  string
	qos    byte
}

// NewMQTT connects to cfg.Broker.
func NewMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	if cfg.Topic == "" {
		return nil, pkgerrors.New("mqtt: topic must not be empty")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, pkgerrors.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "mqtt: connect to %s", cfg.Broker)
	}
	return newMQTTWithClient(c, cfg.Topic, cfg.QoS), nil
}

func newMQTTWithClient(c mqttPublisher, topic string, qos byte) *MQTT {
	return &MQTT{client: c, topic: topic, qos: qos}
}

func (m *MQTT) Publish(s calibration.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(err, "mqtt: marshal snapshot")
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return pkgerrors.Errorf("mqtt: publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return pkgerrors.Wrapf(err, "mqtt: publish to %s", m.topic)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(mqttQuiesceMillis)
	return nil
}
