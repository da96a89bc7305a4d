package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/sample"
)

const (
	DefaultTopic      = "cryotherm"
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

type pahoPublisher struct {
	client mqtt.Client
}

// DialMQTT connects to the broker in cfg.
func DialMQTT(cfg config.MQTTConfig) (Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &pahoPublisher{client: client}, nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s: timed out", topic)
	}
	return token.Error()
}

func (p *pahoPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}

// WindowMessage is the JSON payload published for every averaged window.
type WindowMessage struct {
	Session     string    `json:"session"`
	Channel     string    `json:"channel"`
	Index       int       `json:"index"`
	Count       int       `json:"count"`
	Partial     bool      `json:"partial,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Voltage     float64   `json:"voltage"`
	Resistance  float64   `json:"resistance"`
	Temperature float64   `json:"temperature"`
	Unit        string    `json:"temperature_unit"`
}

// MQTT publishes averaged windows to <topic>/<channel>. Raw series are not
// published.
type MQTT struct {
	pub     Publisher
	topic   string
	session string
	unit    string
}

// NewMQTT creates an MQTT sink on pub.
func NewMQTT(pub Publisher, topic string, info SessionInfo) *MQTT {
	topic = strings.TrimSuffix(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTT{pub: pub, topic: topic, session: info.ID, unit: sample.TemperatureUnit(info.TemperatureScale)}
}

// Topic returns the topic a channel's windows go to.
func (m *MQTT) Topic(channel string) string {
	return m.topic + "/" + channel
}

func (m *MQTT) WriteSeries(sample.Series) error {
	return nil
}

func (m *MQTT) WriteWindows(channel string, windows []sample.Window) error {
	topic := m.Topic(channel)
	for _, w := range windows {
		b, err := json.Marshal(WindowMessage{
			Session:     m.session,
			Channel:     channel,
			Index:       w.Index,
			Count:       w.Count,
			Partial:     w.Partial(),
			Timestamp:   w.Timestamp,
			Voltage:     w.Voltage,
			Resistance:  w.Resistance,
			Temperature: w.Temperature,
			Unit:        m.unit,
		})
		if err != nil {
			return err
		}
		if err := m.pub.Publish(topic, b); err != nil {
			return fmt.Errorf("publish window %d: %w", w.Index, err)
		}
	}
	return nil
}

func (m *MQTT) Close() error {
	return m.pub.Close()
}
