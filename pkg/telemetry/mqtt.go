package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/itohio/ledavg/pkg/config"
)

// publishTimeout bounds how long a report waits for the broker.
const publishTimeout = 2 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each valid reading as JSON to <topic>/channel/<a|b>.
type MQTTSink struct {
	client publisher
	close  func()
	topic  string
	qos    byte
}

type mqttPayload struct {
	Raw       uint16  `json:"raw"`
	Voltage   float32 `json:"voltage"`
	Timestamp int64   `json:"timestamp"` // unix micros
}

// DefaultClientID returns a fresh client id.
func DefaultClientID() string {
	return "ledavg-" + uuid.NewString()
}

// NewMQTT connects to cfg.Broker.
func NewMQTT(cfg config.MQTTConfig) (*MQTTSink, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID()
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	s := newMQTTSink(client, cfg.Topic, cfg.QoS)
	s.close = func() { client.Disconnect(250) }
	return s, nil
}

func newMQTTSink(client publisher, topic string, qos byte) *MQTTSink {
	if topic == "" {
		topic = "ledavg"
	}
	return &MQTTSink{client: client, topic: strings.TrimSuffix(topic, "/"), qos: qos}
}

// Topic returns the topic for a channel.
func (s *MQTTSink) Topic(channel string) string {
	return fmt.Sprintf("%s/channel/%s", s.topic, strings.ToLower(channel))
}

// Publish sends one message per valid reading and waits for each publish
// to complete.
func (s *MQTTSink) Publish(r Report) error {
	for _, rd := range r.Readings {
		if !rd.Valid {
			continue
		}
		b, err := json.Marshal(mqttPayload{
			Raw:       rd.Raw,
			Voltage:   rd.Volts,
			Timestamp: r.Time.UnixMicro(),
		})
		if err != nil {
			return err
		}

		token := s.client.Publish(s.Topic(rd.Channel), s.qos, false, b)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("mqtt publish %s: timed out", s.Topic(rd.Channel))
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", s.Topic(rd.Channel), err)
		}
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
