package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultPublishTimeout = 5 * time.Second

// MessageHandler processes one inbound MQTT message.
type MessageHandler func(topic string, payload []byte) error

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTTSink publishes events to <prefix>/patients/<patient_id>/<event type>.
// Events without a patient go to <prefix>/events.
type MQTTSink struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTSink(client mqtt.Client, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: defaultPublishTimeout,
	}
}

func (s *MQTTSink) topicFor(e Event) string {
	if e.PatientID == "" {
		return s.prefix + "/events"
	}
	return fmt.Sprintf("%s/patients/%s/%s", s.prefix, e.PatientID, e.Type)
}

func (s *MQTTSink) Emit(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := s.topicFor(e)
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. Handler errors are reported through
// onError and do not stop the subscription.
func Subscribe(client mqtt.Client, topic string, qos byte, handler MessageHandler, onError func(topic string, err error)) error {
	token := client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil && onError != nil {
			onError(msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	return nil
}
