package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes and subscriptions. Methods the sink does not
// use fall through to the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu         sync.Mutex
	published  []published
	handlers   map[string]mqtt.MessageHandler
	publishErr error
	timedOut   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: c.publishErr, timedOut: c.timedOut}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return &fakeToken{}
}

func (c *fakeClient) deliver(filter, topic string, payload []byte) {
	c.mu.Lock()
	cb := c.handlers[filter]
	c.mu.Unlock()
	cb(c, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestMQTTSink_Topics(t *testing.T) {
	client := newFakeClient()
	sink := NewMQTTSink(client, "bodymap/", 1)

	e := New("marker.confirmed", "patient:p1:markers", nil)
	e.PatientID = "p1"
	require.NoError(t, sink.Emit(context.Background(), e))
	require.NoError(t, sink.Emit(context.Background(), New("marker.store_error", "markers", nil)))

	require.Len(t, client.published, 2)
	assert.Equal(t, "bodymap/patients/p1/marker.confirmed", client.published[0].topic)
	assert.Equal(t, byte(1), client.published[0].qos)
	assert.Equal(t, "bodymap/events", client.published[1].topic)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.published[0].payload, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "p1", decoded.PatientID)
}

func TestMQTTSink_Errors(t *testing.T) {
	client := newFakeClient()
	sink := NewMQTTSink(client, "bodymap", 0)

	client.publishErr = errors.New("not connected")
	err := sink.Emit(context.Background(), New("x", "t", nil))
	assert.ErrorIs(t, err, client.publishErr)

	client.publishErr = nil
	client.timedOut = true
	err = sink.Emit(context.Background(), New("x", "t", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestSubscribe(t *testing.T) {
	client := newFakeClient()
	var (
		got     []string
		reports []error
	)
	handler := func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		if string(payload) == "bad" {
			return errors.New("cannot decode")
		}
		return nil
	}
	onError := func(_ string, err error) { reports = append(reports, err) }

	require.NoError(t, Subscribe(client, "bodymap/ingest/+/patients/+/mentions", 1, handler, onError))

	client.deliver("bodymap/ingest/+/patients/+/mentions", "bodymap/ingest/a/patients/p/mentions", []byte("ok"))
	client.deliver("bodymap/ingest/+/patients/+/mentions", "bodymap/ingest/a/patients/p/mentions", []byte("bad"))

	assert.Len(t, got, 2)
	require.Len(t, reports, 1)
	assert.EqualError(t, reports[0], "cannot decode")
}
