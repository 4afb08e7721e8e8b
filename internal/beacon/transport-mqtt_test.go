package beacon

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"

	"github.com/geovan/vehicle-node/log2"
)

// paho trace hooks take this shape
var _ mqtt.Logger = (*log2.Log)(nil)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }

type fakeMqttClient struct {
	mu          sync.Mutex
	connected   bool
	disconnects int
}

func (c *fakeMqttClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMqttClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeMqttClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return fakeToken{}
}

func (c *fakeMqttClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeMqttClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return fakeToken{}
}

func (c *fakeMqttClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}

func (c *fakeMqttClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}

func (c *fakeMqttClient) Unsubscribe(topics ...string) mqtt.Token { return fakeToken{} }

func (c *fakeMqttClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeMqttClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Close on an established session must tear it down and return, not
// wait for a disconnect that nobody else performs.
func TestTransportCloseDisconnects(t *testing.T) {
	t.Parallel()

	m := &fakeMqttClient{connected: true}
	tr := &transportMqtt{
		log:    log2.NewTest(t, log2.LDebug),
		m:      m,
		mopt:   mqtt.NewClientOptions(),
		stopCh: make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("transport close did not return")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.False(t, m.connected)
	assert.NotZero(t, m.disconnects)
}
