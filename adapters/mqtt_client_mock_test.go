package adapters

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockToken is a testify mock of mqtt.Token, closing doneCh immediately so
// callers blocked on Done() never hang in a unit test.
type MockToken struct {
	mock.Mock
	doneCh chan struct{}
	err    error
}

func NewMockToken(err error) *MockToken {
	t := &MockToken{doneCh: make(chan struct{}), err: err}
	close(t.doneCh)
	return t
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *MockToken) Done() <-chan struct{}            { return t.doneCh }
func (t *MockToken) Error() error                     { return t.err }

// MockMQTTClient is a testify mock of mqtt.Client.
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) IsConnectionOpen() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	return m.Called().Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(topic, qos, callback).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(filters, callback).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	return m.Called(topics).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	m.Called(topic, callback)
}

func (m *MockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return m.Called().Get(0).(mqtt.ClientOptionsReader)
}

// MockMessage is a testify mock of mqtt.Message, for driving Subscribe
// handlers in tests.
type MockMessage struct {
	mock.Mock
}

func (m *MockMessage) Duplicate() bool   { return m.Called().Bool(0) }
func (m *MockMessage) Qos() byte         { return m.Called().Get(0).(byte) }
func (m *MockMessage) Retained() bool    { return m.Called().Bool(0) }
func (m *MockMessage) Topic() string     { return m.Called().String(0) }
func (m *MockMessage) MessageID() uint16 { return m.Called().Get(0).(uint16) }
func (m *MockMessage) Payload() []byte   { return m.Called().Get(0).([]byte) }
func (m *MockMessage) Ack()              { m.Called() }
