package edgenode

import (
	"context"

	"sparkplug/application"

	"github.com/stretchr/testify/mock"
)

// mockMessage is a stub application.MQTTMessage for feeding synthetic
// deliveries into handleMessage in tests.
type mockMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (m mockMessage) Topic() string   { return m.topic }
func (m mockMessage) Payload() []byte { return m.payload }
func (m mockMessage) Qos() byte       { return m.qos }
func (m mockMessage) Retained() bool  { return false }

// mockMQTTClient is a testify mock of application.MQTTClient, exercised
// directly (no real paho client), capturing the last Subscribe handler
// for tests that need to simulate a delivered message.
type mockMQTTClient struct {
	mock.Mock
	lastHandler application.MessageHandler
}

func (m *mockMQTTClient) Connect(ctx context.Context, opts application.ConnectOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockMQTTClient) Disconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockMQTTClient) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	return m.Called(ctx, topic, qos, retain, payload).Error(0)
}

func (m *mockMQTTClient) Subscribe(ctx context.Context, topicFilter string, qos byte, handler application.MessageHandler) error {
	m.lastHandler = handler
	return m.Called(ctx, topicFilter, qos, handler).Error(0)
}

func (m *mockMQTTClient) SetConnectionLostHandler(handler func(err error)) {
	m.Called(handler)
}

func (m *mockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *mockMQTTClient) Status() application.MQTTStatus {
	return m.Called().Get(0).(application.MQTTStatus)
}
