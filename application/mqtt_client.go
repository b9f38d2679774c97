// Package application defines the transport boundary the rest of the
// module builds on: the MQTTClient interface an edge node or host
// application session publishes and subscribes through, and the shared
// option/status types that cross that boundary. This mirrors
// marino39-tuya-to-mqtt's application package, widened to the full
// LWT/TLS/keep-alive surface the Sparkplug B session protocol needs.
package application

import (
	"context"
	"time"
)

// MQTTMessage is a received message handed to a subscription's handler.
type MQTTMessage interface {
	Topic() string
	Payload() []byte
	Qos() byte
	Retained() bool
}

// MessageHandler is invoked for each message delivered to a subscription.
// It runs on the transport's callback goroutine, never while any session
// lock is held (spec §5).
type MessageHandler func(msg MQTTMessage)

// TLSOptions configures a TLS connection to the broker. All fields are
// optional; an empty TLSOptions means "use the system trust store, verify
// the server certificate".
type TLSOptions struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	KeyPassword        string
	CipherSuites       []string
	InsecureSkipVerify bool
}

// ConnectOptions carries everything needed to open an MQTT connection,
// including the Last-Will-and-Testament message the broker will publish
// if this client disconnects ungracefully.
type ConnectOptions struct {
	ClientID     string
	Username     string
	Password     string
	KeepAlive    time.Duration
	CleanSession bool
	TLS          *TLSOptions

	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// MQTTStatus is a snapshot of the transport's connection and throughput
// state, modeled on the teacher's application.MQTTStatus.
type MQTTStatus struct {
	Connected         bool
	MessagesPublished uint64
	LastPublishedAt   time.Time
}

// MQTTClient abstracts an asynchronous MQTT client: connect/disconnect,
// publish, subscribe, and connection-loss notification. Implementations
// must be safe for concurrent use and must never invoke callbacks while
// holding any lock that a public method also needs (spec §4.3, §5).
type MQTTClient interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
	Subscribe(ctx context.Context, topicFilter string, qos byte, handler MessageHandler) error
	SetConnectionLostHandler(handler func(err error))
	IsConnected() bool
	Status() MQTTStatus
}
