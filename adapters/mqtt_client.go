// Package adapters implements the application package's collaborator
// interfaces against concrete third-party clients. MQTTClient wraps
// github.com/eclipse/paho.mqtt.golang, generalizing marino39-tuya-to-mqtt's
// adapters.MQTTClient from a single fire-and-forget publisher into the full
// connect/disconnect/subscribe-with-LWT surface edgenode and hostapp need.
package adapters

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"sparkplug/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// NewClientFunc constructs the underlying paho client, matching the
// teacher's injection point so tests can substitute a mock client without
// touching a real broker.
type NewClientFunc func(*mqtt.ClientOptions) mqtt.Client

// MQTTClientParams configures an MQTTClient. BrokerURL is required;
// everything else, NewClientFunc included, has a usable default via
// EnsureDefaults.
type MQTTClientParams struct {
	BrokerURL      string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	NewClientFunc  NewClientFunc
	Log            zerolog.Logger
}

// EnsureDefaults fills unset fields with the teacher's defaults.
func (p *MQTTClientParams) EnsureDefaults() {
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = 10 * time.Second
	}
	if p.PublishTimeout <= 0 {
		p.PublishTimeout = 5 * time.Second
	}
	if p.NewClientFunc == nil {
		p.NewClientFunc = mqtt.NewClient
	}
}

// MQTTClient is a paho.mqtt.golang-backed application.MQTTClient. Exported
// state is guarded by mu; message-count bookkeeping uses atomics so
// Status() never blocks on an in-flight publish, mirroring the teacher's
// adapters.MQTTClient.
type MQTTClient struct {
	params MQTTClientParams

	mu     sync.RWMutex
	client mqtt.Client

	connected atomic.Bool
	msgCount  atomic.Uint64
	lastPub   atomic.Pointer[time.Time]

	connLostHandler func(err error)
}

// NewMQTTClient returns an MQTTClient ready to Connect.
func NewMQTTClient(params MQTTClientParams) *MQTTClient {
	params.EnsureDefaults()
	return &MQTTClient{params: params}
}

var _ application.MQTTClient = (*MQTTClient)(nil)

func buildTLSConfig(opts *application.TLSOptions) (*tls.Config, error) {
	if opts == nil {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("adapters: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("adapters: no certificates found in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("adapters: load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Connect opens the MQTT connection, arming the Last-Will-and-Testament
// given in opts so the broker publishes it if this process disconnects
// ungracefully (spec §4.4's NDEATH-as-LWT requirement).
func (c *MQTTClient) Connect(ctx context.Context, opts application.ConnectOptions) error {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(c.params.BrokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	if opts.KeepAlive > 0 {
		clientOpts.SetKeepAlive(opts.KeepAlive)
	}
	if opts.WillTopic != "" {
		clientOpts.SetBinaryWill(opts.WillTopic, opts.WillPayload, opts.WillQoS, opts.WillRetain)
	}
	tlsCfg, err := buildTLSConfig(opts.TLS)
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		clientOpts.SetTLSConfig(tlsCfg)
	}

	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		c.mu.RLock()
		handler := c.connLostHandler
		c.mu.RUnlock()
		if handler != nil {
			handler(err)
		}
	})
	clientOpts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.connected.Store(true)
	})

	client := c.params.NewClientFunc(clientOpts)

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &application.TimeoutError{Op: "Connect", Budget: c.params.ConnectTimeout}
	}
	if err := token.Error(); err != nil {
		code := 0
		if ct, ok := token.(*mqtt.ConnectToken); ok {
			code = int(ct.ReturnCode())
		}
		return &application.TransportError{Op: "Connect", Code: code, Err: err}
	}
	c.connected.Store(true)
	return nil
}

// Disconnect gracefully closes the connection, quiescing for at most
// 250ms, or for the context's remaining time if that is shorter.
func (c *MQTTClient) Disconnect(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return application.ErrNotConnected
	}

	quiesce := uint(250)
	if dl, ok := ctx.Deadline(); ok {
		if ms := time.Until(dl).Milliseconds(); ms > 0 && ms < int64(quiesce) {
			quiesce = uint(ms)
		}
	}
	client.Disconnect(quiesce)
	c.connected.Store(false)
	return nil
}

// Publish sends a message, blocking until the broker acknowledges it or ctx
// is done.
func (c *MQTTClient) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !c.connected.Load() {
		return application.ErrNotConnected
	}

	token := client.Publish(topic, qos, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &application.TimeoutError{Op: "Publish", Budget: c.params.PublishTimeout}
	}
	if err := token.Error(); err != nil {
		return &application.TransportError{Op: "Publish", Err: err}
	}

	now := time.Now()
	c.lastPub.Store(&now)
	c.msgCount.Add(1)
	return nil
}

// Subscribe registers handler for messages matching topicFilter. handler is
// invoked on paho's own delivery goroutine, outside any session lock.
func (c *MQTTClient) Subscribe(ctx context.Context, topicFilter string, qos byte, handler application.MessageHandler) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !c.connected.Load() {
		return application.ErrNotConnected
	}

	token := client.Subscribe(topicFilter, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(pahoMessage{msg})
	})
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &application.TimeoutError{Op: "Subscribe", Budget: c.params.ConnectTimeout}
	}
	if err := token.Error(); err != nil {
		return &application.TransportError{Op: "Subscribe", Err: err}
	}
	return nil
}

// SetConnectionLostHandler installs the callback invoked when the
// underlying transport reports a connection loss.
func (c *MQTTClient) SetConnectionLostHandler(handler func(err error)) {
	c.mu.Lock()
	c.connLostHandler = handler
	c.mu.Unlock()
}

// IsConnected reports the last known connection state.
func (c *MQTTClient) IsConnected() bool {
	return c.connected.Load()
}

// Status returns a snapshot of connection and throughput state.
func (c *MQTTClient) Status() application.MQTTStatus {
	status := application.MQTTStatus{
		Connected:         c.connected.Load(),
		MessagesPublished: c.msgCount.Load(),
	}
	if t := c.lastPub.Load(); t != nil {
		status.LastPublishedAt = *t
	}
	return status
}

// pahoMessage adapts mqtt.Message to application.MQTTMessage.
type pahoMessage struct {
	msg mqtt.Message
}

func (m pahoMessage) Topic() string   { return m.msg.Topic() }
func (m pahoMessage) Payload() []byte { return m.msg.Payload() }
func (m pahoMessage) Qos() byte       { return m.msg.Qos() }
func (m pahoMessage) Retained() bool  { return m.msg.Retained() }
