// Package hostapp implements the consumer/commander role of the
// Sparkplug B session protocol: a SCADA-style Host Application that
// subscribes to Edge Node traffic, tracks per-node/per-device birth and
// sequence state, and publishes STATE and command messages, translated
// from original_source/src/host_application.cpp and
// include/sparkplug/host_application.hpp.
package hostapp

import (
	"time"

	"sparkplug/application"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/rs/zerolog"
)

// MessageCallback receives every parsed Sparkplug B message the App
// observes, including a synthetic STATE topic (empty payload) for
// STATE deliveries, mirroring original_source's message_callback.
// It runs outside any App lock.
type MessageCallback func(t topic.Topic, p *sparkplugb.Payload)

// Config configures an App. BrokerURL, ClientID, and HostID are
// required; everything else has a sane default via EnsureDefaults.
type Config struct {
	BrokerURL string
	ClientID  string
	HostID    string
	Username  string
	Password  string
	TLS       *application.TLSOptions

	QoS          byte
	KeepAlive    time.Duration
	CleanSession bool

	// ValidateSequence enables per-node/per-device birth and sequence
	// tracking via the validator package (spec §4.7). Disabling it
	// skips validation bookkeeping entirely but messages still reach
	// MessageCallback.
	ValidateSequence bool

	ConnectTimeout    time.Duration
	SubscribeTimeout  time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration

	MessageCallback MessageCallback

	Log zerolog.Logger
}

// EnsureDefaults fills unset fields with the defaults
// original_source's HostApplication::Config documents (qos=1,
// keep_alive=60s) plus the operation timeouts. CleanSession is left as
// the caller set it; its zero value is false.
func (c *Config) EnsureDefaults() {
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = 11 * time.Second
	}
}
