// Package edgenode implements the publisher role of the Sparkplug B
// session protocol: connect/birth/data/command-RX/rebirth/death for a
// single edge node and its devices, translated from
// original_source/src/edge_node.cpp and include/sparkplug/edge_node.hpp.
package edgenode

import (
	"time"

	"sparkplug/application"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/rs/zerolog"
)

// CommandCallback receives a parsed NCMD/DCMD message outside any Node
// lock, mirroring original_source's command_callback.
type CommandCallback func(t topic.Topic, p *sparkplugb.Payload)

// Config configures a Node. BrokerURL, ClientID, GroupID, and EdgeNodeID
// are required; everything else has a sane default via EnsureDefaults.
type Config struct {
	BrokerURL    string
	ClientID     string
	GroupID      string
	EdgeNodeID   string
	Username     string
	Password     string
	TLS          *application.TLSOptions
	KeepAlive    time.Duration
	CleanSession bool

	DataQoS  byte
	DeathQoS byte

	// PrimaryHostID, when set, gates PublishBirth/PublishDeviceBirth on
	// that host's STATE being online (spec invariant I7).
	PrimaryHostID string
	// PrimaryHostWaitTimeout bounds how long Connect polls for the
	// primary host's retained STATE message before giving up and
	// returning anyway; zero or negative selects the 10s default.
	PrimaryHostWaitTimeout time.Duration

	// CommandQoS is the subscription QoS for NCMD/DCMD. Defaults to 0,
	// matching original_source's publish_command_message; set to 1 if
	// command delivery needs to survive a broker-side redelivery gap.
	CommandQoS byte

	ConnectTimeout    time.Duration
	SubscribeTimeout  time.Duration
	DisconnectTimeout time.Duration

	CommandCallback CommandCallback

	Log zerolog.Logger
}

// EnsureDefaults fills unset fields with the defaults original_source's
// EdgeNode::Config documents (data_qos=0, death_qos=1, command_qos=0,
// keep_alive=60s). CommandQoS is left at its zero value by design: 0 is
// the documented default, not an "unset" sentinel.
func (c *Config) EnsureDefaults() {
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.DeathQoS == 0 {
		c.DeathQoS = 1
	}
	if c.PrimaryHostWaitTimeout <= 0 {
		c.PrimaryHostWaitTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = 11 * time.Second
	}
}
