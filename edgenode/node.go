package edgenode

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sparkplug/application"
	"sparkplug/payload"
	"sparkplug/sequence"
	"sparkplug/sparkplugb"
	"sparkplug/topic"
)

type deviceState struct {
	online           bool
	lastBirthPayload []byte
}

// DeviceStatus is a read-only snapshot of a single device's session state.
type DeviceStatus struct {
	Online bool
}

// Status is a read-only snapshot of the Node's session state, for
// introspection without mutating anything (mirrors original_source's
// example debug tooling).
type Status struct {
	Connected         bool
	Seq               uint8
	BdSeq             uint64
	PrimaryHostOnline bool
	Devices           map[string]DeviceStatus
}

// Node is the publisher-role Sparkplug B session for one edge node. All
// exported methods are safe for concurrent use; a single mu protects the
// mutable fields below, released before every blocking transport call so
// callbacks delivered on the transport's own goroutine never deadlock
// against it.
type Node struct {
	cfg    Config
	client application.MQTTClient

	mu                sync.Mutex
	connected         bool
	primaryHostOnline bool
	seq               sequence.Counter
	bdSeq             sequence.BdSeq
	lastBirthPayload  []byte
	deathPayload      []byte
	devices           map[string]*deviceState
}

// New returns a Node bound to client, which must implement
// application.MQTTClient (normally an *adapters.MQTTClient). The Node
// does not connect until Connect is called.
func New(cfg Config, client application.MQTTClient) (*Node, error) {
	if cfg.BrokerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("edgenode: BrokerURL and ClientID are required")
	}
	if cfg.GroupID == "" || cfg.EdgeNodeID == "" {
		return nil, fmt.Errorf("edgenode: GroupID and EdgeNodeID are required")
	}
	if client == nil {
		return nil, fmt.Errorf("edgenode: client is required")
	}
	cfg.EnsureDefaults()

	return &Node{
		cfg:     cfg,
		client:  client,
		devices: map[string]*deviceState{},
	}, nil
}

func (n *Node) nodeTopic(mt topic.MessageType) topic.Topic {
	return topic.Topic{GroupID: n.cfg.GroupID, MessageType: mt, EdgeNodeID: n.cfg.EdgeNodeID}
}

func (n *Node) deviceTopic(mt topic.MessageType, device string) topic.Topic {
	return topic.Topic{GroupID: n.cfg.GroupID, MessageType: mt, EdgeNodeID: n.cfg.EdgeNodeID, DeviceID: device}
}

func deathPayloadBytes(bdSeqVal uint64) ([]byte, error) {
	return payload.New().AddMetric("bdSeq", bdSeqVal).Build()
}

// Connect opens the MQTT session: increments bdSeq, arms the NDEATH LWT
// with the new bdSeq, connects, subscribes to this node's NCMD topic,
// and — if PrimaryHostID is configured — subscribes to that host's STATE
// topic and polls for up to PrimaryHostWaitTimeout before returning
// (spec §9's resolution of the primary-host-wait Open Question).
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.connected {
		n.mu.Unlock()
		return ErrAlreadyConnected
	}

	newBdSeq := n.bdSeq.Next()
	deathPayload, err := deathPayloadBytes(newBdSeq)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build NDEATH LWT payload: %w", err)
	}
	n.deathPayload = deathPayload

	primaryHostConfigured := n.cfg.PrimaryHostID != ""
	if !primaryHostConfigured {
		n.primaryHostOnline = true
	}

	opts := application.ConnectOptions{
		ClientID:     n.cfg.ClientID,
		Username:     n.cfg.Username,
		Password:     n.cfg.Password,
		KeepAlive:    n.cfg.KeepAlive,
		CleanSession: n.cfg.CleanSession,
		TLS:          n.cfg.TLS,
		WillTopic:    n.nodeTopic(topic.NDEATH).String(),
		WillPayload:  deathPayload,
		WillQoS:      n.cfg.DeathQoS,
		WillRetain:   false,
	}
	n.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, n.cfg.ConnectTimeout)
	defer cancel()
	if err := n.client.Connect(connectCtx, opts); err != nil {
		return err
	}
	n.client.SetConnectionLostHandler(n.onConnectionLost)

	n.mu.Lock()
	n.connected = true
	n.mu.Unlock()

	subCtx, cancelSub := context.WithTimeout(ctx, n.cfg.SubscribeTimeout)
	defer cancelSub()
	if err := n.client.Subscribe(subCtx, n.nodeTopic(topic.NCMD).String(), n.cfg.CommandQoS, n.handleMessage); err != nil {
		return fmt.Errorf("edgenode: subscribe NCMD: %w", err)
	}

	if primaryHostConfigured {
		stateSubCtx, cancelState := context.WithTimeout(ctx, n.cfg.SubscribeTimeout)
		defer cancelState()
		stateTopic := topic.Topic{MessageType: topic.STATE, EdgeNodeID: n.cfg.PrimaryHostID}.String()
		if err := n.client.Subscribe(stateSubCtx, stateTopic, 1, n.handleMessage); err != nil {
			return fmt.Errorf("edgenode: subscribe STATE: %w", err)
		}
		n.awaitPrimaryHostState(ctx)
	}

	return nil
}

// awaitPrimaryHostState busy-polls primaryHostOnline for up to
// Config.PrimaryHostWaitTimeout, which EnsureDefaults keeps positive.
// Connect never fails solely because the primary host hasn't reported
// in yet; PublishBirth/PublishDeviceBirth enforce the gate instead.
func (n *Node) awaitPrimaryHostState(ctx context.Context) {
	if n.cfg.PrimaryHostWaitTimeout <= 0 {
		return
	}
	deadline := time.Now().Add(n.cfg.PrimaryHostWaitTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		n.mu.Lock()
		online := n.primaryHostOnline
		n.mu.Unlock()
		if online {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Node) onConnectionLost(_ error) {
	n.mu.Lock()
	n.connected = false
	n.mu.Unlock()
}

type statePayload struct {
	Online    bool   `json:"online"`
	Timestamp uint64 `json:"timestamp"`
}

// handleMessage dispatches a delivered message by topic, matching spec
// §4.4's receive path: STATE from the primary host updates
// primaryHostOnline; NCMD/DCMD invoke the configured CommandCallback
// outside any lock; everything else is ignored.
func (n *Node) handleMessage(msg application.MQTTMessage) {
	t, err := topic.Parse(msg.Topic())
	if err != nil {
		return
	}

	if t.MessageType == topic.STATE {
		if t.EdgeNodeID != n.cfg.PrimaryHostID {
			return
		}
		var state statePayload
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		n.mu.Lock()
		n.primaryHostOnline = state.Online
		n.mu.Unlock()
		return
	}

	if !t.MessageType.IsCommand() || n.cfg.CommandCallback == nil {
		return
	}
	p, err := sparkplugb.Unmarshal(msg.Payload())
	if err != nil {
		return
	}
	n.cfg.CommandCallback(t, p)
}

// PublishBirth publishes p as this node's NBIRTH. A bdSeq metric is
// injected if p doesn't already carry one; the payload's seq is reset
// to 0 and the running counter reset to match (invariant I2).
func (n *Node) PublishBirth(ctx context.Context, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	if !n.primaryHostOnline {
		n.mu.Unlock()
		return ErrPrimaryHostOffline
	}

	if p.Payload().MetricByName("bdSeq") == nil {
		p.AddRawMetric(&sparkplugb.Metric{
			Name:      strPtr("bdSeq"),
			Datatype:  sparkplugb.UInt64,
			Value:     n.bdSeq.Value(),
			Timestamp: p.Payload().Timestamp,
		})
	}
	p.SetSeq(0)

	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build NBIRTH payload: %w", err)
	}
	topicStr := n.nodeTopic(topic.NBIRTH).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	if err := n.client.Publish(ctx, topicStr, qos, false, data); err != nil {
		return err
	}

	n.mu.Lock()
	n.lastBirthPayload = data
	n.seq.Reset()
	n.mu.Unlock()
	return nil
}

// PublishData publishes p as this node's NDATA. It always consumes the
// next sequence number and writes it into p unless p already carries one.
func (n *Node) PublishData(ctx context.Context, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	next := n.seq.Next()
	if !p.HasSeq() {
		p.SetSeq(uint64(next))
	}
	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build NDATA payload: %w", err)
	}
	topicStr := n.nodeTopic(topic.NDATA).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	return n.client.Publish(ctx, topicStr, qos, false, data)
}

// PublishDeviceBirth subscribes to the device's DCMD topic, then
// publishes p as that device's DBIRTH (invariant I4).
func (n *Node) PublishDeviceBirth(ctx context.Context, device string, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	if !n.primaryHostOnline {
		n.mu.Unlock()
		return ErrPrimaryHostOffline
	}
	if len(n.lastBirthPayload) == 0 {
		n.mu.Unlock()
		return ErrBirthRequired
	}
	next := n.seq.Next()
	p.SetSeq(uint64(next))
	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build DBIRTH payload: %w", err)
	}
	topicStr := n.deviceTopic(topic.DBIRTH, device).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	dcmdTopic := n.deviceTopic(topic.DCMD, device).String()
	subCtx, cancel := context.WithTimeout(ctx, n.cfg.SubscribeTimeout)
	defer cancel()
	if err := n.client.Subscribe(subCtx, dcmdTopic, n.cfg.CommandQoS, n.handleMessage); err != nil {
		return fmt.Errorf("edgenode: subscribe DCMD for %q: %w", device, err)
	}

	if err := n.client.Publish(ctx, topicStr, qos, false, data); err != nil {
		return err
	}

	n.mu.Lock()
	n.devices[device] = &deviceState{online: true, lastBirthPayload: data}
	n.mu.Unlock()
	return nil
}

// PublishDeviceData publishes p as device's DDATA (invariant I5: device
// must have a DBIRTH on this session).
func (n *Node) PublishDeviceData(ctx context.Context, device string, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	dev, ok := n.devices[device]
	if !ok || !dev.online {
		n.mu.Unlock()
		return ErrDeviceBirthRequired
	}
	next := n.seq.Next()
	if !p.HasSeq() {
		p.SetSeq(uint64(next))
	}
	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build DDATA payload: %w", err)
	}
	topicStr := n.deviceTopic(topic.DDATA, device).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	return n.client.Publish(ctx, topicStr, qos, false, data)
}

// PublishDeviceDeath publishes a DDEATH for device and marks it offline.
func (n *Node) PublishDeviceDeath(ctx context.Context, device string) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := n.devices[device]; !ok {
		n.mu.Unlock()
		return ErrUnknownDevice
	}
	next := n.seq.Next()
	p := &sparkplugb.Payload{}
	p.SetSeq(uint64(next))
	p.SetTimestamp(nowMs())
	data, err := p.Marshal()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build DDEATH payload: %w", err)
	}
	topicStr := n.deviceTopic(topic.DDEATH, device).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	if err := n.client.Publish(ctx, topicStr, qos, false, data); err != nil {
		return err
	}

	n.mu.Lock()
	if dev, ok := n.devices[device]; ok {
		dev.online = false
	}
	n.mu.Unlock()
	return nil
}

// PublishDeath explicitly publishes this node's NDEATH, then disconnects.
func (n *Node) PublishDeath(ctx context.Context) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	next := n.seq.Next()
	p := &sparkplugb.Payload{}
	p.SetSeq(uint64(next))
	p.SetTimestamp(nowMs())
	p.AddMetric(&sparkplugb.Metric{Name: strPtr("bdSeq"), Datatype: sparkplugb.UInt64, Value: n.bdSeq.Value()})
	data, err := p.Marshal()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build NDEATH payload: %w", err)
	}
	topicStr := n.nodeTopic(topic.NDEATH).String()
	qos := n.cfg.DeathQoS
	n.mu.Unlock()

	if err := n.client.Publish(ctx, topicStr, qos, false, data); err != nil {
		return err
	}
	return n.Disconnect(ctx)
}

// Rebirth re-establishes this node's session: it precomputes the next
// bdSeq, rewrites the cached NBIRTH payload and NDEATH LWT to carry it,
// disconnects, reconnects (whose own bdSeq increment lands on exactly
// that precomputed value, see SPEC_FULL.md §9), and republishes the updated
// NBIRTH.
func (n *Node) Rebirth(ctx context.Context) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	if len(n.lastBirthPayload) == 0 {
		n.mu.Unlock()
		return ErrBirthRequired
	}

	newBdSeq := n.bdSeq.Value() + 1

	birthPayload, err := sparkplugb.Unmarshal(n.lastBirthPayload)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: parse cached NBIRTH payload: %w", err)
	}
	if m := birthPayload.MetricByName("bdSeq"); m != nil {
		m.Value = newBdSeq
	}
	birthPayload.SetSeq(0)
	newBirthData, err := birthPayload.Marshal()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: re-marshal rebirth NBIRTH payload: %w", err)
	}
	deathPayload, err := deathPayloadBytes(newBdSeq)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build rebirth NDEATH payload: %w", err)
	}
	n.deathPayload = deathPayload

	topicStr := n.nodeTopic(topic.NBIRTH).String()
	qos := n.cfg.DataQoS
	n.mu.Unlock()

	if err := n.reconnect(ctx); err != nil {
		return fmt.Errorf("edgenode: rebirth reconnect: %w", err)
	}

	if err := n.client.Publish(ctx, topicStr, qos, false, newBirthData); err != nil {
		return err
	}

	n.mu.Lock()
	n.lastBirthPayload = newBirthData
	n.seq.Reset()
	n.mu.Unlock()
	return nil
}

func (n *Node) reconnect(ctx context.Context) error {
	if err := n.Disconnect(ctx); err != nil && err != ErrNotConnected {
		return err
	}
	return n.Connect(ctx)
}

// PublishNodeCommand publishes p as an NCMD addressed to targetEdgeNode
// within this node's group.
func (n *Node) PublishNodeCommand(ctx context.Context, targetEdgeNode string, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build NCMD payload: %w", err)
	}
	topicStr := topic.Topic{GroupID: n.cfg.GroupID, MessageType: topic.NCMD, EdgeNodeID: targetEdgeNode}.String()
	qos := n.cfg.CommandQoS
	n.mu.Unlock()

	return n.client.Publish(ctx, topicStr, qos, false, data)
}

// PublishDeviceCommand publishes p as a DCMD addressed to device on
// targetEdgeNode within this node's group.
func (n *Node) PublishDeviceCommand(ctx context.Context, targetEdgeNode, device string, p *payload.Builder) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	data, err := p.Build()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("edgenode: build DCMD payload: %w", err)
	}
	topicStr := topic.Topic{GroupID: n.cfg.GroupID, MessageType: topic.DCMD, EdgeNodeID: targetEdgeNode, DeviceID: device}.String()
	qos := n.cfg.CommandQoS
	n.mu.Unlock()

	return n.client.Publish(ctx, topicStr, qos, false, data)
}

// Disconnect gracefully closes the MQTT session. The broker delivers the
// previously-armed NDEATH LWT since this is not itself publishing one.
func (n *Node) Disconnect(ctx context.Context) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return ErrNotConnected
	}
	n.mu.Unlock()

	disconnectCtx, cancel := context.WithTimeout(ctx, n.cfg.DisconnectTimeout)
	defer cancel()
	err := n.client.Disconnect(disconnectCtx)

	n.mu.Lock()
	n.connected = false
	n.mu.Unlock()
	return err
}

// Close performs a best-effort graceful disconnect. Errors are logged,
// not returned, since Go has no destructor and callers are expected to
// `defer node.Close()` without checking its result.
func (n *Node) Close() error {
	n.mu.Lock()
	connected := n.connected
	n.mu.Unlock()
	if !connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.DisconnectTimeout)
	defer cancel()
	if err := n.Disconnect(ctx); err != nil {
		n.cfg.Log.Warn().Err(err).Str("edge_node_id", n.cfg.EdgeNodeID).Msg("best-effort disconnect on close failed")
	}
	return nil
}

// Status returns a read-only snapshot of the Node's session state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	devices := make(map[string]DeviceStatus, len(n.devices))
	for id, d := range n.devices {
		devices[id] = DeviceStatus{Online: d.online}
	}
	return Status{
		Connected:         n.connected,
		Seq:               n.seq.Value(),
		BdSeq:             n.bdSeq.Value(),
		PrimaryHostOnline: n.primaryHostOnline,
		Devices:           devices,
	}
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

func strPtr(s string) *string { return &s }
