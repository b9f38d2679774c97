package hostapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"sparkplug/application"
	"sparkplug/payload"
	"sparkplug/sparkplugb"
	"sparkplug/topic"
	"sparkplug/validator"
)

// StatePayload is the JSON body published to spBv1.0/STATE/{host_id},
// the one wire format in this module that isn't Sparkplug B protobuf
// (the Sparkplug spec mandates plain JSON for STATE messages).
type StatePayload struct {
	Online    bool   `json:"online"`
	Timestamp uint64 `json:"timestamp"`
}

// App is a Sparkplug B Host Application: the authoritative consumer and
// command source in a topology. It subscribes to Edge Node traffic,
// tracks birth/sequence state per node and device via validator.Validator,
// and publishes STATE and NCMD/DCMD messages. Unlike edgenode.Node, it
// never publishes NBIRTH/NDATA/NDEATH and sets up no Last-Will-and-Testament
// of its own; callers must explicitly PublishStateDeath before Disconnect.
//
// App is safe for concurrent use: a single mutex guards all session
// state, released before any call into the transport so callbacks never
// fire while the lock is held (spec §5).
type App struct {
	cfg    Config
	client application.MQTTClient

	mu        sync.Mutex
	connected bool

	validator *validator.Validator
}

// New constructs an App bound to client. BrokerURL, ClientID, and HostID
// are required in cfg.
func New(cfg Config, client application.MQTTClient) (*App, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("hostapp: BrokerURL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("hostapp: ClientID is required")
	}
	if cfg.HostID == "" {
		return nil, errors.New("hostapp: HostID is required")
	}
	if client == nil {
		return nil, errors.New("hostapp: client is required")
	}
	cfg.EnsureDefaults()

	return &App{
		cfg:       cfg,
		client:    client,
		validator: validator.New(),
	}, nil
}

// Connect opens the MQTT connection. Unlike edgenode.Node.Connect, this
// does not publish anything; call PublishStateBirth afterward to declare
// the host application online.
func (a *App) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return ErrAlreadyConnected
	}

	opts := application.ConnectOptions{
		ClientID:     a.cfg.ClientID,
		Username:     a.cfg.Username,
		Password:     a.cfg.Password,
		KeepAlive:    a.cfg.KeepAlive,
		CleanSession: a.cfg.CleanSession,
		TLS:          a.cfg.TLS,
	}
	a.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	if err := a.client.Connect(connectCtx, opts); err != nil {
		return err
	}

	a.client.SetConnectionLostHandler(a.onConnectionLost)

	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()

	return nil
}

func (a *App) onConnectionLost(err error) {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	if err != nil {
		a.cfg.Log.Warn().Err(err).Msg("hostapp: connection lost")
	} else {
		a.cfg.Log.Warn().Msg("hostapp: connection lost")
	}
}

// Disconnect closes the MQTT connection. Callers should call
// PublishStateDeath first to properly signal the host application going
// offline.
func (a *App) Disconnect(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, a.cfg.DisconnectTimeout)
	defer cancel()
	err := a.client.Disconnect(disconnectCtx)

	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()

	return err
}

// Close performs a best-effort Disconnect, logging any failure instead
// of returning it. Intended for defer in callers that already handled
// PublishStateDeath.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.DisconnectTimeout)
	defer cancel()
	if err := a.Disconnect(ctx); err != nil {
		a.cfg.Log.Warn().Err(err).Msg("hostapp: error during close")
	}
	return nil
}

func (a *App) stateTopic() string {
	return topic.Topic{MessageType: topic.STATE, EdgeNodeID: a.cfg.HostID}.String()
}

// PublishStateBirth declares this host application online: a retained
// JSON STATE message with online=true.
func (a *App) PublishStateBirth(ctx context.Context, timestamp uint64) error {
	return a.publishState(ctx, StatePayload{Online: true, Timestamp: timestamp})
}

// PublishStateDeath declares this host application offline: a retained
// JSON STATE message with online=false. Must be called before Disconnect
// per the Sparkplug B Host Application lifecycle.
func (a *App) PublishStateDeath(ctx context.Context, timestamp uint64) error {
	return a.publishState(ctx, StatePayload{Online: false, Timestamp: timestamp})
}

func (a *App) publishState(ctx context.Context, state StatePayload) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	qos := a.cfg.QoS
	a.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("hostapp: marshal STATE payload: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, a.cfg.PublishTimeout)
	defer cancel()
	return a.client.Publish(publishCtx, a.stateTopic(), qos, true, data)
}

// SubscribeAllGroups subscribes to every Sparkplug B group: spBv1.0/#.
func (a *App) SubscribeAllGroups(ctx context.Context) error {
	return a.subscribe(ctx, topic.Namespace+"/#")
}

// SubscribeGroup subscribes to a single group: spBv1.0/{group}/#.
func (a *App) SubscribeGroup(ctx context.Context, group string) error {
	return a.subscribe(ctx, fmt.Sprintf("%s/%s/#", topic.Namespace, group))
}

// SubscribeNode subscribes to a single edge node's traffic across all
// message types and its devices: spBv1.0/{group}/+/{node}/#.
func (a *App) SubscribeNode(ctx context.Context, group, edgeNode string) error {
	return a.subscribe(ctx, fmt.Sprintf("%s/%s/+/%s/#", topic.Namespace, group, edgeNode))
}

// SubscribeState subscribes to another party's STATE topic:
// spBv1.0/STATE/{hostID}.
func (a *App) SubscribeState(ctx context.Context, hostID string) error {
	return a.subscribe(ctx, fmt.Sprintf("%s/STATE/%s", topic.Namespace, hostID))
}

func (a *App) subscribe(ctx context.Context, filter string) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	qos := a.cfg.QoS
	a.mu.Unlock()

	subCtx, cancel := context.WithTimeout(ctx, a.cfg.SubscribeTimeout)
	defer cancel()
	return a.client.Subscribe(subCtx, filter, qos, a.handleMessage)
}

// PublishNodeCommand publishes an NCMD addressed to an edge node.
func (a *App) PublishNodeCommand(ctx context.Context, group, targetEdgeNode string, p *payload.Builder) error {
	t := topic.Topic{GroupID: group, MessageType: topic.NCMD, EdgeNodeID: targetEdgeNode}
	return a.publishCommand(ctx, t, p)
}

// PublishDeviceCommand publishes a DCMD addressed to a device attached
// to an edge node.
func (a *App) PublishDeviceCommand(ctx context.Context, group, targetEdgeNode, targetDevice string, p *payload.Builder) error {
	t := topic.Topic{GroupID: group, MessageType: topic.DCMD, EdgeNodeID: targetEdgeNode, DeviceID: targetDevice}
	return a.publishCommand(ctx, t, p)
}

func (a *App) publishCommand(ctx context.Context, t topic.Topic, p *payload.Builder) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	a.mu.Unlock()

	data, err := p.Build()
	if err != nil {
		return fmt.Errorf("hostapp: build command payload: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, a.cfg.PublishTimeout)
	defer cancel()
	return a.client.Publish(publishCtx, t.String(), 0, false, data)
}

// RequestRebirth is a convenience wrapper over PublishNodeCommand that
// sends the standard Node Control/Rebirth command to ask an edge node to
// republish its birth certificate.
func (a *App) RequestRebirth(ctx context.Context, group, targetEdgeNode string) error {
	return a.PublishNodeCommand(ctx, group, targetEdgeNode, payload.New().AddNodeControlRebirth(true))
}

// GetNodeState returns a snapshot of tracked birth/sequence state for an
// edge node, if ValidateSequence is enabled and the node has been seen.
func (a *App) GetNodeState(group, edgeNode string) (validator.NodeState, bool) {
	return a.validator.Snapshot(group, edgeNode)
}

// GetDeviceState returns a snapshot of tracked birth/sequence state for
// a device attached to an edge node.
func (a *App) GetDeviceState(group, edgeNode, device string) (validator.DeviceState, bool) {
	node, ok := a.validator.Snapshot(group, edgeNode)
	if !ok {
		return validator.DeviceState{}, false
	}
	d, ok := node.Devices[device]
	if !ok {
		return validator.DeviceState{}, false
	}
	return *d, true
}

// GetMetricName resolves a numeric alias back to its metric name, using
// the alias map recorded at the node's (or its device's) last birth.
// Pass an empty device for a node-level alias.
func (a *App) GetMetricName(group, edgeNode, device string, alias uint64) (string, bool) {
	if device == "" {
		return a.validator.ResolveAlias(group, edgeNode, alias)
	}
	node, ok := a.validator.Snapshot(group, edgeNode)
	if !ok {
		return "", false
	}
	d, ok := node.Devices[device]
	if !ok {
		return "", false
	}
	name, ok := d.AliasMap[alias]
	return name, ok
}

func (a *App) handleMessage(msg application.MQTTMessage) {
	statePrefix := topic.Namespace + "/STATE/"
	rawTopic := msg.Topic()

	if len(rawTopic) >= len(statePrefix) && rawTopic[:len(statePrefix)] == statePrefix {
		stateTopic := topic.Topic{
			MessageType: topic.STATE,
			EdgeNodeID:  rawTopic[len(statePrefix):],
		}
		if a.cfg.MessageCallback != nil {
			a.cfg.MessageCallback(stateTopic, &sparkplugb.Payload{})
		}
		return
	}

	t, err := topic.Parse(rawTopic)
	if err != nil {
		a.cfg.Log.Debug().Str("topic", rawTopic).Msg("hostapp: ignoring non-Sparkplug topic")
		return
	}

	p, err := sparkplugb.Unmarshal(msg.Payload())
	if err != nil {
		a.cfg.Log.Error().Err(err).Str("topic", rawTopic).Msg("hostapp: failed to parse Sparkplug B payload")
		return
	}

	if a.cfg.ValidateSequence {
		if warning, _ := a.validator.Validate(t, p); warning != "" {
			a.cfg.Log.Warn().Str("topic", rawTopic).Msg(warning)
		}
	}

	if a.cfg.MessageCallback != nil {
		a.cfg.MessageCallback(t, p)
	}
}
