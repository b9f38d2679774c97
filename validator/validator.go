// Package validator tracks per-node and per-device birth/sequence state
// for a host application and flags protocol violations, translated from
// original_source/src/host_application.cpp's validate_message into
// per-message-type Go methods.
package validator

import (
	"fmt"
	"sync"

	"sparkplug/sparkplugb"
	"sparkplug/topic"
)

// SeqMax is the modulus sequence numbers wrap at (spec §4.6).
const SeqMax = 256

// NodeKey identifies an edge node's session state.
type NodeKey struct {
	Group    string
	EdgeNode string
}

func keyFor(t topic.Topic) NodeKey {
	return NodeKey{Group: t.GroupID, EdgeNode: t.EdgeNodeID}
}

// DeviceState mirrors host_application.cpp's per-device bookkeeping.
type DeviceState struct {
	Online           bool
	BirthReceived    bool
	MetricsStale     bool
	OfflineTimestamp uint64
	AliasMap         map[uint64]string
}

// NodeState mirrors host_application.cpp's per-node bookkeeping: birth
// status, the bdSeq from the last accepted NBIRTH, the running seq
// counter, and the name<->alias map NBIRTH/DBIRTH established.
type NodeState struct {
	Online         bool
	BirthReceived  bool
	BdSeq          uint64
	LastSeq        uint64
	BirthTimestamp uint64
	AliasMap       map[uint64]string
	Devices        map[string]*DeviceState
}

func newNodeState() *NodeState {
	return &NodeState{AliasMap: map[uint64]string{}, Devices: map[string]*DeviceState{}}
}

// Validator holds session state for every edge node a host application has
// seen messages from. It is safe for concurrent use; a single Validator is
// shared across a hostapp.App's subscription callbacks.
type Validator struct {
	mu    sync.Mutex
	nodes map[NodeKey]*NodeState
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{nodes: map[NodeKey]*NodeState{}}
}

func (v *Validator) state(key NodeKey) *NodeState {
	s, ok := v.nodes[key]
	if !ok {
		s = newNodeState()
		v.nodes[key] = s
	}
	return s
}

func bdSeqMetric(p *sparkplugb.Payload) (uint64, bool) {
	m := p.MetricByName("bdSeq")
	if m == nil {
		return 0, false
	}
	v, ok := m.LongValue()
	return v, ok
}

func expectedSeq(last uint64) uint64 {
	return (last + 1) % SeqMax
}

// Validate dispatches to the per-message-type rule for t.MessageType and
// records the resulting state transition. warning is non-empty whenever
// the message violated a sequencing or birth-ordering rule. ok is false
// for a malformed NBIRTH (seq != 0 or no bdSeq metric) and for data or
// device births that arrive with no preceding birth; it stays true on a
// plain sequence gap and on a DDEATH for an unknown device. The verdict
// does not decide delivery: hostapp.App hands every parsed message to its
// MessageCallback whatever the result.
func (v *Validator) Validate(t topic.Topic, p *sparkplugb.Payload) (warning string, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := keyFor(t)
	switch t.MessageType {
	case topic.NBIRTH:
		return v.validateNBIRTH(key, p)
	case topic.NDEATH:
		return v.validateNDEATH(key, p)
	case topic.NDATA:
		return v.validateNDATA(key, p)
	case topic.DBIRTH:
		return v.validateDBIRTH(key, t.DeviceID, p)
	case topic.DDATA:
		return v.validateDDATA(key, t.DeviceID, p)
	case topic.DDEATH:
		return v.validateDDEATH(key, t.DeviceID, p)
	default:
		// NCMD, DCMD, STATE carry no session-sequencing rule.
		return "", true
	}
}

// ValidateNBIRTH warns (ok false) when seq != 0 or the bdSeq metric is
// missing, and in every case resets the node's sequence baseline and
// alias map and marks the node online.
func (v *Validator) ValidateNBIRTH(group, edgeNode string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateNBIRTH(NodeKey{group, edgeNode}, p)
}

func (v *Validator) validateNBIRTH(key NodeKey, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)

	var warning string
	if p.HasSeq() && p.GetSeq() != 0 {
		warning = fmt.Sprintf("NBIRTH for %s has invalid seq: %d (expected 0)", nodeID, p.GetSeq())
	}

	bdSeq, hasBdSeq := bdSeqMetric(p)
	if !hasBdSeq {
		if warning != "" {
			warning += "; "
		}
		warning += fmt.Sprintf("NBIRTH for %s missing required bdSeq metric", nodeID)
	}

	state := newNodeState()
	state.BdSeq = bdSeq
	state.LastSeq = 0
	state.Online = true
	state.BirthReceived = true
	if p.Timestamp != nil {
		state.BirthTimestamp = *p.Timestamp
	}
	if existing, ok := v.nodes[key]; ok {
		state.Devices = existing.Devices
	}
	for _, m := range p.Metrics {
		if m.HasAlias() && m.Name != nil {
			state.AliasMap[m.GetAlias()] = m.GetName()
		}
	}
	v.nodes[key] = state

	return warning, warning == ""
}

// ValidateNDEATH marks the node offline and warns on a bdSeq mismatch
// against the session's NBIRTH.
func (v *Validator) ValidateNDEATH(group, edgeNode string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateNDEATH(NodeKey{group, edgeNode}, p)
}

func (v *Validator) validateNDEATH(key NodeKey, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)
	state := v.state(key)

	bdSeq, _ := bdSeqMetric(p)
	var warning string
	if state.BirthReceived && bdSeq != state.BdSeq {
		warning = fmt.Sprintf("NDEATH bdSeq mismatch for %s (NDEATH: %d, NBIRTH: %d)", nodeID, bdSeq, state.BdSeq)
	}

	state.Online = false
	for _, d := range state.Devices {
		d.Online = false
	}
	return warning, true
}

// ValidateNDATA requires a preceding NBIRTH and warns on a sequence gap.
func (v *Validator) ValidateNDATA(group, edgeNode string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateNDATA(NodeKey{group, edgeNode}, p)
}

func (v *Validator) validateNDATA(key NodeKey, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)
	state := v.state(key)

	if !state.BirthReceived {
		return fmt.Sprintf("received NDATA for %s before NBIRTH", nodeID), false
	}

	var warning string
	if p.HasSeq() {
		seq := p.GetSeq()
		expected := expectedSeq(state.LastSeq)
		if seq != expected {
			warning = fmt.Sprintf("sequence number gap for %s (got %d, expected %d)", nodeID, seq, expected)
		}
		state.LastSeq = seq
	}
	return warning, true
}

// ValidateDBIRTH requires the node's NBIRTH and marks the device online.
func (v *Validator) ValidateDBIRTH(group, edgeNode, device string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateDBIRTH(NodeKey{group, edgeNode}, device, p)
}

func (v *Validator) validateDBIRTH(key NodeKey, device string, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)
	state := v.state(key)

	if !state.BirthReceived {
		return fmt.Sprintf("received DBIRTH for device on %s before node NBIRTH", nodeID), false
	}

	var warning string
	if p.HasSeq() {
		seq := p.GetSeq()
		expected := expectedSeq(state.LastSeq)
		if seq != expected {
			warning = fmt.Sprintf("sequence number gap for DBIRTH device %q on %s (got %d, expected %d)", device, nodeID, seq, expected)
		}
		state.LastSeq = seq
	}

	dev := &DeviceState{Online: true, BirthReceived: true, AliasMap: map[uint64]string{}}
	for _, m := range p.Metrics {
		if m.HasAlias() && m.Name != nil {
			dev.AliasMap[m.GetAlias()] = m.GetName()
		}
	}
	state.Devices[device] = dev

	return warning, true
}

// ValidateDDATA requires both the node's NBIRTH and the device's DBIRTH.
func (v *Validator) ValidateDDATA(group, edgeNode, device string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateDDATA(NodeKey{group, edgeNode}, device, p)
}

func (v *Validator) validateDDATA(key NodeKey, device string, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)
	state := v.state(key)

	if !state.BirthReceived {
		return fmt.Sprintf("received DDATA for device %q on %s before node NBIRTH", device, nodeID), false
	}

	dev, ok := state.Devices[device]
	if !ok || !dev.BirthReceived {
		return fmt.Sprintf("received DDATA for device %q on %s before DBIRTH", device, nodeID), false
	}

	var warning string
	if p.HasSeq() {
		seq := p.GetSeq()
		expected := expectedSeq(state.LastSeq)
		if seq != expected {
			warning = fmt.Sprintf("sequence number gap for device %q on %s (got %d, expected %d)", device, nodeID, seq, expected)
		}
		state.LastSeq = seq
	}
	return warning, true
}

// ValidateDDEATH marks the device offline and its last-known metrics
// stale.
func (v *Validator) ValidateDDEATH(group, edgeNode, device string, p *sparkplugb.Payload) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validateDDEATH(NodeKey{group, edgeNode}, device, p)
}

func (v *Validator) validateDDEATH(key NodeKey, device string, p *sparkplugb.Payload) (string, bool) {
	nodeID := fmt.Sprintf("%s/%s", key.Group, key.EdgeNode)
	state := v.state(key)

	dev, ok := state.Devices[device]
	if !ok {
		return fmt.Sprintf("received DDEATH for unknown device %q on %s", device, nodeID), true
	}

	dev.Online = false
	dev.MetricsStale = true
	if p.Timestamp != nil {
		dev.OfflineTimestamp = *p.Timestamp
	}
	return "", true
}

// Snapshot returns a copy of the node's current state for inspection, and
// whether any state has been recorded for it at all.
func (v *Validator) Snapshot(group, edgeNode string) (NodeState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.nodes[NodeKey{group, edgeNode}]
	if !ok {
		return NodeState{}, false
	}

	out := *state
	out.AliasMap = make(map[uint64]string, len(state.AliasMap))
	for k, val := range state.AliasMap {
		out.AliasMap[k] = val
	}
	out.Devices = make(map[string]*DeviceState, len(state.Devices))
	for name, d := range state.Devices {
		devCopy := *d
		out.Devices[name] = &devCopy
	}
	return out, true
}

// ResolveAlias looks up a metric name by alias for the given node,
// mirroring host_application.cpp's resolve_alias.
func (v *Validator) ResolveAlias(group, edgeNode string, alias uint64) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.nodes[NodeKey{group, edgeNode}]
	if !ok {
		return "", false
	}
	name, ok := state.AliasMap[alias]
	return name, ok
}
