// Package topic implements the Sparkplug B MQTT topic grammar:
// spBv1.0/{group}/{TYPE}/{node}[/{device}] and the STATE special case
// spBv1.0/STATE/{host_id}.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Namespace is the fixed Sparkplug B topic namespace prefix.
const Namespace = "spBv1.0"

// MessageType enumerates the nine Sparkplug B message kinds.
type MessageType int

const (
	NBIRTH MessageType = iota + 1
	NDEATH
	DBIRTH
	DDEATH
	NDATA
	DDATA
	NCMD
	DCMD
	STATE
)

var messageTypeNames = map[MessageType]string{
	NBIRTH: "NBIRTH",
	NDEATH: "NDEATH",
	DBIRTH: "DBIRTH",
	DDEATH: "DDEATH",
	NDATA:  "NDATA",
	DDATA:  "DDATA",
	NCMD:   "NCMD",
	DCMD:   "DCMD",
	STATE:  "STATE",
}

var namesToMessageType = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for k, v := range messageTypeNames {
		m[v] = k
	}
	return m
}()

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsBirth reports whether t is NBIRTH or DBIRTH.
func (t MessageType) IsBirth() bool { return t == NBIRTH || t == DBIRTH }

// IsDeath reports whether t is NDEATH or DDEATH.
func (t MessageType) IsDeath() bool { return t == NDEATH || t == DDEATH }

// IsData reports whether t is NDATA or DDATA.
func (t MessageType) IsData() bool { return t == NDATA || t == DDATA }

// IsCommand reports whether t is NCMD or DCMD.
func (t MessageType) IsCommand() bool { return t == NCMD || t == DCMD }

// IsNodeLevel reports whether t addresses a node rather than a device.
func (t MessageType) IsNodeLevel() bool {
	return t == NBIRTH || t == NDEATH || t == NDATA || t == NCMD
}

// Topic is a parsed Sparkplug B topic. DeviceID is empty for node-level
// messages. For STATE, GroupID is empty and EdgeNodeID carries the host id.
type Topic struct {
	GroupID     string
	MessageType MessageType
	EdgeNodeID  string
	DeviceID    string
}

// ErrNotSparkplugNamespace is returned by Parse when the topic does not
// start with the Sparkplug B namespace prefix. Callers on the consume path
// should treat this as "silently drop", not a parse failure (spec §4.1).
var ErrNotSparkplugNamespace = errors.New("topic: not a sparkplug B topic")

// ParseError describes a malformed Sparkplug B topic.
type ParseError struct {
	Topic  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("topic: invalid topic %q: %s", e.Topic, e.Reason)
}

// Parse parses a Sparkplug B topic string into a Topic.
func Parse(s string) (Topic, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] != Namespace {
		return Topic{}, ErrNotSparkplugNamespace
	}

	if parts[1] == "STATE" {
		if len(parts) != 3 || parts[2] == "" {
			return Topic{}, &ParseError{Topic: s, Reason: "STATE topic must be spBv1.0/STATE/{host_id}"}
		}
		return Topic{MessageType: STATE, EdgeNodeID: parts[2]}, nil
	}

	if len(parts) < 4 || len(parts) > 5 {
		return Topic{}, &ParseError{Topic: s, Reason: "expected spBv1.0/{group}/{TYPE}/{node}[/{device}]"}
	}

	mt, ok := namesToMessageType[parts[2]]
	if !ok || mt == STATE {
		return Topic{}, &ParseError{Topic: s, Reason: fmt.Sprintf("unknown message type %q", parts[2])}
	}

	t := Topic{
		GroupID:     parts[1],
		MessageType: mt,
		EdgeNodeID:  parts[3],
	}
	if len(parts) == 5 {
		t.DeviceID = parts[4]
	}
	if t.GroupID == "" || t.EdgeNodeID == "" {
		return Topic{}, &ParseError{Topic: s, Reason: "group and edge node ids must not be empty"}
	}
	return t, nil
}

// String formats the topic back to its canonical wire form.
func (t Topic) String() string {
	if t.MessageType == STATE {
		return Namespace + "/STATE/" + t.EdgeNodeID
	}
	if t.DeviceID == "" {
		return fmt.Sprintf("%s/%s/%s/%s", Namespace, t.GroupID, t.MessageType, t.EdgeNodeID)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", Namespace, t.GroupID, t.MessageType, t.EdgeNodeID, t.DeviceID)
}

// NodeKey returns the (group, edge node) pair as a single "group/node"
// string key for per-node state. Empty for STATE topics.
func (t Topic) NodeKey() string {
	if t.MessageType == STATE || t.GroupID == "" || t.EdgeNodeID == "" {
		return ""
	}
	return t.GroupID + "/" + t.EdgeNodeID
}
