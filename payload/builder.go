// Package payload provides a fluent, typed accumulator for Sparkplug B
// payloads, translated from original_source/include/sparkplug/payload_builder.hpp's
// template/concept-based C++ builder into a Go type switch over the value
// passed to Add*.
package payload

import (
	"fmt"
	"time"

	"sparkplug/sparkplugb"
)

// Builder accumulates metrics into a sparkplugb.Payload and serializes it
// on Build. The zero value is ready to use.
type Builder struct {
	payload           sparkplugb.Payload
	seqExplicit       bool
	timestampExplicit bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// nowMs returns the current time in milliseconds since the Unix epoch.
func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func datatypeFor(value any) (sparkplugb.DataType, error) {
	switch value.(type) {
	case int8:
		return sparkplugb.Int8, nil
	case int16:
		return sparkplugb.Int16, nil
	case int32:
		return sparkplugb.Int32, nil
	case int, int64:
		return sparkplugb.Int64, nil
	case uint8:
		return sparkplugb.UInt8, nil
	case uint16:
		return sparkplugb.UInt16, nil
	case uint32:
		return sparkplugb.UInt32, nil
	case uint, uint64:
		return sparkplugb.UInt64, nil
	case float32:
		return sparkplugb.Float, nil
	case float64:
		return sparkplugb.Double, nil
	case bool:
		return sparkplugb.Boolean, nil
	case string:
		return sparkplugb.String, nil
	case []byte:
		return sparkplugb.Bytes, nil
	default:
		return 0, fmt.Errorf("payload: unsupported metric value type %T", value)
	}
}

// normalize converts the caller's concrete Go value into the representation
// sparkplugb's encoder expects for that datatype (signed ints as int64,
// unsigned ints and DateTime as uint64, etc).
func normalize(value any) any {
	switch v := value.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint:
		return uint64(v)
	default:
		return v
	}
}

func (b *Builder) addMetric(name string, alias *uint64, value any, tsMs *uint64) error {
	dt, err := datatypeFor(value)
	if err != nil {
		return err
	}

	ts := nowMs()
	if tsMs != nil {
		ts = *tsMs
	}

	m := &sparkplugb.Metric{
		Datatype:  dt,
		Value:     normalize(value),
		Timestamp: &ts,
	}
	if name != "" {
		m.Name = &name
	}
	if alias != nil {
		m.Alias = alias
	}
	b.payload.AddMetric(m)
	return nil
}

// AddMetric adds a metric by name only, with an automatically generated
// timestamp. A value of an unsupported Go type is skipped: no metric is
// added and no error is reported. The same holds for every Add*Metric*
// method that infers the datatype from the value.
func (b *Builder) AddMetric(name string, value any) *Builder {
	_ = b.addMetric(name, nil, value, nil)
	return b
}

// AddMetricAt adds a metric by name with an explicit timestamp, for
// backfilled or historical data.
func (b *Builder) AddMetricAt(name string, value any, tsMs uint64) *Builder {
	_ = b.addMetric(name, nil, value, &tsMs)
	return b
}

// AddMetricWithAlias adds a metric carrying both name and alias, as used in
// NBIRTH/DBIRTH to establish the alias-to-name mapping.
func (b *Builder) AddMetricWithAlias(name string, alias uint64, value any) *Builder {
	_ = b.addMetric(name, &alias, value, nil)
	return b
}

// AddMetricWithAliasAt is AddMetricWithAlias with an explicit timestamp.
func (b *Builder) AddMetricWithAliasAt(name string, alias uint64, value any, tsMs uint64) *Builder {
	_ = b.addMetric(name, &alias, value, &tsMs)
	return b
}

// AddMetricByAlias adds a metric by alias only, for bandwidth-efficient
// NDATA/DDATA updates. The caller is responsible for report-by-exception:
// only include metrics that actually changed.
func (b *Builder) AddMetricByAlias(alias uint64, value any) *Builder {
	_ = b.addMetric("", &alias, value, nil)
	return b
}

// AddMetricByAliasAt is AddMetricByAlias with an explicit timestamp.
func (b *Builder) AddMetricByAliasAt(alias uint64, value any, tsMs uint64) *Builder {
	_ = b.addMetric("", &alias, value, &tsMs)
	return b
}

// AddNullMetric adds a metric with no value and IsNull set, for signaling a
// bad-quality reading while still declaring the metric's datatype.
func (b *Builder) AddNullMetric(name string, datatype sparkplugb.DataType) *Builder {
	ts := nowMs()
	b.payload.AddMetric(&sparkplugb.Metric{
		Name:      &name,
		Datatype:  datatype,
		IsNull:    true,
		Timestamp: &ts,
	})
	return b
}

// AddRawMetric appends a fully-constructed metric verbatim. This is the
// escape hatch for datatypes that AddMetric does not infer (Text, UUID,
// DataSet, Template), or for metrics assembled by another layer. Build
// has no value encoding for DataSet or Template: such a metric serializes
// only without a value (nil Value or IsNull), and Build returns an error
// if it carries one.
func (b *Builder) AddRawMetric(m *sparkplugb.Metric) *Builder {
	b.payload.AddMetric(m)
	return b
}

// SetPayloadTimestamp overrides the payload-level timestamp. Normally the
// EdgeNode/HostApplication core sets this; callers only need this for
// tests or specialised flows.
func (b *Builder) SetPayloadTimestamp(ts uint64) *Builder {
	b.payload.SetTimestamp(ts)
	b.timestampExplicit = true
	return b
}

// SetSeq overrides the payload's sequence number. Normally the core sets
// this automatically.
func (b *Builder) SetSeq(seq uint64) *Builder {
	b.payload.SetSeq(seq)
	b.seqExplicit = true
	return b
}

// HasSeq reports whether SetSeq has been called explicitly.
func (b *Builder) HasSeq() bool { return b.seqExplicit }

// HasTimestamp reports whether SetPayloadTimestamp has been called explicitly.
func (b *Builder) HasTimestamp() bool { return b.timestampExplicit }

// AddNodeControlRebirth adds the well-known "Node Control/Rebirth" metric.
func (b *Builder) AddNodeControlRebirth(value bool) *Builder {
	return b.AddMetric("Node Control/Rebirth", value)
}

// AddNodeControlReboot adds the well-known "Node Control/Reboot" metric.
func (b *Builder) AddNodeControlReboot(value bool) *Builder {
	return b.AddMetric("Node Control/Reboot", value)
}

// AddNodeControlNextServer adds the well-known "Node Control/Next Server" metric.
func (b *Builder) AddNodeControlNextServer(value bool) *Builder {
	return b.AddMetric("Node Control/Next Server", value)
}

// AddNodeControlScanRate adds the well-known "Node Control/Scan Rate" metric.
func (b *Builder) AddNodeControlScanRate(value int64) *Builder {
	return b.AddMetric("Node Control/Scan Rate", value)
}

// Payload returns the underlying payload for read/write access by the
// EdgeNode/HostApplication core (bdSeq injection, rebirth rewriting).
func (b *Builder) Payload() *sparkplugb.Payload {
	return &b.payload
}

// Build serializes the accumulated payload to its wire bytes.
func (b *Builder) Build() ([]byte, error) {
	return b.payload.Marshal()
}
