package sparkplugb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Sparkplug B / org.eclipse.tahu.protobuf.Payload field numbers.
const (
	fieldPayloadTimestamp protowire.Number = 1
	fieldPayloadMetrics   protowire.Number = 2
	fieldPayloadSeq       protowire.Number = 3
	fieldPayloadUUID      protowire.Number = 4
	fieldPayloadBody      protowire.Number = 5

	fieldMetricName        protowire.Number = 1
	fieldMetricAlias       protowire.Number = 2
	fieldMetricTimestamp   protowire.Number = 3
	fieldMetricDatatype    protowire.Number = 4
	fieldMetricIsNull      protowire.Number = 7
	fieldMetricIntValue    protowire.Number = 10
	fieldMetricLongValue   protowire.Number = 11
	fieldMetricFloatValue  protowire.Number = 12
	fieldMetricDoubleValue protowire.Number = 13
	fieldMetricBoolValue   protowire.Number = 14
	fieldMetricStringValue protowire.Number = 15
	fieldMetricBytesValue  protowire.Number = 16
)

// Marshal serializes the payload to its Sparkplug B protobuf wire encoding.
func (p *Payload) Marshal() ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	var b []byte
	if p.Timestamp != nil {
		b = protowire.AppendTag(b, fieldPayloadTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, *p.Timestamp)
	}
	for _, m := range p.Metrics {
		mb, err := m.marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldPayloadMetrics, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	if p.Seq != nil {
		b = protowire.AppendTag(b, fieldPayloadSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, *p.Seq)
	}
	if p.UUID != nil {
		b = protowire.AppendTag(b, fieldPayloadUUID, protowire.BytesType)
		b = protowire.AppendString(b, *p.UUID)
	}
	if p.Body != nil {
		b = protowire.AppendTag(b, fieldPayloadBody, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Body)
	}
	return b, nil
}

func (m *Metric) marshal() ([]byte, error) {
	var b []byte
	if m.Name != nil {
		b = protowire.AppendTag(b, fieldMetricName, protowire.BytesType)
		b = protowire.AppendString(b, *m.Name)
	}
	if m.Alias != nil {
		b = protowire.AppendTag(b, fieldMetricAlias, protowire.VarintType)
		b = protowire.AppendVarint(b, *m.Alias)
	}
	if m.Timestamp != nil {
		b = protowire.AppendTag(b, fieldMetricTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, *m.Timestamp)
	}
	if m.Datatype != 0 {
		b = protowire.AppendTag(b, fieldMetricDatatype, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Datatype))
	}
	if m.IsNull {
		b = protowire.AppendTag(b, fieldMetricIsNull, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		return b, nil
	}
	if m.Value == nil {
		return b, nil
	}
	switch m.Datatype {
	case Int8, Int16, Int32, UInt8, UInt16, UInt32:
		v, err := toUint32(m.Value)
		if err != nil {
			return nil, fmt.Errorf("sparkplugb: metric %q: %w", m.GetName(), err)
		}
		b = protowire.AppendTag(b, fieldMetricIntValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	case Int64, UInt64, DateTime:
		v, err := toUint64(m.Value)
		if err != nil {
			return nil, fmt.Errorf("sparkplugb: metric %q: %w", m.GetName(), err)
		}
		b = protowire.AppendTag(b, fieldMetricLongValue, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	case Float:
		v, err := toFloat32(m.Value)
		if err != nil {
			return nil, fmt.Errorf("sparkplugb: metric %q: %w", m.GetName(), err)
		}
		b = protowire.AppendTag(b, fieldMetricFloatValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	case Double:
		v, err := toFloat64(m.Value)
		if err != nil {
			return nil, fmt.Errorf("sparkplugb: metric %q: %w", m.GetName(), err)
		}
		b = protowire.AppendTag(b, fieldMetricDoubleValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	case Boolean:
		v, ok := m.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("sparkplugb: metric %q: value is not a bool", m.GetName())
		}
		b = protowire.AppendTag(b, fieldMetricBoolValue, protowire.VarintType)
		if v {
			b = protowire.AppendVarint(b, 1)
		} else {
			b = protowire.AppendVarint(b, 0)
		}
	case String, Text, UUID:
		v, ok := m.Value.(string)
		if !ok {
			return nil, fmt.Errorf("sparkplugb: metric %q: value is not a string", m.GetName())
		}
		b = protowire.AppendTag(b, fieldMetricStringValue, protowire.BytesType)
		b = protowire.AppendString(b, v)
	case Bytes:
		v, ok := m.Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("sparkplugb: metric %q: value is not []byte", m.GetName())
		}
		b = protowire.AppendTag(b, fieldMetricBytesValue, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	default:
		return nil, fmt.Errorf("sparkplugb: metric %q: no value encoding for datatype %s", m.GetName(), m.Datatype)
	}
	return b, nil
}

func toUint32(v any) (uint32, error) {
	switch x := v.(type) {
	case uint32:
		return x, nil
	case uint64:
		return uint32(x), nil
	case int64:
		return uint32(x), nil
	case int:
		return uint32(x), nil
	}
	return 0, fmt.Errorf("value %v (%T) is not an integer", v, v)
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case int:
		return uint64(x), nil
	}
	return 0, fmt.Errorf("value %v (%T) is not an integer", v, v)
}

func toFloat32(v any) (float32, error) {
	switch x := v.(type) {
	case float32:
		return x, nil
	case float64:
		return float32(x), nil
	}
	return 0, fmt.Errorf("value %v (%T) is not a float", v, v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("value %v (%T) is not a float", v, v)
}
