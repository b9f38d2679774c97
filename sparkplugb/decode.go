package sparkplugb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Unmarshal parses the Sparkplug B protobuf wire encoding into a Payload.
func Unmarshal(data []byte) (*Payload, error) {
	p := &Payload{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("sparkplugb: invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldPayloadTimestamp:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			p.Timestamp = &v
		case fieldPayloadMetrics:
			mb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m, err := unmarshalMetric(mb)
			if err != nil {
				return nil, err
			}
			p.Metrics = append(p.Metrics, m)
		case fieldPayloadSeq:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			p.Seq = &v
		case fieldPayloadUUID:
			sb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			s := string(sb)
			p.UUID = &s
		case fieldPayloadBody:
			bb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			p.Body = append([]byte(nil), bb...)
		default:
			n, err := skipField(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
		}
	}
	return p, nil
}

func unmarshalMetric(data []byte) (*Metric, error) {
	m := &Metric{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("sparkplugb: invalid metric tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldMetricName:
			sb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			s := string(sb)
			m.Name = &s
		case fieldMetricAlias:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Alias = &v
		case fieldMetricTimestamp:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Timestamp = &v
		case fieldMetricDatatype:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Datatype = DataType(v)
		case fieldMetricIsNull:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.IsNull = v != 0
		case fieldMetricIntValue:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			switch m.Datatype {
			case Int8, Int16, Int32:
				m.Value = int64(int32(uint32(v)))
			default:
				m.Value = uint64(uint32(v))
			}
		case fieldMetricLongValue:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			if m.Datatype == Int64 {
				m.Value = int64(v)
			} else {
				m.Value = v
			}
		case fieldMetricFloatValue:
			if typ != protowire.Fixed32Type {
				return nil, fmt.Errorf("sparkplugb: invalid float_value field")
			}
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("sparkplugb: invalid float_value: %w", protowire.ParseError(n))
			}
			data = data[n:]
			m.Value = math.Float32frombits(v)
		case fieldMetricDoubleValue:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 || typ != protowire.Fixed64Type {
				return nil, fmt.Errorf("sparkplugb: invalid double_value field")
			}
			data = data[n:]
			m.Value = math.Float64frombits(v)
		case fieldMetricBoolValue:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Value = v != 0
		case fieldMetricStringValue:
			sb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Value = string(sb)
		case fieldMetricBytesValue:
			bb, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			m.Value = append([]byte(nil), bb...)
		default:
			n, err := skipField(data, typ)
			if err != nil {
				return nil, err
			}
			data = data[n:]
		}
	}
	return m, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("sparkplugb: expected varint wire type, got %v", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("sparkplugb: invalid varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("sparkplugb: expected bytes wire type, got %v", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("sparkplugb: invalid bytes: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func skipField(data []byte, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, data)
	if n < 0 {
		return 0, fmt.Errorf("sparkplugb: invalid field: %w", protowire.ParseError(n))
	}
	return n, nil
}
