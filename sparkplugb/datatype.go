// Package sparkplugb implements the Sparkplug B payload protobuf schema:
// a Payload message carrying a timestamp, sequence number, and a list of
// typed Metric values. There is no vendored .proto/protoc step in this
// module; the wire codec in encode.go/decode.go is written directly
// against google.golang.org/protobuf/encoding/protowire, the primitives a
// generated *.pb.go would compile down to for this schema.
package sparkplugb

// DataType is the Sparkplug B metric datatype enumeration. Values are the
// fixed wire constants defined by the Sparkplug B specification.
type DataType uint32

const (
	Int8     DataType = 1
	Int16    DataType = 2
	Int32    DataType = 3
	Int64    DataType = 4
	UInt8    DataType = 5
	UInt16   DataType = 6
	UInt32   DataType = 7
	UInt64   DataType = 8
	Float    DataType = 9
	Double   DataType = 10
	Boolean  DataType = 11
	String   DataType = 12
	DateTime DataType = 13
	Text     DataType = 14
	UUID     DataType = 15
	DataSet  DataType = 16
	Bytes    DataType = 17
	Template DataType = 18
)

func (d DataType) String() string {
	switch d {
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case UInt8:
		return "UInt8"
	case UInt16:
		return "UInt16"
	case UInt32:
		return "UInt32"
	case UInt64:
		return "UInt64"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Boolean:
		return "Boolean"
	case String:
		return "String"
	case DateTime:
		return "DateTime"
	case Text:
		return "Text"
	case UUID:
		return "UUID"
	case DataSet:
		return "DataSet"
	case Bytes:
		return "Bytes"
	case Template:
		return "Template"
	default:
		return "Unknown"
	}
}
