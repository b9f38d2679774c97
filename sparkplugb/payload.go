package sparkplugb

// Payload is the Sparkplug B payload message: a timestamp, an optional
// sequence number, an optional UUID, an opaque body, and the metrics list.
// Field presence matters (e.g. Seq is omitted on commands), so optional
// fields are pointers, mirroring the protobuf "optional" semantics rather
// than collapsing absence into a zero value.
type Payload struct {
	Timestamp *uint64
	Metrics   []*Metric
	Seq       *uint64
	UUID      *string
	Body      []byte
}

// HasSeq reports whether Seq has been explicitly set.
func (p *Payload) HasSeq() bool {
	return p != nil && p.Seq != nil
}

// HasTimestamp reports whether Timestamp has been explicitly set.
func (p *Payload) HasTimestamp() bool {
	return p != nil && p.Timestamp != nil
}

// GetSeq returns the sequence number, or 0 if unset.
func (p *Payload) GetSeq() uint64 {
	if p == nil || p.Seq == nil {
		return 0
	}
	return *p.Seq
}

// SetTimestamp sets the payload-level timestamp.
func (p *Payload) SetTimestamp(ts uint64) {
	p.Timestamp = &ts
}

// SetSeq sets the payload-level sequence number.
func (p *Payload) SetSeq(seq uint64) {
	p.Seq = &seq
}

// AddMetric appends m to the payload's metric list and returns it.
func (p *Payload) AddMetric(m *Metric) *Metric {
	p.Metrics = append(p.Metrics, m)
	return m
}

// MetricByName returns the first metric with the given name, if any.
func (p *Payload) MetricByName(name string) *Metric {
	for _, m := range p.Metrics {
		if m.Name != nil && *m.Name == name {
			return m
		}
	}
	return nil
}

// Metric is a single Sparkplug B metric value. Exactly one of Value's
// concrete types should be set for a non-null metric; IsNull signals a
// quality-bad value with datatype still populated but no value field.
type Metric struct {
	Name      *string
	Alias     *uint64
	Timestamp *uint64
	Datatype  DataType
	IsNull    bool
	Value     any // one of int64, uint64, float32, float64, bool, string, []byte
}

// GetName returns the metric name, or "" if unset.
func (m *Metric) GetName() string {
	if m == nil || m.Name == nil {
		return ""
	}
	return *m.Name
}

// GetAlias returns the metric alias, or 0 if unset.
func (m *Metric) GetAlias() uint64 {
	if m == nil || m.Alias == nil {
		return 0
	}
	return *m.Alias
}

// HasAlias reports whether Alias has been explicitly set.
func (m *Metric) HasAlias() bool {
	return m != nil && m.Alias != nil
}

// LongValue returns the metric's value as a uint64, for UInt64/Int64-typed
// metrics such as bdSeq. ok is false if Value isn't an integer type.
func (m *Metric) LongValue() (uint64, bool) {
	switch v := m.Value.(type) {
	case uint64:
		return v, true
	case int64:
		return uint64(v), true
	}
	return 0, false
}
