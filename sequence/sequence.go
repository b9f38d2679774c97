// Package sequence implements the Sparkplug B sequence-number arithmetic
// shared by the Edge Node and Host Application roles: the mod-256 message
// counter (seq) and the session-lifetime birth/death counter (bdSeq).
//
// Neither type is goroutine-safe on its own; callers serialize access under
// the owning session's mutex per the coarse-locking discipline in spec §5.
// This mirrors other_examples/united-manufacturing-hub-benthos-umh's
// SequenceManager, split into two single-purpose value types instead of one
// mutex-guarded manager.
package sequence

// Counter is the shared node+device message sequence counter, wrapping at
// 256.
type Counter struct {
	value uint8
}

// Next increments the counter (wrapping mod 256) and returns the new value.
// This is the value a DBIRTH/NDATA/DDATA/DDEATH publish should carry.
func (c *Counter) Next() uint8 {
	c.value++
	return c.value
}

// Reset sets the counter back to 0, as NBIRTH/rebirth do.
func (c *Counter) Reset() {
	c.value = 0
}

// Value returns the current counter value without mutating it.
func (c *Counter) Value() uint8 {
	return c.value
}

// ExpectedNext returns the sequence number that should follow last,
// wrapping mod 256, without owning a Counter.
func ExpectedNext(last uint8) uint8 {
	return last + 1
}

// BdSeq is the birth/death sequence counter: a lifetime counter
// incremented once per connect and once per rebirth, correlating a birth
// with the death that eventually follows it.
type BdSeq struct {
	value uint64
}

// Next increments the counter and returns the new value.
func (b *BdSeq) Next() uint64 {
	b.value++
	return b.value
}

// Value returns the current counter value without mutating it.
func (b *BdSeq) Value() uint64 {
	return b.value
}

// Set forces the counter to a specific value.
func (b *BdSeq) Set(v uint64) {
	b.value = v
}
